package protected

import (
	"bytes"
	"fmt"
	"reflect"
	"sync"

	"github.com/ugorji/go/codec"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/payload"
)

// diskHandle encodes persisted records. Unlike the canonical handle in
// cryptoutil, this one is never hashed or signed over, so it doesn't need
// to be canonical — just stable enough to round-trip through mdbx.
var diskHandle = &codec.CborHandle{}

// TypeRegistry maps a payload's wire type name to its concrete Go type, so
// the protected-entry store can decode the interface-typed Payload field
// back into a concrete struct after a restart. Every payload class the
// node handles registers itself once at startup.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{byName: make(map[string]reflect.Type), byType: make(map[reflect.Type]string)}
}

// Register associates name with the concrete type behind zero. zero is only
// used to discover that type; its value is discarded.
func (r *TypeRegistry) Register(name string, zero payload.ProtectedPayload) {
	t := reflect.TypeOf(zero)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = t
	r.byType[t] = name
}

func (r *TypeRegistry) nameOf(p payload.ProtectedPayload) (string, error) {
	t := reflect.TypeOf(p)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[t]
	if !ok {
		return "", fmt.Errorf("protected: payload type %s was never registered", t)
	}
	return name, nil
}

func (r *TypeRegistry) newByName(name string) (payload.ProtectedPayload, error) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("protected: unknown persisted payload type %q", name)
	}
	v := reflect.New(t)
	p, ok := v.Interface().(payload.ProtectedPayload)
	if !ok {
		return nil, fmt.Errorf("protected: registered type %s does not implement ProtectedPayload", t)
	}
	return p, nil
}

// persistedEntry is the on-disk shape written to kv.ProtectedEntries.
type persistedEntry struct {
	TypeName         string
	PayloadBytes     []byte
	OwnerPubKey      []byte
	SequenceNumber   uint64
	Signature        []byte
	CreationUnixNano int64
	IsMailbox        bool
	ReceiverPubKey   []byte
}

// EncodeEntry serializes a stored entry for persistence. Only payloads
// tagged Persistable ever reach this path, keeping the persisted set a
// subset of the main map.
func EncodeEntry(reg *TypeRegistry, se StoredEntry) ([]byte, error) {
	p := se.PayloadValue()
	name, err := reg.nameOf(p)
	if err != nil {
		return nil, err
	}
	var payloadBuf bytes.Buffer
	if err := codec.NewEncoder(&payloadBuf, diskHandle).Encode(p); err != nil {
		return nil, fmt.Errorf("protected: encode payload: %w", err)
	}

	rec := persistedEntry{
		TypeName:         name,
		PayloadBytes:     payloadBuf.Bytes(),
		OwnerPubKey:      se.Owner().Bytes(),
		SequenceNumber:   se.SeqNr(),
		Signature:        se.Sig().Bytes(),
		CreationUnixNano: se.Created().UnixNano(),
	}
	if recv, ok := se.Receiver(); ok {
		rec.IsMailbox = true
		rec.ReceiverPubKey = recv.Bytes()
	}

	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, diskHandle).Encode(rec); err != nil {
		return nil, fmt.Errorf("protected: encode entry: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEntry is EncodeEntry's inverse, used when loading the
// protected-entry store at startup.
func DecodeEntry(reg *TypeRegistry, b []byte) (StoredEntry, error) {
	var rec persistedEntry
	if err := codec.NewDecoderBytes(b, diskHandle).Decode(&rec); err != nil {
		return nil, fmt.Errorf("protected: decode entry: %w", err)
	}
	p, err := reg.newByName(rec.TypeName)
	if err != nil {
		return nil, err
	}
	if err := codec.NewDecoderBytes(rec.PayloadBytes, diskHandle).Decode(p); err != nil {
		return nil, fmt.Errorf("protected: decode payload: %w", err)
	}
	owner, err := cryptoutil.PublicKeyFromBytes(rec.OwnerPubKey)
	if err != nil {
		return nil, err
	}
	sig, err := cryptoutil.SignatureFromBytes(rec.Signature)
	if err != nil {
		return nil, err
	}
	pp, ok := p.(payload.ProtectedPayload)
	if !ok {
		return nil, fmt.Errorf("protected: %s is not a ProtectedPayload", rec.TypeName)
	}
	base := Entry{
		Payload:           pp,
		OwnerPubKey:       owner,
		SequenceNumber:    rec.SequenceNumber,
		Signature:         sig,
		CreationTimeStamp: timeFromUnixNano(rec.CreationUnixNano),
	}
	if !rec.IsMailbox {
		return &base, nil
	}
	recv, err := cryptoutil.PublicKeyFromBytes(rec.ReceiverPubKey)
	if err != nil {
		return nil, err
	}
	return &MailboxEntry{Entry: base, ReceiverPubKey: recv}, nil
}
