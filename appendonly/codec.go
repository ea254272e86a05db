package appendonly

import (
	"bytes"
	"fmt"
	"reflect"
	"sync"

	"github.com/golang/snappy"
	"github.com/ugorji/go/codec"

	"github.com/trasherdk/haveno/payload"
)

var diskHandle = &codec.CborHandle{}

// TypeRegistry maps an append-only payload's wire type name to its
// concrete Go type, mirroring protected.TypeRegistry — interface-typed
// fields need a concrete type on the way back out of disk.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{byName: make(map[string]reflect.Type), byType: make(map[reflect.Type]string)}
}

func (r *TypeRegistry) Register(name string, zero payload.AppendOnlyPayload) {
	t := reflect.TypeOf(zero)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = t
	r.byType[t] = name
}

func (r *TypeRegistry) nameOf(p payload.AppendOnlyPayload) (string, error) {
	t := reflect.TypeOf(p)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[t]
	if !ok {
		return "", fmt.Errorf("appendonly: payload type %s was never registered", t)
	}
	return name, nil
}

func (r *TypeRegistry) newByName(name string) (payload.AppendOnlyPayload, error) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("appendonly: unknown persisted payload type %q", name)
	}
	v := reflect.New(t)
	p, ok := v.Interface().(payload.AppendOnlyPayload)
	if !ok {
		return nil, fmt.Errorf("appendonly: registered type %s does not implement AppendOnlyPayload", t)
	}
	return p, nil
}

type persistedPayload struct {
	TypeName string
	Bytes    []byte
}

// encodePayload serializes p, snappy-compressed — append-only stores tend
// to accumulate the most bytes of any table in this module (no TTL, no
// removal), so they're the one place worth spending a compressor on.
func encodePayload(reg *TypeRegistry, p payload.AppendOnlyPayload) ([]byte, error) {
	name, err := reg.nameOf(p)
	if err != nil {
		return nil, err
	}
	var inner bytes.Buffer
	if err := codec.NewEncoder(&inner, diskHandle).Encode(p); err != nil {
		return nil, fmt.Errorf("appendonly: encode payload: %w", err)
	}
	rec := persistedPayload{TypeName: name, Bytes: snappy.Encode(nil, inner.Bytes())}

	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, diskHandle).Encode(rec); err != nil {
		return nil, fmt.Errorf("appendonly: encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePayload(reg *TypeRegistry, b []byte) (payload.AppendOnlyPayload, error) {
	var rec persistedPayload
	if err := codec.NewDecoderBytes(b, diskHandle).Decode(&rec); err != nil {
		return nil, fmt.Errorf("appendonly: decode record: %w", err)
	}
	p, err := reg.newByName(rec.TypeName)
	if err != nil {
		return nil, err
	}
	inner, err := snappy.Decode(nil, rec.Bytes)
	if err != nil {
		return nil, fmt.Errorf("appendonly: snappy decode: %w", err)
	}
	if err := codec.NewDecoderBytes(inner, diskHandle).Decode(p); err != nil {
		return nil, fmt.Errorf("appendonly: decode payload: %w", err)
	}
	return p, nil
}
