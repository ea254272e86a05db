// Package protected implements the protected storage entry: an
// owner-signed, monotonically-sequenced wrapper over a payload, plus the
// mailbox variant and the validation rules for both.
package protected

import (
	"errors"
	"fmt"
	"time"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/payload"
)

var (
	ErrMalformedOwnerKey  = errors.New("protected: owner public key is malformed")
	ErrInvalidSignature   = errors.New("protected: signature does not verify")
	ErrReceiverMismatch   = errors.New("protected: receiver key does not match payload's declared receiver")
	ErrSequenceRegression = errors.New("protected: sequence number did not strictly advance")
)

// Entry is the owner-signed, sequenced wrapper over a protected payload.
type Entry struct {
	Payload           payload.ProtectedPayload
	OwnerPubKey       cryptoutil.PublicKey
	SequenceNumber    uint64
	Signature         cryptoutil.Signature
	CreationTimeStamp time.Time
}

// MailboxEntry additionally binds a receiver key; only that key may
// authorize removal.
type MailboxEntry struct {
	Entry
	ReceiverPubKey cryptoutil.PublicKey
}

func (e *Entry) Hash() (cryptoutil.Hash, error) {
	return payload.Hash(e.Payload)
}

// IsExpired reports whether the entry's TTL has elapsed: only
// requires-owner-online payloads with a positive TTL ever expire.
func (e *Entry) IsExpired(now time.Time) bool {
	t := e.Payload.Traits()
	if !t.IsRequiresOwnerOnline || t.TTL <= 0 {
		return false
	}
	return !e.CreationTimeStamp.Add(t.TTL).After(now)
}

// WithRefresh returns a copy of e with an advanced sequence number, fresh
// signature and reset creation timestamp, the rebuild step of a TTL
// refresh.
func (e Entry) WithRefresh(seqNr uint64, sig cryptoutil.Signature, now time.Time) Entry {
	e.SequenceNumber = seqNr
	e.Signature = sig
	e.CreationTimeStamp = now
	return e
}

// BackDate moves the creation timestamp earlier by d, accelerating the next
// expiration sweep. Used on unintended peer disconnects.
func (e Entry) BackDate(d time.Duration) Entry {
	e.CreationTimeStamp = e.CreationTimeStamp.Add(-d)
	return e
}

// ValidateForAdd checks an entry before storage: well-formed owner key,
// a signature that verifies over hash32(payload, seqNr), and for mailbox
// entries a receiver key matching the payload's declared receiver.
func ValidateForAdd(e *Entry) error {
	if !e.OwnerPubKey.IsWellFormed() {
		return ErrMalformedOwnerKey
	}
	digest, err := cryptoutil.SigningDigest(e.Payload.CanonicalFields(), e.SequenceNumber)
	if err != nil {
		return fmt.Errorf("protected: signing digest: %w", err)
	}
	if !cryptoutil.Verify(e.OwnerPubKey, digest, e.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

func ValidateMailboxForAdd(e *MailboxEntry) error {
	if err := ValidateForAdd(&e.Entry); err != nil {
		return err
	}
	mb, ok := e.Payload.(payload.MailboxPayload)
	if !ok {
		return fmt.Errorf("protected: mailbox entry wraps a non-mailbox payload")
	}
	if mb.ReceiverPubKey() != e.ReceiverPubKey {
		return ErrReceiverMismatch
	}
	return nil
}

// RemoveRequest is the payload-hash-only counterpart to Entry used by
// remove operations. It carries its own signer key — a regular remove's
// owner key, or a mailbox remove's receiver key — so that a remove
// arriving before its paired add can be validated and advance the
// sequence-number map even when no stored entry exists yet to compare an
// owner key against.
type RemoveRequest struct {
	PayloadHash    cryptoutil.Hash
	SequenceNumber uint64
	Signature      cryptoutil.Signature
	SignerPubKey   cryptoutil.PublicKey
}

// ValidateRemoveSignature verifies sig over hash32(payloadHash, seqNr)
// under the request's own SignerPubKey.
func ValidateRemoveSignature(req RemoveRequest) error {
	if !req.SignerPubKey.IsWellFormed() {
		return ErrMalformedOwnerKey
	}
	digest, err := cryptoutil.RemoveDigest(req.PayloadHash, req.SequenceNumber)
	if err != nil {
		return fmt.Errorf("protected: remove digest: %w", err)
	}
	if !cryptoutil.Verify(req.SignerPubKey, digest, req.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// RefreshOffer carries the fields of a TTL refresh message.
type RefreshOffer struct {
	PayloadHash    cryptoutil.Hash
	SequenceNumber uint64
	Signature      cryptoutil.Signature
}

// StoredEntry is the narrow view the codec needs to persist either an Entry
// or a MailboxEntry without caring which. Both satisfy it via the method set
// below; Receiver's second return is false for a plain (non-mailbox) Entry.
type StoredEntry interface {
	PayloadValue() payload.ProtectedPayload
	Owner() cryptoutil.PublicKey
	SeqNr() uint64
	Sig() cryptoutil.Signature
	Created() time.Time
	Receiver() (cryptoutil.PublicKey, bool)
	IsExpired(now time.Time) bool
}

func (e *Entry) PayloadValue() payload.ProtectedPayload           { return e.Payload }
func (e *Entry) Owner() cryptoutil.PublicKey                       { return e.OwnerPubKey }
func (e *Entry) SeqNr() uint64                                     { return e.SequenceNumber }
func (e *Entry) Sig() cryptoutil.Signature                         { return e.Signature }
func (e *Entry) Created() time.Time                                { return e.CreationTimeStamp }
func (e *Entry) Receiver() (cryptoutil.PublicKey, bool)             { return cryptoutil.PublicKey{}, false }

func (e *MailboxEntry) Receiver() (cryptoutil.PublicKey, bool) { return e.ReceiverPubKey, true }

func timeFromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
