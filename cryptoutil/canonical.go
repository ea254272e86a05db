package cryptoutil

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"
)

// canonicalHandle produces deterministic CBOR: map keys are sorted before
// encoding, so two processes holding an identical Go value always hash it
// identically regardless of struct-field iteration order. This is the
// canonical binary encoding every payload hash is defined over.
var canonicalHandle = newCanonicalHandle()

func newCanonicalHandle() *codec.CborHandle {
	h := &codec.CborHandle{}
	h.Canonical = true
	return h
}

// CanonicalEncode serializes v deterministically for hashing or signing.
// v must be a value the codec can reflect over (structs, maps, slices,
// primitives) — exactly the payload and signing-tuple types in this module.
func CanonicalEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, canonicalHandle)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("cryptoutil: canonical encode: %w", err)
	}
	return buf.Bytes(), nil
}

// signingTuple is the distinct encoding of (payload, sequenceNumber) that
// backs protected-entry signatures: the same payload re-offered at a new
// sequence number must sign a different digest than the original.
type signingTuple struct {
	Payload interface{}
	SeqNr   uint64
}

// HashPayload computes hash32(payload) = SHA-256(canonicalEncoding(payload)).
func HashPayload(payload interface{}) (Hash, error) {
	enc, err := CanonicalEncode(payload)
	if err != nil {
		return Hash{}, err
	}
	return Sum(enc), nil
}

// SigningDigest computes the digest a protected entry's signature covers:
// hash32(payload, sequenceNumber).
func SigningDigest(payload interface{}, seqNr uint64) (Hash, error) {
	enc, err := CanonicalEncode(signingTuple{Payload: payload, SeqNr: seqNr})
	if err != nil {
		return Hash{}, err
	}
	return Sum(enc), nil
}

type hashAndSeqNr struct {
	Hash  Hash
	SeqNr uint64
}

// RemoveDigest computes hash32(payloadHash, sequenceNumber), the digest a
// remove message signs over. Unlike SigningDigest it covers only
// the payload's hash, not its full content — a remover only ever needs to
// know what it is removing, not reconstruct the payload itself.
func RemoveDigest(payloadHash Hash, seqNr uint64) (Hash, error) {
	enc, err := CanonicalEncode(hashAndSeqNr{Hash: payloadHash, SeqNr: seqNr})
	if err != nil {
		return Hash{}, err
	}
	return Sum(enc), nil
}
