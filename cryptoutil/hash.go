// Package cryptoutil implements the hash and signature primitives:
// SHA-256 over a canonical binary encoding, and secp256k1 signing/
// verification over that digest.
package cryptoutil

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Size is the fixed digest length every payload hash and signing digest
// must have; append-only payloads self-verify against it (verifyHashSize).
const Size = sha256.Size

// Hash is a 32-byte SHA-256 digest. It is a plain array, not a slice, so it
// has value equality out of the box and is safe to use directly as a map
// key — no accidental reference-equality bugs from wrapping []byte.
type Hash [Size]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

// FastHash returns the first 8 bytes of the digest as a uint64. SHA-256
// output is already uniformly distributed, so this is a cheap, stable
// bucket key for secondary indexes that don't need the full 32 bytes.
func (h Hash) FastHash() uint64 {
	return binary.BigEndian.Uint64(h[:8])
}

func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// HashFromBytes validates b's length before wrapping it, enforcing
// verifyHashSize for any caller that builds a Hash off the wire.
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != Size {
		return Hash{}, fmt.Errorf("cryptoutil: expected %d byte hash, got %d", Size, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("cryptoutil: decode hex hash: %w", err)
	}
	return HashFromBytes(b)
}

// Sum hashes b directly; used where the caller has already produced the
// canonical encoding itself.
func Sum(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}
