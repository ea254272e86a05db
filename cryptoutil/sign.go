package cryptoutil

import (
	"fmt"

	"github.com/erigontech/secp256k1"
)

const (
	PrivateKeySize  = 32
	PublicKeySize   = 65 // uncompressed point, 0x04 || X || Y
	SignatureSize   = 65 // r(32) || s(32) || recovery id(1)
)

type PrivateKey [PrivateKeySize]byte

// PublicKey is the owner identity every protected entry is signed against.
// It is carried uncompressed so VerifySignature never needs curve
// arithmetic beyond what secp256k1 already does internally.
type PublicKey [PublicKeySize]byte

func (k PublicKey) Bytes() []byte { return append([]byte(nil), k[:]...) }

func (k PublicKey) IsWellFormed() bool {
	return len(k) == PublicKeySize && k[0] == 0x04
}

func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != PublicKeySize {
		return k, fmt.Errorf("cryptoutil: expected %d byte public key, got %d", PublicKeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

type Signature [SignatureSize]byte

func (s Signature) Bytes() []byte { return append([]byte(nil), s[:]...) }

func SignatureFromBytes(b []byte) (Signature, error) {
	var s Signature
	if len(b) != SignatureSize {
		return s, fmt.Errorf("cryptoutil: expected %d byte signature, got %d", SignatureSize, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// GeneratePrivateKey is used by tests and by owner-side tooling outside the
// gossip core itself; the core only ever verifies, it never holds keys.
func GeneratePrivateKey() (PrivateKey, PublicKey, error) {
	var priv PrivateKey
	seckey, pubkey, err := secp256k1.GenerateKeyPair()
	if err != nil {
		return priv, PublicKey{}, fmt.Errorf("cryptoutil: generate key pair: %w", err)
	}
	copy(priv[:], seckey)
	pub, err := PublicKeyFromBytes(pubkey)
	if err != nil {
		return priv, PublicKey{}, err
	}
	return priv, pub, nil
}

// Sign produces the protected-entry signature over digest
// (hash32(payload, sequenceNumber)).
func Sign(priv PrivateKey, digest Hash) (Signature, error) {
	sig, err := secp256k1.Sign(digest[:], priv[:])
	if err != nil {
		return Signature{}, fmt.Errorf("cryptoutil: sign: %w", err)
	}
	return SignatureFromBytes(sig)
}

// Verify checks sig against digest under pub. A malformed public key is
// rejected before touching curve math, matching validateForAdd's
// "owner pubkey is well-formed" precondition.
func Verify(pub PublicKey, digest Hash, sig Signature) bool {
	if !pub.IsWellFormed() {
		return false
	}
	return secp256k1.VerifySignature(pub[:], digest[:], sig[:64])
}
