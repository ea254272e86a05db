package protected

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/payload"
)

// testPayload is a minimal payload.ProtectedPayload fixture used across this
// package's tests.
type testPayload struct {
	Data   string
	traits payload.Traits
}

func (p *testPayload) Traits() payload.Traits   { return p.traits }
func (p *testPayload) CanonicalFields() interface{} { return p.Data }

// testMailboxPayload additionally names a receiver.
type testMailboxPayload struct {
	testPayload
	receiver cryptoutil.PublicKey
}

func (p *testMailboxPayload) ReceiverPubKey() cryptoutil.PublicKey { return p.receiver }

func signedEntry(t *testing.T, p payload.ProtectedPayload, seqNr uint64, created time.Time) (*Entry, cryptoutil.PrivateKey) {
	t.Helper()
	priv, pub, err := cryptoutil.GeneratePrivateKey()
	require.NoError(t, err)
	digest, err := cryptoutil.SigningDigest(p.CanonicalFields(), seqNr)
	require.NoError(t, err)
	sig, err := cryptoutil.Sign(priv, digest)
	require.NoError(t, err)
	return &Entry{
		Payload:           p,
		OwnerPubKey:       pub,
		SequenceNumber:    seqNr,
		Signature:         sig,
		CreationTimeStamp: created,
	}, priv
}

func TestValidateForAddAcceptsCorrectSignature(t *testing.T) {
	p := &testPayload{Data: "hello"}
	e, _ := signedEntry(t, p, 1, time.Now())
	require.NoError(t, ValidateForAdd(e))
}

func TestValidateForAddRejectsTamperedSignature(t *testing.T) {
	p := &testPayload{Data: "hello"}
	e, _ := signedEntry(t, p, 1, time.Now())
	e.Signature[0] ^= 0xFF
	require.ErrorIs(t, ValidateForAdd(e), ErrInvalidSignature)
}

func TestValidateForAddRejectsMalformedOwnerKey(t *testing.T) {
	p := &testPayload{Data: "hello"}
	e, _ := signedEntry(t, p, 1, time.Now())
	e.OwnerPubKey = cryptoutil.PublicKey{}
	require.ErrorIs(t, ValidateForAdd(e), ErrMalformedOwnerKey)
}

func TestValidateMailboxForAddRejectsReceiverMismatch(t *testing.T) {
	_, wrongReceiver, err := cryptoutil.GeneratePrivateKey()
	require.NoError(t, err)
	_, rightReceiver, err := cryptoutil.GeneratePrivateKey()
	require.NoError(t, err)

	mp := &testMailboxPayload{testPayload: testPayload{Data: "mail"}, receiver: rightReceiver}
	entry, _ := signedEntry(t, mp, 1, time.Now())
	mb := &MailboxEntry{Entry: *entry, ReceiverPubKey: wrongReceiver}

	require.ErrorIs(t, ValidateMailboxForAdd(mb), ErrReceiverMismatch)
}

func TestValidateMailboxForAddAcceptsMatchingReceiver(t *testing.T) {
	_, receiver, err := cryptoutil.GeneratePrivateKey()
	require.NoError(t, err)

	mp := &testMailboxPayload{testPayload: testPayload{Data: "mail"}, receiver: receiver}
	entry, _ := signedEntry(t, mp, 1, time.Now())
	mb := &MailboxEntry{Entry: *entry, ReceiverPubKey: receiver}

	require.NoError(t, ValidateMailboxForAdd(mb))
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	notOwnerOnline := &Entry{
		Payload:           &testPayload{traits: payload.Traits{IsRequiresOwnerOnline: false, TTL: time.Second}},
		CreationTimeStamp: now.Add(-time.Hour),
	}
	require.False(t, notOwnerOnline.IsExpired(now), "only requires-owner-online payloads ever expire")

	stillAlive := &Entry{
		Payload:           &testPayload{traits: payload.Traits{IsRequiresOwnerOnline: true, TTL: time.Hour}},
		CreationTimeStamp: now,
	}
	require.False(t, stillAlive.IsExpired(now.Add(time.Minute)))

	expired := &Entry{
		Payload:           &testPayload{traits: payload.Traits{IsRequiresOwnerOnline: true, TTL: time.Minute}},
		CreationTimeStamp: now.Add(-2 * time.Minute),
	}
	require.True(t, expired.IsExpired(now))
}

func TestWithRefreshPreservesPayloadAndOwner(t *testing.T) {
	p := &testPayload{Data: "refresh me"}
	e, _ := signedEntry(t, p, 1, time.Now())
	owner := e.OwnerPubKey

	newSig := cryptoutil.Signature{1, 2, 3}
	refreshTime := time.Now().Add(time.Hour)
	refreshed := e.WithRefresh(5, newSig, refreshTime)

	require.Equal(t, uint64(5), refreshed.SequenceNumber)
	require.Equal(t, newSig, refreshed.Signature)
	require.True(t, refreshed.CreationTimeStamp.Equal(refreshTime))
	require.Equal(t, owner, refreshed.OwnerPubKey)
	require.Same(t, p, refreshed.Payload.(*testPayload))
}

func TestBackDateMovesCreationEarlier(t *testing.T) {
	created := time.Now()
	e := Entry{CreationTimeStamp: created}
	back := e.BackDate(time.Hour)
	require.True(t, back.CreationTimeStamp.Equal(created.Add(-time.Hour)))
}

func TestValidateRemoveSignature(t *testing.T) {
	priv, pub, err := cryptoutil.GeneratePrivateKey()
	require.NoError(t, err)
	hash := cryptoutil.Sum([]byte("payload-hash"))
	digest, err := cryptoutil.RemoveDigest(hash, 2)
	require.NoError(t, err)
	sig, err := cryptoutil.Sign(priv, digest)
	require.NoError(t, err)

	req := RemoveRequest{PayloadHash: hash, SequenceNumber: 2, Signature: sig, SignerPubKey: pub}
	require.NoError(t, ValidateRemoveSignature(req))

	req.Signature[0] ^= 0xFF
	require.ErrorIs(t, ValidateRemoveSignature(req), ErrInvalidSignature)
}
