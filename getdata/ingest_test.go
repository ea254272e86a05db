package getdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/trasherdk/haveno/appendonly"
	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/kv"
	"github.com/trasherdk/haveno/kv/memkv"
	"github.com/trasherdk/haveno/network"
	"github.com/trasherdk/haveno/p2pstore"
	"github.com/trasherdk/haveno/payload"
	"github.com/trasherdk/haveno/protected"
	"github.com/trasherdk/haveno/removedset"
	"github.com/trasherdk/haveno/seqnrmap"
)

type fakeConn struct{ addr string }

func (c fakeConn) PeerAddress() string { return c.addr }

type ingestTestPayload struct {
	Data   string
	traits payload.Traits
}

func (p *ingestTestPayload) Traits() payload.Traits       { return p.traits }
func (p *ingestTestPayload) CanonicalFields() interface{} { return p.Data }

type ingestTestAppendOnlyPayload struct {
	Data     string
	category string
	declared cryptoutil.Hash
	traits   payload.Traits
}

func (p *ingestTestAppendOnlyPayload) Traits() payload.Traits       { return p.traits }
func (p *ingestTestAppendOnlyPayload) CanonicalFields() interface{} { return p.Data }
func (p *ingestTestAppendOnlyPayload) Hash() cryptoutil.Hash         { return p.declared }
func (p *ingestTestAppendOnlyPayload) ProtocolVersion() int          { return 0 }
func (p *ingestTestAppendOnlyPayload) Category() string              { return p.category }

func newAppendOnlyFixture(data, category string, traits payload.Traits) *ingestTestAppendOnlyPayload {
	p := &ingestTestAppendOnlyPayload{Data: data, category: category, traits: traits}
	h, _ := payload.Hash(p)
	p.declared = h
	return p
}

func newTestSetup(t *testing.T) (*p2pstore.Storage, *appendonly.Registry, *clock.Mock) {
	t.Helper()
	db := memkv.New(kv.Tables)
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	seqMap, err := seqnrmap.Load(db, mock, 10*24*time.Hour)
	require.NoError(t, err)
	removed, err := removedset.Load(db)
	require.NoError(t, err)
	reg := protected.NewTypeRegistry()
	reg.Register("ingestTestPayload", &ingestTestPayload{})
	protStore := protected.NewStore(db, reg)

	storage := p2pstore.New(p2pstore.Config{SeqMap: seqMap, Removed: removed, Protected: protStore, Clock: mock})

	aoReg := appendonly.NewRegistry()
	aoTypeReg := appendonly.NewTypeRegistry()
	aoTypeReg.Register("ingestTestAppendOnlyPayload", &ingestTestAppendOnlyPayload{})
	aoReg.Register(appendonly.NewPlainStore(1, "aocat", db, aoTypeReg))

	return storage, aoReg, mock
}

func signedProtectedEntry(t *testing.T, data string, seqNr uint64, created time.Time, traits payload.Traits) *protected.Entry {
	t.Helper()
	p := &ingestTestPayload{Data: data, traits: traits}
	priv, pub, err := cryptoutil.GeneratePrivateKey()
	require.NoError(t, err)
	digest, err := cryptoutil.SigningDigest(p.CanonicalFields(), seqNr)
	require.NoError(t, err)
	sig, err := cryptoutil.Sign(priv, digest)
	require.NoError(t, err)
	return &protected.Entry{Payload: p, OwnerPubKey: pub, SequenceNumber: seqNr, Signature: sig, CreationTimeStamp: created}
}

func TestProcessResponseAddsProtectedEntriesWithoutBroadcast(t *testing.T) {
	storage, aoReg, mock := newTestSetup(t)
	entry := signedProtectedEntry(t, "bootstrapped", 1, mock.Now(), payload.Traits{})
	resp := Response{ProtectedEntries: []protected.StoredEntry{entry}}
	session := &SessionState{}

	ProcessResponse(resp, storage, aoReg, session, fakeConn{addr: "seed"}, mock, time.Minute)

	require.Equal(t, 1, storage.Size())
}

func TestProcessResponseMarksSessionApplied(t *testing.T) {
	storage, aoReg, mock := newTestSetup(t)
	session := &SessionState{}
	require.False(t, session.applied())

	ProcessResponse(Response{}, storage, aoReg, session, fakeConn{addr: "seed"}, mock, time.Minute)
	require.True(t, session.applied())
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, message interface{}, _ network.Connection, _ network.BroadcastListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
	return nil
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

func TestProcessResponseSchedulesRebroadcastForHighPriority(t *testing.T) {
	db := memkv.New(kv.Tables)
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	seqMap, err := seqnrmap.Load(db, mock, 10*24*time.Hour)
	require.NoError(t, err)
	removed, err := removedset.Load(db)
	require.NoError(t, err)
	reg := protected.NewTypeRegistry()
	reg.Register("ingestTestPayload", &ingestTestPayload{})
	bc := &recordingBroadcaster{}
	storage := p2pstore.New(p2pstore.Config{SeqMap: seqMap, Removed: removed, Protected: protected.NewStore(db, reg), Clock: mock, Broadcaster: bc})
	aoReg := appendonly.NewRegistry()

	entry := signedProtectedEntry(t, "urgent", 1, mock.Now(), payload.Traits{Priority: payload.PriorityHigh})
	resp := Response{ProtectedEntries: []protected.StoredEntry{entry}}
	session := &SessionState{}

	ProcessResponse(resp, storage, aoReg, session, fakeConn{addr: "seed"}, mock, time.Minute)
	require.Equal(t, 1, storage.Size())
	require.Zero(t, bc.count(), "ingest itself must not broadcast — we're only connected to the seed")

	mock.Add(time.Minute + time.Second)
	require.Equal(t, 1, bc.count(), "the delayed rebroadcast must fire after the configured delay")
	require.Equal(t, 1, storage.Size())
}

func TestOnMessageRoutesAppendOnlyGossip(t *testing.T) {
	_, aoReg, mock := newTestSetup(t)
	p := newAppendOnlyFixture("gossip", "aocat", payload.Traits{})

	added := OnMessage(AddPersistableNetworkPayloadMessage{Payload: p}, aoReg, mock.Now())
	require.True(t, added)

	added = OnMessage(AddPersistableNetworkPayloadMessage{Payload: p}, aoReg, mock.Now())
	require.False(t, added, "a duplicate gossip must not report newly added")

	require.False(t, OnMessage("unrelated envelope", aoReg, mock.Now()))
}

func TestProcessResponseProcessOnceAppendOnlyAppliesOnFirstSession(t *testing.T) {
	storage, aoReg, mock := newTestSetup(t)
	p := newAppendOnlyFixture("once", "aocat", payload.Traits{IsProcessOnce: true})
	resp := Response{AppendOnlyPayloads: []payload.AppendOnlyPayload{p}}
	session := &SessionState{}

	ProcessResponse(resp, storage, aoReg, session, fakeConn{addr: "seed"}, mock, time.Minute)

	store, ok := aoReg.Lookup("aocat")
	require.True(t, ok)
	require.Len(t, store.GetMap(), 1)
}

func TestProcessResponseProcessOnceSkippedOnLaterUntruncatedResponse(t *testing.T) {
	storage, aoReg, mock := newTestSetup(t)
	session := &SessionState{}
	session.markApplied() // simulate a prior, already-processed session

	p := newAppendOnlyFixture("late", "aocat", payload.Traits{IsProcessOnce: true})
	resp := Response{AppendOnlyPayloads: []payload.AppendOnlyPayload{p}, WasTruncated: false}

	ProcessResponse(resp, storage, aoReg, session, fakeConn{addr: "seed"}, mock, time.Minute)

	store, _ := aoReg.Lookup("aocat")
	require.Empty(t, store.GetMap(), "a process-once payload must not apply again unless the response was truncated")
}

func TestProcessResponseProcessOnceAppliesOnTruncatedResponse(t *testing.T) {
	storage, aoReg, mock := newTestSetup(t)
	session := &SessionState{}
	session.markApplied()

	p := newAppendOnlyFixture("retry", "aocat", payload.Traits{IsProcessOnce: true})
	resp := Response{AppendOnlyPayloads: []payload.AppendOnlyPayload{p}, WasTruncated: true}

	ProcessResponse(resp, storage, aoReg, session, fakeConn{addr: "seed"}, mock, time.Minute)

	store, _ := aoReg.Lookup("aocat")
	require.Len(t, store.GetMap(), 1, "a truncated response signals the sync may be incomplete, so process-once re-applies")
}
