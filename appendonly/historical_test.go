package appendonly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trasherdk/haveno/kv"
	"github.com/trasherdk/haveno/kv/memkv"
	"github.com/trasherdk/haveno/payload"
)

type versionedTestPayload struct {
	testAppendOnlyPayload
	version int
}

func (p *versionedTestPayload) ProtocolVersion() int { return p.version }

func newVersionedPayload(data string, version int) *versionedTestPayload {
	p := &versionedTestPayload{testAppendOnlyPayload: testAppendOnlyPayload{Data: data}, version: version}
	h, _ := payload.Hash(p)
	p.declared = h
	return p
}

func TestHistoricalStoreGetMapOfLiveDataOnlyReturnsCurrentVersion(t *testing.T) {
	db := memkv.New(kv.Tables)
	reg := NewTypeRegistry()
	reg.Register("versionedTestPayload", &versionedTestPayload{})
	store := NewHistoricalStore(2, "hist", 3, db, reg)

	live := newVersionedPayload("live", 3)
	old := newVersionedPayload("old", 1)
	_, err := store.Ingest(live, false, false, time.Time{})
	require.NoError(t, err)
	_, err = store.Ingest(old, false, false, time.Time{})
	require.NoError(t, err)

	liveMap := store.GetMapOfLiveData()
	require.Len(t, liveMap, 1)
	_, ok := liveMap[live.Hash()]
	require.True(t, ok)

	require.Len(t, store.GetMap(), 2, "GetMap returns every version, live and historical")
}

func TestHistoricalStoreGetMapSinceVersion(t *testing.T) {
	db := memkv.New(kv.Tables)
	reg := NewTypeRegistry()
	reg.Register("versionedTestPayload", &versionedTestPayload{})
	store := NewHistoricalStore(2, "hist", 3, db, reg)

	v1 := newVersionedPayload("v1", 1)
	v2 := newVersionedPayload("v2", 2)
	v3 := newVersionedPayload("v3", 3)
	for _, p := range []*versionedTestPayload{v1, v2, v3} {
		_, err := store.Ingest(p, false, false, time.Time{})
		require.NoError(t, err)
	}

	since2 := store.GetMapSinceVersion(2)
	require.Len(t, since2, 2)
	_, hasV1 := since2[v1.Hash()]
	require.False(t, hasV1)
}

func TestHistoricalStoreLoadRestoresVersionTags(t *testing.T) {
	db := memkv.New(kv.Tables)
	reg := NewTypeRegistry()
	reg.Register("versionedTestPayload", &versionedTestPayload{})
	store := NewHistoricalStore(2, "hist", 3, db, reg)

	p := newVersionedPayload("durable", 3)
	_, err := store.Ingest(p, false, false, time.Time{})
	require.NoError(t, err)
	require.NoError(t, store.Flush())

	reloaded := NewHistoricalStore(2, "hist", 3, db, reg)
	require.NoError(t, reloaded.Load())
	require.Len(t, reloaded.GetMapOfLiveData(), 1, "the reloaded store must still recognize the entry as live")
}

func TestHistoricalStoreIngestProcessOnce(t *testing.T) {
	db := memkv.New(kv.Tables)
	reg := NewTypeRegistry()
	reg.Register("versionedTestPayload", &versionedTestPayload{})
	store := NewHistoricalStore(2, "hist", 1, db, reg)

	p := newVersionedPayload("boot", 1)
	require.NoError(t, store.IngestProcessOnce(p))
	require.NoError(t, store.IngestProcessOnce(p))
	require.Len(t, store.GetMap(), 1)
}

func TestHistoricalStoreRejectsBadHash(t *testing.T) {
	db := memkv.New(kv.Tables)
	reg := NewTypeRegistry()
	reg.Register("versionedTestPayload", &versionedTestPayload{})
	store := NewHistoricalStore(2, "hist", 1, db, reg)

	p := newVersionedPayload("tampered", 1)
	p.declared[0] ^= 0xFF
	_, err := store.Ingest(p, false, false, time.Time{})
	require.Error(t, err)
}

var _ payload.AppendOnlyPayload = (*versionedTestPayload)(nil)
