package appendonly

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/kv"
	"github.com/trasherdk/haveno/kv/memkv"
	"github.com/trasherdk/haveno/metrics"
	"github.com/trasherdk/haveno/payload"
)

type testAppendOnlyPayload struct {
	Data     string
	declared cryptoutil.Hash
	traits   payload.Traits
}

func (p *testAppendOnlyPayload) Traits() payload.Traits       { return p.traits }
func (p *testAppendOnlyPayload) CanonicalFields() interface{} { return p.Data }
func (p *testAppendOnlyPayload) Hash() cryptoutil.Hash         { return p.declared }
func (p *testAppendOnlyPayload) ProtocolVersion() int          { return 0 }

func newValidPayload(data string) *testAppendOnlyPayload {
	p := &testAppendOnlyPayload{Data: data}
	h, _ := payload.Hash(p)
	p.declared = h
	return p
}

func newTestRegistry() *TypeRegistry {
	reg := NewTypeRegistry()
	reg.Register("testAppendOnlyPayload", &testAppendOnlyPayload{})
	return reg
}

func TestVerifyHashSizeRejectsMismatchedHash(t *testing.T) {
	p := newValidPayload("ok")
	require.NoError(t, VerifyHashSize(p))

	p.declared = cryptoutil.Sum([]byte("wrong"))
	require.Error(t, VerifyHashSize(p))
}

func TestPlainStoreIngestRejectsBadHash(t *testing.T) {
	db := memkv.New(kv.Tables)
	store := NewPlainStore(1, "cat", db, newTestRegistry())

	p := newValidPayload("a")
	p.declared = cryptoutil.Sum([]byte("tampered"))
	_, err := store.Ingest(p, false, false, time.Time{})
	require.Error(t, err)
}

func TestPlainStoreIngestIsContentAddressedAndMonotonic(t *testing.T) {
	db := memkv.New(kv.Tables)
	store := NewPlainStore(1, "cat", db, newTestRegistry())

	p := newValidPayload("once")
	added, err := store.Ingest(p, false, false, time.Time{})
	require.NoError(t, err)
	require.True(t, added)
	require.Len(t, store.GetMap(), 1)

	added, err = store.Ingest(p, false, false, time.Time{})
	require.NoError(t, err)
	require.False(t, added, "re-ingesting the same hash without allowRebroadcast must be a no-op")
	require.Len(t, store.GetMap(), 1, "append-only stores never lose a key")
}

func TestPlainStoreIngestRejectsDateDrift(t *testing.T) {
	db := memkv.New(kv.Tables)
	store := NewPlainStore(1, "cat", db, newTestRegistry())

	p := newValidPayload("stale")
	p.traits = payload.Traits{IsDateTolerant: true, DateToleranceWindow: time.Minute, Timestamp: time.Now().Add(-time.Hour)}

	_, err := store.Ingest(p, false, true, time.Now())
	require.Error(t, err)
}

func TestPlainStoreIngestProcessOnceBypassesDuplicateCheck(t *testing.T) {
	db := memkv.New(kv.Tables)
	store := NewPlainStore(1, "cat", db, newTestRegistry())

	p := newValidPayload("boot")
	require.NoError(t, store.IngestProcessOnce(p))
	require.NoError(t, store.IngestProcessOnce(p))
	require.Len(t, store.GetMap(), 1)
}

func TestPlainStoreLoadRoundTrip(t *testing.T) {
	db := memkv.New(kv.Tables)
	reg := newTestRegistry()
	store := NewPlainStore(1, "cat", db, reg)

	p := newValidPayload("persisted")
	_, err := store.Ingest(p, false, false, time.Time{})
	require.NoError(t, err)
	require.NoError(t, store.Flush())

	reloaded := NewPlainStore(1, "cat", db, reg)
	require.NoError(t, reloaded.Load())
	require.Len(t, reloaded.GetMap(), 1)
}

func TestPlainStoreListenersNotifiedOnlyOnNewIngest(t *testing.T) {
	db := memkv.New(kv.Tables)
	store := NewPlainStore(1, "cat", db, newTestRegistry())

	var notified int
	store.AddListener(func(payload.AppendOnlyPayload) { notified++ })

	p := newValidPayload("notify-me")
	_, err := store.Ingest(p, false, false, time.Time{})
	require.NoError(t, err)
	_, err = store.Ingest(p, false, false, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, notified)
}

func TestPlainStoreMetricsCountAcceptedPayloads(t *testing.T) {
	db := memkv.New(kv.Tables)
	store := NewPlainStore(1, "cat", db, newTestRegistry())
	m := metrics.New()
	store.AttachMetrics(m)

	_, err := store.Ingest(newValidPayload("one"), false, false, time.Time{})
	require.NoError(t, err)
	_, err = store.Ingest(newValidPayload("two"), false, false, time.Time{})
	require.NoError(t, err)

	require.InDelta(t, 2, counterValue(t, m), 0.0001)
}

func counterValue(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.AppendOnlyPayloadsAccepted.Write(&out))
	return out.GetCounter().GetValue()
}
