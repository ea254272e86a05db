// Package seqnrmap implements the sequence-number map: the anti-replay
// ledger mapping a payload hash to the last (sequenceNr,
// timestamp) seen for it. Entries outlive their data by up to the purge
// age so a stale, late-arriving add or refresh for an already removed
// payload is still rejected.
package seqnrmap

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/internal/mathx"
	"github.com/trasherdk/haveno/internal/persist"
	"github.com/trasherdk/haveno/kv"
	"github.com/trasherdk/haveno/metrics"
)

// Entry is the sequence-number map's value type.
type Entry struct {
	SeqNr     uint64
	Timestamp time.Time
}

// Map is the in-memory sequence-number map, mirrored to disk through db.
// It has its own mutex, separate from the main store's, because removes
// update it even for payloads the main map has never held.
type Map struct {
	clock clock.Clock
	db    kv.RwDB

	mu      sync.RWMutex
	entries map[cryptoutil.Hash]Entry

	purgeAge           time.Duration
	maxSizeBeforePurge int

	debounce *persist.Debouncer
	metrics  *metrics.Metrics
}

// SetMaxSizeBeforePurge overrides the scheduled-purge threshold, normally
// injected from configuration.
func (m *Map) SetMaxSizeBeforePurge(n int) { m.maxSizeBeforePurge = n }

// AttachMetrics wires m so Put and Purge report size and purge counters.
// Optional — a Map with no attached Metrics behaves exactly as before.
func (m *Map) AttachMetrics(mt *metrics.Metrics) { m.metrics = mt }

// Load opens db, reads every persisted entry, drops anything older than
// purgeAge, and installs the result.
func Load(db kv.RwDB, clk clock.Clock, purgeAge time.Duration) (*Map, error) {
	m := &Map{
		clock:              clk,
		db:                 db,
		entries:            make(map[cryptoutil.Hash]Entry),
		purgeAge:           purgeAge,
		maxSizeBeforePurge: defaultMaxSizeBeforePurge,
	}
	m.debounce = persist.NewDebouncer(2*time.Second, m.flush)

	loaded := make(map[cryptoutil.Hash]Entry)
	err := db.View(context.Background(), func(tx kv.Tx) error {
		return tx.ForEach(kv.SequenceNumbers, func(k, v []byte) error {
			hash, err := cryptoutil.HashFromBytes(k)
			if err != nil {
				return fmt.Errorf("seqnrmap: malformed key: %w", err)
			}
			e, err := decodeEntry(v)
			if err != nil {
				return fmt.Errorf("seqnrmap: decode %s: %w", hash, err)
			}
			loaded[hash] = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	cutoff := clk.Now().Add(-purgeAge)
	for hash, e := range loaded {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		m.entries[hash] = e
	}
	return m, nil
}

// Get returns the stored entry for h, if any.
func (m *Map) Get(h cryptoutil.Hash) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[h]
	return e, ok
}

// Put records seqNr for h at the current time and schedules persistence.
// Callers are expected to have already checked monotonicity; Put
// additionally guards with MaxUint64Of so a stored sequence number is
// never lowered even if that check is ever skipped.
func (m *Map) Put(h cryptoutil.Hash, seqNr uint64) {
	m.mu.Lock()
	if existing, ok := m.entries[h]; ok {
		seqNr = mathx.MaxUint64Of(existing.SeqNr, seqNr)
	}
	m.entries[h] = Entry{SeqNr: seqNr, Timestamp: m.clock.Now()}
	m.mu.Unlock()
	m.debounce.Request()

	if m.metrics != nil {
		m.metrics.SequenceMapSize.Set(float64(m.Size()))
	}
	if m.Size() > m.maxSizeBeforePurge {
		m.Purge(m.purgeAge)
	}
}

// Size returns the number of entries currently held.
func (m *Map) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Purge drops every entry whose timestamp is older than olderThan,
// relative to the map's clock. Purging only ever shrinks the map — it
// never touches a still-present, still-current sequence number.
func (m *Map) Purge(olderThan time.Duration) {
	cutoff := m.clock.Now().Add(-olderThan)
	m.mu.Lock()
	dropped := 0
	for h, e := range m.entries {
		if e.Timestamp.Before(cutoff) {
			delete(m.entries, h)
			dropped++
		}
	}
	m.mu.Unlock()
	if m.metrics != nil && dropped > 0 {
		m.metrics.SequenceMapPurges.Inc()
		m.metrics.SequenceMapEntriesPurged.Add(float64(dropped))
		m.metrics.SequenceMapSize.Set(float64(m.Size()))
	}
	m.debounce.Request()
}

// Snapshot returns a defensive copy of every entry, for persistence or
// diagnostics.
func (m *Map) Snapshot() map[cryptoutil.Hash]Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[cryptoutil.Hash]Entry, len(m.entries))
	for h, e := range m.entries {
		out[h] = e
	}
	return out
}

// Flush forces a synchronous write of the current snapshot; used at
// shutdown.
func (m *Map) Flush() error {
	return m.debounce.Flush()
}

func (m *Map) flush() error {
	snap := m.Snapshot()
	return m.db.Update(context.Background(), func(tx kv.RwTx) error {
		for h, e := range snap {
			if err := tx.Put(kv.SequenceNumbers, h.Bytes(), encodeEntry(e)); err != nil {
				return fmt.Errorf("seqnrmap: put %s: %w", h, err)
			}
		}
		return nil
	})
}

// defaultMaxSizeBeforePurge is the scheduled-purge threshold a Map starts
// with; production wiring overrides it from config.Tuning via
// SetMaxSizeBeforePurge.
const defaultMaxSizeBeforePurge = 100_000

func encodeEntry(e Entry) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], e.SeqNr)
	binary.BigEndian.PutUint64(b[8:16], uint64(e.Timestamp.UnixNano()))
	return b
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) != 16 {
		return Entry{}, fmt.Errorf("seqnrmap: expected 16 byte value, got %d", len(b))
	}
	seqNr := binary.BigEndian.Uint64(b[0:8])
	ns := int64(binary.BigEndian.Uint64(b[8:16]))
	return Entry{SeqNr: seqNr, Timestamp: time.Unix(0, ns).UTC()}, nil
}
