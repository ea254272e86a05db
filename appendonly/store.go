// Package appendonly implements the content-addressed, immutable store
// per payload category, optionally versioned so historical stores can
// answer "what's new since version V".
package appendonly

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/internal/listenerset"
	"github.com/trasherdk/haveno/internal/mathx"
	"github.com/trasherdk/haveno/internal/persist"
	"github.com/trasherdk/haveno/kv"
	"github.com/trasherdk/haveno/metrics"
	"github.com/trasherdk/haveno/payload"
)

// Store is the per-category append-only store service the registry
// iterates.
type Store interface {
	Category() string
	GetMap() map[cryptoutil.Hash]payload.AppendOnlyPayload
}

// HistoricalStore additionally answers "what's new since version V".
type HistoricalStore interface {
	Store
	GetMapOfLiveData() map[cryptoutil.Hash]payload.AppendOnlyPayload
	GetMapSinceVersion(v int) map[cryptoutil.Hash]payload.AppendOnlyPayload
}

// VerifyHashSize re-derives p's declared hash from its canonical fields
// and compares it against p.Hash(): append-only keys are their own payload
// hashes, so a mismatch means a corrupt or forged payload.
func VerifyHashSize(p payload.AppendOnlyPayload) error {
	want, err := payload.Hash(p)
	if err != nil {
		return fmt.Errorf("appendonly: hash payload: %w", err)
	}
	if want != p.Hash() {
		return fmt.Errorf("appendonly: declared hash does not match canonical encoding")
	}
	return nil
}

// PlainStore is a non-historical append-only store: one flat hash→payload
// map, persisted write-through.
type PlainStore struct {
	category byte
	name     string
	reg      *TypeRegistry
	db       kv.RwDB

	mu   sync.RWMutex
	data map[cryptoutil.Hash]payload.AppendOnlyPayload

	listeners *listenerset.Set[func(payload.AppendOnlyPayload)]

	pendingMu sync.Mutex
	pending   map[cryptoutil.Hash]payload.AppendOnlyPayload
	debounce  *persist.Debouncer

	metrics *metrics.Metrics
	log     *zap.Logger
}

// AttachMetrics wires m so Ingest reports newly accepted payloads. Optional.
func (s *PlainStore) AttachMetrics(m *metrics.Metrics) { s.metrics = m }

// AttachLogger wires l for the warn-level rejections (hash mismatch, date
// drift). Optional.
func (s *PlainStore) AttachLogger(l *zap.Logger) { s.log = l }

func NewPlainStore(category byte, name string, db kv.RwDB, reg *TypeRegistry) *PlainStore {
	s := &PlainStore{
		category:  category,
		name:      name,
		reg:       reg,
		db:        db,
		data:      make(map[cryptoutil.Hash]payload.AppendOnlyPayload),
		listeners: listenerset.New[func(payload.AppendOnlyPayload)](),
		pending:   make(map[cryptoutil.Hash]payload.AppendOnlyPayload),
		log:       zap.NewNop(),
	}
	s.debounce = persist.NewDebouncer(2*time.Second, s.flush)
	return s
}

func (s *PlainStore) Category() string { return s.name }

func (s *PlainStore) key(h cryptoutil.Hash) []byte {
	k := make([]byte, 0, 1+cryptoutil.Size)
	k = append(k, s.category)
	k = append(k, h.Bytes()...)
	return k
}

// Load reads every persisted entry for this category back into memory;
// called once at startup before ingress is accepted.
func (s *PlainStore) Load() error {
	return s.db.View(context.Background(), func(tx kv.Tx) error {
		return tx.ForEach(kv.AppendOnlyPayloads, func(k, v []byte) error {
			if len(k) == 0 || k[0] != s.category {
				return nil
			}
			p, err := decodePayload(s.reg, v)
			if err != nil {
				return fmt.Errorf("appendonly: load %s: %w", s.name, err)
			}
			s.mu.Lock()
			s.data[p.Hash()] = p
			s.mu.Unlock()
			return nil
		})
	})
}

// AddListener registers fn to be notified on every successful ingest.
// Returns a function that removes it.
func (s *PlainStore) AddListener(fn func(payload.AppendOnlyPayload)) func() {
	return s.listeners.Add(fn)
}

func (s *PlainStore) GetMap() map[cryptoutil.Hash]payload.AppendOnlyPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[cryptoutil.Hash]payload.AppendOnlyPayload, len(s.data))
	for h, p := range s.data {
		out[h] = p
	}
	return out
}

// Ingest adds a regular (non-process-once) payload.
func (s *PlainStore) Ingest(p payload.AppendOnlyPayload, allowRebroadcast, checkDate bool, now time.Time) (bool, error) {
	if err := VerifyHashSize(p); err != nil {
		s.log.Warn("payload hash mismatch", zap.String("store", s.name), zap.Error(err))
		return false, err
	}
	h := p.Hash()

	s.mu.RLock()
	_, present := s.data[h]
	s.mu.RUnlock()
	if present && !allowRebroadcast {
		return false, nil
	}

	if checkDate {
		t := p.Traits()
		if t.IsDateTolerant && driftExceeds(now, t.Timestamp, t.DateToleranceWindow) {
			s.log.Warn("payload outside date tolerance", zap.String("store", s.name), zap.String("hash", h.String()))
			return false, fmt.Errorf("appendonly: %s outside date tolerance", s.name)
		}
	}

	newlyAdded := !present
	if newlyAdded {
		s.mu.Lock()
		s.data[h] = p
		s.mu.Unlock()
		s.listeners.Notify(func(l func(payload.AppendOnlyPayload)) { l(p) })
		s.stage(h, p)
		if s.metrics != nil {
			s.metrics.AppendOnlyPayloadsAccepted.Inc()
		}
	}
	return newlyAdded, nil
}

// driftExceeds reports whether now and ts are farther apart than window,
// using mathx.AbsoluteDifference on unsigned nanoseconds instead of risking
// a sign flip on time.Duration subtraction near the int64 range limits.
func driftExceeds(now, ts time.Time, window time.Duration) bool {
	drift := mathx.AbsoluteDifference(uint64(now.UnixNano()), uint64(ts.UnixNano()))
	return drift > uint64(window)
}

// IngestProcessOnce is the initial-request fast path: skip the
// duplicate check and listener notification entirely, applying the payload
// on every call regardless of whether it's already present. Deciding when
// the fast path runs is left to the caller (getdata.ProcessResponse).
func (s *PlainStore) IngestProcessOnce(p payload.AppendOnlyPayload) error {
	if err := VerifyHashSize(p); err != nil {
		return err
	}
	h := p.Hash()
	s.mu.Lock()
	s.data[h] = p
	s.mu.Unlock()
	s.stage(h, p)
	return nil
}

func (s *PlainStore) stage(h cryptoutil.Hash, p payload.AppendOnlyPayload) {
	s.pendingMu.Lock()
	s.pending[h] = p
	s.pendingMu.Unlock()
	s.debounce.Request()
}

func (s *PlainStore) flush() error {
	s.pendingMu.Lock()
	toWrite := s.pending
	s.pending = make(map[cryptoutil.Hash]payload.AppendOnlyPayload)
	s.pendingMu.Unlock()
	if len(toWrite) == 0 {
		return nil
	}

	return s.db.Update(context.Background(), func(tx kv.RwTx) error {
		for h, p := range toWrite {
			enc, err := encodePayload(s.reg, p)
			if err != nil {
				return err
			}
			if err := tx.Put(kv.AppendOnlyPayloads, s.key(h), enc); err != nil {
				return fmt.Errorf("appendonly: put %s: %w", h, err)
			}
		}
		return nil
	})
}

// Flush forces a synchronous write of any unpersisted entries.
func (s *PlainStore) Flush() error {
	return s.debounce.Flush()
}
