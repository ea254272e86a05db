package appendonly

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/internal/listenerset"
	"github.com/trasherdk/haveno/internal/persist"
	"github.com/trasherdk/haveno/kv"
	"github.com/trasherdk/haveno/metrics"
	"github.com/trasherdk/haveno/payload"
)

type versionedPayload struct {
	payload payload.AppendOnlyPayload
	version int
}

// HistoricalStoreImpl is a versioned append-only store: every entry is
// tagged with a protocol version so responders can answer "what's new
// since version V". liveVersion is the current protocol version;
// GetMapOfLiveData answers what a preliminary get-data request should
// advertise as already-known — only the live map, since a requester's
// missing older versions are derived from its protocol version tag.
type HistoricalStoreImpl struct {
	category    byte
	name        string
	liveVersion int
	reg         *TypeRegistry
	db          kv.RwDB

	mu   sync.RWMutex
	data map[cryptoutil.Hash]versionedPayload

	listeners *listenerset.Set[func(payload.AppendOnlyPayload)]

	pendingMu sync.Mutex
	pending   map[cryptoutil.Hash]versionedPayload
	debounce  *persist.Debouncer

	metrics *metrics.Metrics
	log     *zap.Logger
}

// AttachMetrics wires m so Ingest reports newly accepted payloads. Optional.
func (s *HistoricalStoreImpl) AttachMetrics(m *metrics.Metrics) { s.metrics = m }

// AttachLogger wires l for the warn-level rejections (hash mismatch, date
// drift). Optional.
func (s *HistoricalStoreImpl) AttachLogger(l *zap.Logger) { s.log = l }

func NewHistoricalStore(category byte, name string, liveVersion int, db kv.RwDB, reg *TypeRegistry) *HistoricalStoreImpl {
	s := &HistoricalStoreImpl{
		category:    category,
		name:        name,
		liveVersion: liveVersion,
		reg:         reg,
		db:          db,
		data:        make(map[cryptoutil.Hash]versionedPayload),
		listeners:   listenerset.New[func(payload.AppendOnlyPayload)](),
		pending:     make(map[cryptoutil.Hash]versionedPayload),
		log:         zap.NewNop(),
	}
	s.debounce = persist.NewDebouncer(2*time.Second, s.flush)
	return s
}

func (s *HistoricalStoreImpl) Category() string { return s.name }

func (s *HistoricalStoreImpl) key(version int, h cryptoutil.Hash) []byte {
	k := make([]byte, 0, 1+2+cryptoutil.Size)
	k = append(k, s.category)
	var vb [2]byte
	binary.BigEndian.PutUint16(vb[:], uint16(version))
	k = append(k, vb[:]...)
	k = append(k, h.Bytes()...)
	return k
}

// Load reads every persisted entry for this category back into memory.
func (s *HistoricalStoreImpl) Load() error {
	return s.db.View(context.Background(), func(tx kv.Tx) error {
		return tx.ForEach(kv.AppendOnlyPayloads, func(k, v []byte) error {
			if len(k) < 1+2 || k[0] != s.category {
				return nil
			}
			version := int(binary.BigEndian.Uint16(k[1:3]))
			p, err := decodePayload(s.reg, v)
			if err != nil {
				return fmt.Errorf("appendonly: load %s: %w", s.name, err)
			}
			s.mu.Lock()
			s.data[p.Hash()] = versionedPayload{payload: p, version: version}
			s.mu.Unlock()
			return nil
		})
	})
}

func (s *HistoricalStoreImpl) AddListener(fn func(payload.AppendOnlyPayload)) func() {
	return s.listeners.Add(fn)
}

func (s *HistoricalStoreImpl) GetMap() map[cryptoutil.Hash]payload.AppendOnlyPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[cryptoutil.Hash]payload.AppendOnlyPayload, len(s.data))
	for h, vp := range s.data {
		out[h] = vp.payload
	}
	return out
}

// GetMapOfLiveData returns only the entries tagged with the store's current
// protocol version.
func (s *HistoricalStoreImpl) GetMapOfLiveData() map[cryptoutil.Hash]payload.AppendOnlyPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[cryptoutil.Hash]payload.AppendOnlyPayload)
	for h, vp := range s.data {
		if vp.version == s.liveVersion {
			out[h] = vp.payload
		}
	}
	return out
}

// GetMapSinceVersion returns every entry tagged with a protocol version at
// least v — what a get-updated-data responder owes an older peer.
func (s *HistoricalStoreImpl) GetMapSinceVersion(v int) map[cryptoutil.Hash]payload.AppendOnlyPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[cryptoutil.Hash]payload.AppendOnlyPayload)
	for h, vp := range s.data {
		if vp.version >= v {
			out[h] = vp.payload
		}
	}
	return out
}

// Ingest adds a versioned payload, tagging the insert with the payload's
// own ProtocolVersion().
func (s *HistoricalStoreImpl) Ingest(p payload.AppendOnlyPayload, allowRebroadcast, checkDate bool, now time.Time) (bool, error) {
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
		vp := versionedPayload{payload: p, version: p.ProtocolVersion()}
		s.mu.Lock()
		s.data[h] = vp
		s.mu.Unlock()
		s.listeners.Notify(func(l func(payload.AppendOnlyPayload)) { l(p) })
		s.stage(h, vp)
		if s.metrics != nil {
			s.metrics.AppendOnlyPayloadsAccepted.Inc()
		}
	}
	return newlyAdded, nil
}

func (s *HistoricalStoreImpl) IngestProcessOnce(p payload.AppendOnlyPayload) error {
	if err := VerifyHashSize(p); err != nil {
		return err
	}
	h := p.Hash()
	vp := versionedPayload{payload: p, version: p.ProtocolVersion()}
	s.mu.Lock()
	s.data[h] = vp
	s.mu.Unlock()
	s.stage(h, vp)
	return nil
}

func (s *HistoricalStoreImpl) stage(h cryptoutil.Hash, vp versionedPayload) {
	s.pendingMu.Lock()
	s.pending[h] = vp
	s.pendingMu.Unlock()
	s.debounce.Request()
}

func (s *HistoricalStoreImpl) flush() error {
	s.pendingMu.Lock()
	toWrite := s.pending
	s.pending = make(map[cryptoutil.Hash]versionedPayload)
	s.pendingMu.Unlock()
	if len(toWrite) == 0 {
		return nil
	}

	return s.db.Update(context.Background(), func(tx kv.RwTx) error {
		for h, vp := range toWrite {
			enc, err := encodePayload(s.reg, vp.payload)
			if err != nil {
				return err
			}
			if err := tx.Put(kv.AppendOnlyPayloads, s.key(vp.version, h), enc); err != nil {
				return fmt.Errorf("appendonly: put %s: %w", h, err)
			}
		}
		return nil
	})
}

func (s *HistoricalStoreImpl) Flush() error {
	return s.debounce.Flush()
}
