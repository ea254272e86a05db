// Package p2pstore implements the main store: the in-memory map of live
// protected entries, and the orchestration of validation, mutation,
// broadcast and expiration around it.
package p2pstore

import (
	"context"
	"time"

	"github.com/anacrolix/sync"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/internal/listenerset"
	"github.com/trasherdk/haveno/metrics"
	"github.com/trasherdk/haveno/network"
	"github.com/trasherdk/haveno/protected"
	"github.com/trasherdk/haveno/removedset"
	"github.com/trasherdk/haveno/seqnrmap"
)

// Event is what hashmap-changed listeners are notified with on every
// accepted add and remove.
type Event struct {
	Hash     cryptoutil.Hash
	Entry    protected.StoredEntry // the added entry, or the entry that was removed
	IsRemove bool
}

// FilterPredicate is a final accept/reject hook evaluated after all
// protocol-level checks pass.
type FilterPredicate func(payload interface{}) bool

// Storage is the main store: the map of live protected entries plus the
// collaborators its algorithms need.
type Storage struct {
	mu  sync.RWMutex
	main map[cryptoutil.Hash]protected.StoredEntry

	seqMap    *seqnrmap.Map
	removed   *removedset.Set
	protected *protected.Store

	listeners *listenerset.Set[func(Event)]

	clock       clock.Clock
	broadcaster network.Broadcaster
	filter      FilterPredicate
	metrics     *metrics.Metrics
	log         *zap.Logger
}

// Config bundles Storage's collaborators.
type Config struct {
	SeqMap      *seqnrmap.Map
	Removed     *removedset.Set
	Protected   *protected.Store
	Clock       clock.Clock
	Broadcaster network.Broadcaster
	// Filter is optional; a nil Filter accepts everything.
	Filter FilterPredicate
	// Metrics is optional; a nil Metrics disables instrumentation.
	Metrics *metrics.Metrics
	// Logger is optional; a nil Logger discards everything. Rejections on
	// the ingress path never log above debug.
	Logger *zap.Logger
}

// New constructs a Storage over an empty main map. Callers that need to
// restore persisted protected entries should follow with Load.
func New(cfg Config) *Storage {
	filter := cfg.Filter
	if filter == nil {
		filter = func(interface{}) bool { return true }
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Storage{
		main:        make(map[cryptoutil.Hash]protected.StoredEntry),
		seqMap:      cfg.SeqMap,
		removed:     cfg.Removed,
		protected:   cfg.Protected,
		listeners:   listenerset.New[func(Event)](),
		clock:       cfg.Clock,
		broadcaster: cfg.Broadcaster,
		filter:      filter,
		metrics:     cfg.Metrics,
		log:         log,
	}
}

// observe runs fn against the metrics bundle (accept/reject counters and
// size gauges), if one was configured. No-op when Config.Metrics is nil.
func (s *Storage) observe(fn func(*metrics.Metrics)) {
	if s.metrics == nil {
		return
	}
	fn(s.metrics)
}

// Load installs every persisted protected entry into the main map. Must
// complete before any ingress is accepted.
func (s *Storage) Load() error {
	entries, err := s.protected.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, se := range entries {
		s.main[h] = se
	}
	return nil
}

// AddListener registers fn for every add/remove on the main map.
func (s *Storage) AddListener(fn func(Event)) func() {
	return s.listeners.Add(fn)
}

// Get returns the currently stored entry for h, if any.
func (s *Storage) Get(h cryptoutil.Hash) (protected.StoredEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	se, ok := s.main[h]
	return se, ok
}

// Size returns the number of entries currently in the main map.
func (s *Storage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.main)
}

// Snapshot returns a defensive copy of the main map, e.g. for the get-data
// candidate pool.
func (s *Storage) Snapshot() map[cryptoutil.Hash]protected.StoredEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[cryptoutil.Hash]protected.StoredEntry, len(s.main))
	for h, se := range s.main {
		out[h] = se
	}
	return out
}

func (s *Storage) broadcast(ctx context.Context, message interface{}, excluded network.Connection) {
	if s.broadcaster == nil {
		return
	}
	_ = s.broadcaster.Broadcast(ctx, message, excluded, nil)
}

func (s *Storage) notify(ev Event) {
	s.listeners.Notify(func(fn func(Event)) { fn(ev) })
}

// now is a small indirection so every algorithm in this package reads time
// through the same injected clock.
func (s *Storage) now() time.Time { return s.clock.Now() }
