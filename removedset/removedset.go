// Package removedset implements the removed-payloads set: a persistent
// set of hashes for add-once payloads that were permanently
// retracted, so that a later replayed add for the same hash is rejected
// forever rather than merely until the sequence-number map entry ages out.
package removedset

import (
	"context"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/internal/persist"
	"github.com/trasherdk/haveno/kv"
	"github.com/trasherdk/haveno/metrics"
)

// Set is the in-memory removed-payloads set, write-through persisted to db.
type Set struct {
	db kv.RwDB

	mu      sync.RWMutex
	hashes  mapset.Set[cryptoutil.Hash]
	pending mapset.Set[cryptoutil.Hash] // newly added since the last flush

	debounce *persist.Debouncer
	metrics  *metrics.Metrics
}

// AttachMetrics wires m so Add reports the set's current size. Optional.
func (s *Set) AttachMetrics(m *metrics.Metrics) { s.metrics = m }

// Load reads every persisted hash from db and installs it.
func Load(db kv.RwDB) (*Set, error) {
	s := &Set{
		db:      db,
		hashes:  mapset.NewThreadUnsafeSet[cryptoutil.Hash](),
		pending: mapset.NewThreadUnsafeSet[cryptoutil.Hash](),
	}
	s.debounce = persist.NewDebouncer(defaultFlushDelay, s.flush)

	err := db.View(context.Background(), func(tx kv.Tx) error {
		return tx.ForEach(kv.RemovedPayloads, func(k, _ []byte) error {
			h, err := cryptoutil.HashFromBytes(k)
			if err != nil {
				return fmt.Errorf("removedset: malformed key: %w", err)
			}
			s.hashes.Add(h)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

const defaultFlushDelay = 2 * time.Second

// Contains reports whether h has been permanently retracted.
func (s *Set) Contains(h cryptoutil.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hashes.Contains(h)
}

// Add permanently retracts h. Callers only do this for add-once
// payloads; the set itself doesn't look at traits.
func (s *Set) Add(h cryptoutil.Hash) {
	s.mu.Lock()
	alreadyPresent := s.hashes.Contains(h)
	s.hashes.Add(h)
	if !alreadyPresent {
		s.pending.Add(h)
	}
	s.mu.Unlock()
	s.debounce.Request()
	if s.metrics != nil && !alreadyPresent {
		s.metrics.RemovedSetSize.Set(float64(s.Size()))
	}
}

func (s *Set) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hashes.Cardinality()
}

// Flush forces a synchronous write of any unpersisted additions.
func (s *Set) Flush() error {
	return s.debounce.Flush()
}

func (s *Set) flush() error {
	s.mu.Lock()
	toWrite := s.pending
	s.pending = mapset.NewThreadUnsafeSet[cryptoutil.Hash]()
	s.mu.Unlock()
	if toWrite.Cardinality() == 0 {
		return nil
	}

	return s.db.Update(context.Background(), func(tx kv.RwTx) error {
		for h := range toWrite.Iter() {
			if err := tx.Put(kv.RemovedPayloads, h.Bytes(), []byte{}); err != nil {
				return fmt.Errorf("removedset: put %s: %w", h, err)
			}
		}
		return nil
	})
}
