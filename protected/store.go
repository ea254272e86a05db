package protected

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/internal/persist"
	"github.com/trasherdk/haveno/kv"
)

// Store is the durable half of the protected-entry store: the subset
// of the main map whose payloads are tagged Persistable, keyed by payload
// hash. The main store owns the in-memory map and mutex; Store only ever
// mirrors committed state to disk, debounced so a burst of adds doesn't
// turn into a burst of fsyncs.
type Store struct {
	db  kv.RwDB
	reg *TypeRegistry

	mu    sync.Mutex
	dirty map[cryptoutil.Hash]StoredEntry // nil value means "pending delete"

	debounce *persist.Debouncer
}

func NewStore(db kv.RwDB, reg *TypeRegistry) *Store {
	s := &Store{
		db:    db,
		reg:   reg,
		dirty: make(map[cryptoutil.Hash]StoredEntry),
	}
	s.debounce = persist.NewDebouncer(defaultFlushDelay, s.flush)
	return s
}

// defaultFlushDelay batches writes arriving within the same burst into a
// single mdbx transaction.
const defaultFlushDelay = 2 * time.Second

// Put stages se for persistence under hash and schedules a flush. The
// caller (p2pstore) is the lock-holder of truth; Store only needs the
// final value to write.
func (s *Store) Put(hash cryptoutil.Hash, se StoredEntry) {
	s.mu.Lock()
	s.dirty[hash] = se
	s.mu.Unlock()
	s.debounce.Request()
}

// Delete stages a removal of hash.
func (s *Store) Delete(hash cryptoutil.Hash) {
	s.mu.Lock()
	s.dirty[hash] = nil
	s.mu.Unlock()
	s.debounce.Request()
}

// Flush forces any pending writes out synchronously; used at shutdown.
func (s *Store) Flush() error {
	return s.debounce.Flush()
}

func (s *Store) flush() error {
	s.mu.Lock()
	pending := s.dirty
	s.dirty = make(map[cryptoutil.Hash]StoredEntry)
	s.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	return s.db.Update(context.Background(), func(tx kv.RwTx) error {
		for hash, se := range pending {
			if se == nil {
				if err := tx.Delete(kv.ProtectedEntries, hash.Bytes()); err != nil {
					return fmt.Errorf("protected: delete %s: %w", hash, err)
				}
				continue
			}
			enc, err := EncodeEntry(s.reg, se)
			if err != nil {
				return err
			}
			if err := tx.Put(kv.ProtectedEntries, hash.Bytes(), enc); err != nil {
				return fmt.Errorf("protected: put %s: %w", hash, err)
			}
		}
		return nil
	})
}

// Load reads every persisted entry back into a hash-keyed map, for
// the main store to install as its initial in-memory state on startup.
func (s *Store) Load() (map[cryptoutil.Hash]StoredEntry, error) {
	out := make(map[cryptoutil.Hash]StoredEntry)
	err := s.db.View(context.Background(), func(tx kv.Tx) error {
		return tx.ForEach(kv.ProtectedEntries, func(k, v []byte) error {
			hash, err := cryptoutil.HashFromBytes(k)
			if err != nil {
				return fmt.Errorf("protected: load: malformed key: %w", err)
			}
			se, err := DecodeEntry(s.reg, v)
			if err != nil {
				return fmt.Errorf("protected: load %s: %w", hash, err)
			}
			out[hash] = se
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
