// Package memkv is an in-process kv.RwDB used in tests and for payload
// classes that never ask to be persisted. It carries none of mdbxkv's
// durability but satisfies the same interface so store code never branches
// on which engine it was built against.
package memkv

import (
	"context"
	"sync"

	"github.com/trasherdk/haveno/kv"
)

type DB struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

func New(tables []string) *DB {
	db := &DB{tables: make(map[string]map[string][]byte, len(tables))}
	for _, t := range tables {
		db.tables[t] = make(map[string][]byte)
	}
	return db
}

func (db *DB) View(_ context.Context, f func(kv.Tx) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return f(&tx{db: db})
}

func (db *DB) Update(_ context.Context, f func(kv.RwTx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	t := &rwTx{tx: tx{db: db}}
	if err := f(t); err != nil {
		return err
	}
	return nil
}

func (db *DB) Close() error { return nil }

type tx struct{ db *DB }

func (t *tx) Get(table string, key []byte) ([]byte, error) {
	m, ok := t.db.tables[table]
	if !ok {
		return nil, nil
	}
	v, ok := m[string(key)]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (t *tx) ForEach(table string, walker func(k, v []byte) error) error {
	m, ok := t.db.tables[table]
	if !ok {
		return nil
	}
	for k, v := range m {
		if err := walker([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

type rwTx struct{ tx }

func (t *rwTx) Put(table string, key, value []byte) error {
	m, ok := t.db.tables[table]
	if !ok {
		m = make(map[string][]byte)
		t.db.tables[table] = m
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m[string(key)] = cp
	return nil
}

func (t *rwTx) Delete(table string, key []byte) error {
	if m, ok := t.db.tables[table]; ok {
		delete(m, string(key))
	}
	return nil
}

func (t *rwTx) Commit() error { return nil }
func (t *rwTx) Rollback()     {}
