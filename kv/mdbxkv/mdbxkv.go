// Copyright 2021 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package mdbxkv is the durable kv.RwDB backend, a thin layer over
// libmdbx. It is the engine used for anything tagged persistable:
// the sequence-number map, the removed-payloads set and the protected-entry
// store.
package mdbxkv

import (
	"context"
	"fmt"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/gofrs/flock"

	"github.com/trasherdk/haveno/kv"
)

const defaultMapSize = 16 << 30 // 16GiB, grown lazily by mdbx on demand

type DB struct {
	env  *mdbx.Env
	lock *flock.Flock
}

// Open creates (if absent) and opens the mdbx environment rooted at dir,
// taking an exclusive file lock so two processes never share a data
// directory. tables are created up front so ingress never races DBI
// creation against a concurrent reader transaction.
func Open(dir string, tables []string) (*DB, error) {
	lock := flock.New(dir + "/LOCK")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("mdbxkv: acquire data dir lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("mdbxkv: data dir %s is locked by another process", dir)
	}

	env, err := mdbx.NewEnv(mdbx.Default)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("mdbxkv: new env: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(tables))); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("mdbxkv: set max dbs: %w", err)
	}
	if err := env.SetGeometry(-1, -1, defaultMapSize, -1, -1, 4096); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("mdbxkv: set geometry: %w", err)
	}
	if err := env.Open(dir, mdbx.NoReadahead, 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("mdbxkv: open %s: %w", dir, err)
	}

	db := &DB{env: env, lock: lock}
	if err := db.env.Update(func(txn *mdbx.Txn) error {
		for _, t := range tables {
			if _, err := txn.OpenDBI(t, mdbx.Create, nil, nil); err != nil {
				return fmt.Errorf("mdbxkv: create table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) View(_ context.Context, f func(kv.Tx) error) error {
	return db.env.View(func(txn *mdbx.Txn) error {
		return f(&tx{txn: txn})
	})
}

func (db *DB) Update(_ context.Context, f func(kv.RwTx) error) error {
	return db.env.Update(func(txn *mdbx.Txn) error {
		return f(&rwTx{tx: tx{txn: txn}})
	})
}

func (db *DB) Close() error {
	db.env.Close()
	if db.lock != nil {
		return db.lock.Unlock()
	}
	return nil
}

type tx struct{ txn *mdbx.Txn }

func (t *tx) dbi(table string) (mdbx.DBI, error) {
	return t.txn.OpenDBI(table, 0, nil, nil)
}

func (t *tx) Get(table string, key []byte) ([]byte, error) {
	dbi, err := t.dbi(table)
	if err != nil {
		return nil, fmt.Errorf("mdbxkv: open %s: %w", table, err)
	}
	v, err := t.txn.Get(dbi, key)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mdbxkv: get %s: %w", table, err)
	}
	return v, nil
}

func (t *tx) ForEach(table string, walker func(k, v []byte) error) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return fmt.Errorf("mdbxkv: open %s: %w", table, err)
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return fmt.Errorf("mdbxkv: cursor %s: %w", table, err)
	}
	defer cur.Close()

	k, v, err := cur.Get(nil, nil, mdbx.First)
	for err == nil {
		if walkErr := walker(k, v); walkErr != nil {
			return walkErr
		}
		k, v, err = cur.Get(nil, nil, mdbx.Next)
	}
	if err != nil && !mdbx.IsNotFound(err) {
		return fmt.Errorf("mdbxkv: scan %s: %w", table, err)
	}
	return nil
}

type rwTx struct{ tx }

func (t *rwTx) Put(table string, key, value []byte) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return fmt.Errorf("mdbxkv: open %s: %w", table, err)
	}
	if err := t.txn.Put(dbi, key, value, 0); err != nil {
		return fmt.Errorf("mdbxkv: put %s: %w", table, err)
	}
	return nil
}

func (t *rwTx) Delete(table string, key []byte) error {
	dbi, err := t.dbi(table)
	if err != nil {
		return fmt.Errorf("mdbxkv: open %s: %w", table, err)
	}
	if err := t.txn.Del(dbi, key, nil); err != nil && !mdbx.IsNotFound(err) {
		return fmt.Errorf("mdbxkv: delete %s: %w", table, err)
	}
	return nil
}

func (t *rwTx) Commit() error {
	_, err := t.txn.Commit()
	return err
}

func (t *rwTx) Rollback() { t.txn.Abort() }
