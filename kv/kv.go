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

// Package kv is the thin, table-oriented persistence abstraction the
// sequence-number map, removed-payloads set, protected-entry store and
// append-only stores are built on. Business logic never talks to a
// concrete engine directly; it opens a Tx/RwTx against one of the tables
// declared below. kv/mdbxkv and kv/memkv provide the two concrete engines.
package kv

import "context"

// DBSchemaVersion is bumped whenever a table's key or value layout changes.
var DBSchemaVersion = struct{ Major, Minor, Patch uint32 }{Major: 1, Minor: 0, Patch: 0}

const (
	// SequenceNumbers: key = payload hash (32 bytes), value = seqNr (8 bytes
	// big-endian) || unix-nano timestamp (8 bytes big-endian).
	SequenceNumbers = "SequenceNumbers"

	// RemovedPayloads: key = payload hash (32 bytes) of a retracted
	// add-once payload, value = empty.
	RemovedPayloads = "RemovedPayloads"

	// ProtectedEntries: key = payload hash (32 bytes), value = CBOR
	// encoding of the protected entry (payload + owner key + seqNr +
	// signature + creation timestamp). Holds only persistable payloads.
	ProtectedEntries = "ProtectedEntries"

	// AppendOnlyPayloads: key = category (1 byte) || payload hash (32
	// bytes), value = CBOR record of the payload's registered type name and
	// its snappy-compressed CBOR encoding. Historical categories additionally
	// prefix the protocol version (2 bytes) ahead of the hash.
	AppendOnlyPayloads = "AppendOnlyPayloads"
)

// Tables lists every table a store in this module may open. Engines create
// all of them eagerly at startup so that ingress never races table creation.
var Tables = []string{SequenceNumbers, RemovedPayloads, ProtectedEntries, AppendOnlyPayloads}

// Tx is a read-only view over one or more tables.
type Tx interface {
	// Get returns the value stored under key, or (nil, nil) if absent.
	Get(table string, key []byte) ([]byte, error)
	// ForEach calls walker for every key/value pair in table, in engine
	// iteration order. Returning an error from walker stops the scan.
	ForEach(table string, walker func(k, v []byte) error) error
}

// RwTx additionally allows mutation. Commit or Rollback must be called
// exactly once.
type RwTx interface {
	Tx
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
	Commit() error
	Rollback()
}

// RoDB opens read-only transactions.
type RoDB interface {
	View(ctx context.Context, f func(tx Tx) error) error
}

// RwDB opens read-write transactions and owns the engine's lifetime.
type RwDB interface {
	RoDB
	Update(ctx context.Context, f func(tx RwTx) error) error
	Close() error
}
