// Package getdata implements the get-data reconciliation protocol:
// request construction, response construction with its five-step
// truncation pipeline, and response ingest.
package getdata

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/trasherdk/haveno/appendonly"
	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/network"
	"github.com/trasherdk/haveno/p2pstore"
)

// GenerateNonce derives a fresh request nonce from a random UUID, folding
// its 16 bytes down to the wire's uint64 nonce field with XOR rather than
// truncation so both halves of the UUID's randomness contribute.
func GenerateNonce() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:])
}

// PreliminaryRequest is the first reconciliation request of a connection,
// sent with no requester version (the peer has no prior state to be
// "updated" relative to).
type PreliminaryRequest struct {
	Nonce         uint64
	ExcludedHashes map[cryptoutil.Hash]struct{}
}

// UpdateRequest is sent on a later reconciliation, once the connection
// and its capabilities are known.
type UpdateRequest struct {
	Sender        network.Connection
	Nonce         uint64
	ExcludedHashes map[cryptoutil.Hash]struct{}
}

// knownHashes collects every hash already known locally across all
// append-only stores (historical stores contribute only their live map)
// plus every hash in the main map.
func knownHashes(storage *p2pstore.Storage, registry *appendonly.Registry) map[cryptoutil.Hash]struct{} {
	out := make(map[cryptoutil.Hash]struct{})
	for h := range storage.Snapshot() {
		out[h] = struct{}{}
	}
	for _, store := range registry.All() {
		if hist, ok := store.(appendonly.HistoricalStore); ok {
			for h := range hist.GetMapOfLiveData() {
				out[h] = struct{}{}
			}
			continue
		}
		for h := range store.GetMap() {
			out[h] = struct{}{}
		}
	}
	return out
}

// BuildPreliminaryRequest gathers the known-hash set for the first
// request a connection sends.
func BuildPreliminaryRequest(nonce uint64, storage *p2pstore.Storage, registry *appendonly.Registry) PreliminaryRequest {
	return PreliminaryRequest{Nonce: nonce, ExcludedHashes: knownHashes(storage, registry)}
}

// BuildUpdateRequest is the same hash gathering, addressed to a specific
// connection once it's established.
func BuildUpdateRequest(sender network.Connection, nonce uint64, storage *p2pstore.Storage, registry *appendonly.Registry) UpdateRequest {
	return UpdateRequest{Sender: sender, Nonce: nonce, ExcludedHashes: knownHashes(storage, registry)}
}
