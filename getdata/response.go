package getdata

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/trasherdk/haveno/appendonly"
	"github.com/trasherdk/haveno/capset"
	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/metrics"
	"github.com/trasherdk/haveno/p2pstore"
	"github.com/trasherdk/haveno/payload"
	"github.com/trasherdk/haveno/protected"
)

// sizeCache memoizes serializedSize by payload hash: a get-data response is
// often rebuilt for several peers in a row against the same candidate pool,
// and re-running CanonicalEncode over every candidate each time is wasted
// work once the first caller has already paid for it.
var sizeCache, _ = lru.New[cryptoutil.Hash, int](4096)

func cachedSerializedSize(h cryptoutil.Hash, p payload.Payload) int {
	if n, ok := sizeCache.Get(h); ok {
		return n
	}
	n := serializedSize(p)
	sizeCache.Add(h, n)
	return n
}

// Response carries everything the requester was missing, subject to the
// truncation pipeline.
type Response struct {
	ProtectedEntries         []protected.StoredEntry
	AppendOnlyPayloads       []payload.AppendOnlyPayload
	Nonce                    uint64
	IsGetUpdatedDataResponse bool
	WasTruncated             bool
}

// BuildParams bundles a response build's inputs.
type BuildParams struct {
	ExcludedHashes    map[cryptoutil.Hash]struct{}
	RequesterVersion  *int // nil: requester is pre-versioning; send all historical data
	MaxEntriesPerType int
	PeerCapabilities  capset.Set
	// AppendOnlyShare and ProtectedShare are each side's slice of the
	// maxBytes budget, already split 25/75 by the caller (config.Tuning).
	AppendOnlyShare uint64
	ProtectedShare  uint64
	Nonce             uint64
	IsUpdateResponse  bool
	// Metrics is optional; a nil Metrics disables instrumentation.
	Metrics *metrics.Metrics
}

// shouldTransmit reports whether the peer holds every capability the
// payload requires.
func shouldTransmit(peerCaps capset.Set, traits payload.Traits) bool {
	return peerCaps.Contains(traits.RequiredCapabilities)
}

func serializedSize(p payload.Payload) int {
	enc, err := cryptoutil.CanonicalEncode(p.CanonicalFields())
	if err != nil {
		return 0
	}
	return len(enc)
}

// BuildResponse builds a get-data response: candidate pool construction
// (excluded-hash + capability filtering) followed by the five-step
// truncation pipeline, run independently for each side.
func BuildResponse(params BuildParams, storage *p2pstore.Storage, registry *appendonly.Registry) Response {
	protectedByHash := make(map[cryptoutil.Hash]protected.StoredEntry)
	var protectedCandidates []candidate
	for h, se := range storage.Snapshot() {
		if _, excluded := params.ExcludedHashes[h]; excluded {
			continue
		}
		traits := se.PayloadValue().Traits()
		if !shouldTransmit(params.PeerCapabilities, traits) {
			continue
		}
		protectedByHash[h] = se
		protectedCandidates = append(protectedCandidates, candidate{
			hash:   h,
			traits: traits,
			size:   cachedSerializedSize(h, se.PayloadValue()),
		})
	}

	appendByHash := make(map[cryptoutil.Hash]payload.AppendOnlyPayload)
	var appendCandidates []candidate
	for _, store := range registry.All() {
		m := appendOnlyCandidatePool(store, params.RequesterVersion)
		for h, p := range m {
			if _, excluded := params.ExcludedHashes[h]; excluded {
				continue
			}
			traits := p.Traits()
			if !shouldTransmit(params.PeerCapabilities, traits) {
				continue
			}
			appendByHash[h] = p
			appendCandidates = append(appendCandidates, candidate{
				hash:   h,
				traits: traits,
				size:   cachedSerializedSize(h, p),
			})
		}
	}

	protectedHashes, protectedTruncated := truncate(protectedCandidates, params.ProtectedShare, params.MaxEntriesPerType)
	appendHashes, appendTruncated := truncate(appendCandidates, params.AppendOnlyShare, params.MaxEntriesPerType)

	resp := Response{
		Nonce:                    params.Nonce,
		IsGetUpdatedDataResponse: params.IsUpdateResponse,
		WasTruncated:             protectedTruncated || appendTruncated,
	}
	for _, h := range protectedHashes {
		resp.ProtectedEntries = append(resp.ProtectedEntries, protectedByHash[h])
	}
	for _, h := range appendHashes {
		resp.AppendOnlyPayloads = append(resp.AppendOnlyPayloads, appendByHash[h])
	}

	if params.Metrics != nil {
		params.Metrics.GetDataResponsesBuilt.Inc()
		if resp.WasTruncated {
			params.Metrics.GetDataResponsesTruncated.Inc()
		}
	}
	return resp
}

// appendOnlyCandidatePool picks GetMap or GetMapSinceVersion depending on
// whether store is historical and whether the requester sent a version. A requester that predates versioning
// sends none and receives all historical data.
func appendOnlyCandidatePool(store appendonly.Store, requesterVersion *int) map[cryptoutil.Hash]payload.AppendOnlyPayload {
	hist, ok := store.(appendonly.HistoricalStore)
	if !ok {
		return store.GetMap()
	}
	if requesterVersion == nil {
		return hist.GetMap()
	}
	return hist.GetMapSinceVersion(*requesterVersion)
}
