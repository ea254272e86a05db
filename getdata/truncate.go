package getdata

import (
	"bytes"
	"sort"

	"github.com/google/btree"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/payload"
)

// candidate is the common shape the truncation pipeline operates over,
// regardless of whether it wraps a protected entry or an append-only
// payload — step dispatch only ever looks at traits and size.
type candidate struct {
	hash  cryptoutil.Hash
	traits payload.Traits
	size  int
}

func byHashOrder(items []candidate) {
	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(items[i].hash[:], items[j].hash[:]) < 0
	})
}

// truncate runs the five-step pipeline over items, returning the
// surviving hashes in the order they were admitted plus whether the size
// or count budget was ever exceeded.
func truncate(items []candidate, limit uint64, maxEntriesPerType int) (survivors []cryptoutil.Hash, wasTruncated bool) {
	byHash := make(map[cryptoutil.Hash]candidate, len(items))
	var mid, lowPlain, lowDated, high []candidate
	for _, c := range items {
		byHash[c.hash] = c
		switch {
		case c.traits.Priority == payload.PriorityHigh:
			high = append(high, c)
		case c.traits.Priority == payload.PriorityMid:
			mid = append(mid, c)
		case c.traits.IsDateSortedTruncatable:
			lowDated = append(lowDated, c)
		default:
			lowPlain = append(lowPlain, c)
		}
	}
	byHashOrder(mid)
	byHashOrder(lowPlain)
	byHashOrder(lowDated)
	byHashOrder(high)

	var result []cryptoutil.Hash

	// Step 1: all MID items, unconditionally.
	for _, c := range mid {
		result = append(result, c.hash)
	}

	// Step 2: LOW non-date-sorted items, admitted in deterministic (hash)
	// order until the running size would exceed limit.
	var totalSize uint64
	sizeExceeded := false
	for _, c := range lowPlain {
		if totalSize+uint64(c.size) > limit {
			sizeExceeded = true
			break
		}
		totalSize += uint64(c.size)
		result = append(result, c.hash)
	}

	// Step 3: LOW date-sorted-truncatable items, only attempted while the
	// size budget isn't already blown.
	if !sizeExceeded {
		var admitted []candidate
		for _, c := range lowDated {
			if totalSize+uint64(c.size) > limit {
				sizeExceeded = true
				break
			}
			totalSize += uint64(c.size)
			admitted = append(admitted, c)
		}

		itemCap := maxItemsCap(admitted)
		if itemCap > 0 && len(admitted) > itemCap {
			admitted = dropOldest(admitted, itemCap)
		}

		// Append in reverse date order (newest first) so a later count
		// truncation in step 4 cuts the oldest items, which now sit at the
		// tail of the slice.
		sort.Slice(admitted, func(i, j int) bool {
			if !admitted[i].traits.Timestamp.Equal(admitted[j].traits.Timestamp) {
				return admitted[i].traits.Timestamp.After(admitted[j].traits.Timestamp)
			}
			return bytes.Compare(admitted[i].hash[:], admitted[j].hash[:]) < 0
		})
		for _, c := range admitted {
			result = append(result, c.hash)
		}
	}
	wasTruncated = sizeExceeded

	// Step 4: global entry-count cap.
	if maxEntriesPerType > 0 && len(result) > maxEntriesPerType {
		result = result[:maxEntriesPerType]
		wasTruncated = true
	}

	// Step 5: HIGH items bypass both budgets entirely.
	for _, c := range high {
		result = append(result, c.hash)
	}

	return result, wasTruncated
}

// maxItemsCap picks the cap date-sorted-truncatable items collectively
// observe: the largest MaxItems declared by any candidate in the batch, so
// a single chatty category can't starve a quieter one sharing the same
// truncation step. Zero means "no declared cap".
func maxItemsCap(items []candidate) int {
	maxCap := 0
	for _, c := range items {
		if c.traits.MaxItems > maxCap {
			maxCap = c.traits.MaxItems
		}
	}
	return maxCap
}

// dropOldest keeps only the newest `keep` items, using a btree ordered by
// timestamp (then hash, to break ties deterministically) so the oldest
// entries can be identified and evicted without a full sort on every call.
func dropOldest(items []candidate, keep int) []candidate {
	type dated struct {
		when  int64
		hash  cryptoutil.Hash
	}
	less := func(a, b dated) bool {
		if a.when != b.when {
			return a.when < b.when
		}
		return bytes.Compare(a.hash[:], b.hash[:]) < 0
	}
	tr := btree.NewG[dated](32, less)
	byKey := make(map[dated]candidate, len(items))
	for _, c := range items {
		d := dated{when: c.traits.Timestamp.UnixNano(), hash: c.hash}
		tr.ReplaceOrInsert(d)
		byKey[d] = c
	}
	for tr.Len() > keep {
		oldest, ok := tr.Min()
		if !ok {
			break
		}
		tr.Delete(oldest)
		delete(byKey, oldest)
	}
	out := make([]candidate, 0, tr.Len())
	tr.Ascend(func(d dated) bool {
		out = append(out, byKey[d])
		return true
	})
	return out
}
