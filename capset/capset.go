// Package capset represents peer/payload capability requirements as a
// RoaringBitmap of small integer capability IDs. Capability names are
// assigned once at registration time (see Register); the bitmap itself
// never sees strings, keeping the gating check in the get-data response
// path a handful of word-level bitwise ops instead of string comparisons.
package capset

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// ID is a capability's small integer identifier.
type ID uint32

// Set is an immutable-by-convention capability set: callers build one with
// Of/Add and compare with Contains.
type Set struct {
	bitmap *roaring.Bitmap
}

func Empty() Set {
	return Set{bitmap: roaring.New()}
}

func Of(ids ...ID) Set {
	s := Empty()
	for _, id := range ids {
		s.bitmap.Add(uint32(id))
	}
	return s
}

func (s Set) Add(id ID) Set {
	out := Empty()
	if s.bitmap != nil {
		out.bitmap = s.bitmap.Clone()
	}
	out.bitmap.Add(uint32(id))
	return out
}

func (s Set) IsEmpty() bool {
	return s.bitmap == nil || s.bitmap.IsEmpty()
}

// Contains reports whether every capability in required is present in s —
// the check shouldTransmitPayloadToPeer runs for a payload's required
// capabilities against a peer's advertised set.
func (s Set) Contains(required Set) bool {
	if required.IsEmpty() {
		return true
	}
	if s.bitmap == nil {
		return false
	}
	return roaring.AndNot(required.bitmap, s.bitmap).IsEmpty()
}

func (s Set) Slice() []ID {
	if s.bitmap == nil {
		return nil
	}
	vals := s.bitmap.ToArray()
	out := make([]ID, len(vals))
	for i, v := range vals {
		out[i] = ID(v)
	}
	return out
}

// Registry assigns stable IDs to human-readable capability names so wire
// code and config files can refer to "mailbox-v2" instead of a raw integer.
type Registry struct {
	mu   sync.Mutex
	ids  map[string]ID
	next ID
}

func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]ID)}
}

func (r *Registry) Register(name string) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := r.next
	r.next++
	r.ids[name] = id
	return id
}

func (r *Registry) Lookup(name string) (ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[name]
	return id, ok
}
