// Package payload defines the abstract data-model types: every piece of
// network-shared state declares a Priority and a Traits bundle instead of
// implementing a pile of marker interfaces — the truncation and
// validation pipelines then dispatch on plain field lookups.
package payload

import (
	"time"

	"github.com/trasherdk/haveno/capset"
	"github.com/trasherdk/haveno/cryptoutil"
)

// Priority controls get-data response truncation tiering.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMid
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMid:
		return "MID"
	case PriorityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Traits bundles every capability tag a payload may carry. Zero-valued
// fields mean "this payload does not have that trait" — e.g. MaxItems is
// meaningless unless IsDateSortedTruncatable is set.
type Traits struct {
	Priority Priority

	RequiredCapabilities capset.Set

	// IsDateTolerant marks a payload that self-reports a validity window;
	// DateToleranceWindow is how far from "now" Timestamp may drift.
	IsDateTolerant      bool
	DateToleranceWindow time.Duration

	// IsDateSortedTruncatable marks a payload eligible for step 3 of the
	// truncation pipeline; Timestamp orders it and MaxItems bounds how
	// many of this kind survive truncation.
	IsDateSortedTruncatable bool
	MaxItems                int

	IsProcessOnce         bool
	IsAddOnce             bool
	IsPersistable         bool
	IsRequiresOwnerOnline bool

	// TTL and OwnerAddress only matter when IsRequiresOwnerOnline is set:
	// TTL drives expiration and back-dating, OwnerAddress is
	// compared against a disconnecting peer's address.
	TTL          time.Duration
	OwnerAddress string

	// Timestamp backs both date-tolerance and date-sorted-truncation.
	Timestamp time.Time
}

// Payload is the abstract network-shared object. Concrete payload
// types embed their own fields and implement Traits and CanonicalFields.
type Payload interface {
	Traits() Traits
	// CanonicalFields returns the value canonical-encoded for hashing and
	// signing. It must contain only the payload's semantic content — never
	// a timestamp assigned at ingress, or two peers would compute
	// different hashes for the same logical payload.
	CanonicalFields() interface{}
}

func Hash(p Payload) (cryptoutil.Hash, error) {
	return cryptoutil.HashPayload(p.CanonicalFields())
}

// AppendOnlyPayload is content-addressed and immutable. Hash must equal
// the canonical-encoding hash — VerifyHashSize re-derives it and compares.
type AppendOnlyPayload interface {
	Payload
	Hash() cryptoutil.Hash
	// ProtocolVersion is 0 for non-historical payloads. Historical stores
	// use it to answer "what's new since version V".
	ProtocolVersion() int
}

// ProtectedPayload is wrapped by a protected storage entry: owned,
// sequenced and signed, as opposed to self-verifying by hash.
type ProtectedPayload interface {
	Payload
}

// MailboxPayload additionally names a receiver; only the receiver's key may
// authorize its removal.
type MailboxPayload interface {
	ProtectedPayload
	ReceiverPubKey() cryptoutil.PublicKey
}

// Categorized is implemented by append-only payloads that know which
// append-only store owns them. Response ingest uses
// it to route a flat wire-level payload list back to its store without
// needing a second, parallel message schema per category.
type Categorized interface {
	Category() string
}
