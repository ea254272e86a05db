// Package config holds the construction-time tuning parameters: purge
// age, TTL sweep interval, sequence-number map purge threshold, and the
// get-data response size/count budgets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// Tuning bundles every tuning knob. Fields use datasize.ByteSize instead
// of a bare int wherever a field expresses a size, so a config file can
// say "256KB" instead of a magic number of bytes.
type Tuning struct {
	// PurgeAge is how long a sequence-number-map entry outlives its data
	// before a scheduled purge may drop it.
	PurgeAge time.Duration `yaml:"purge_age"`

	// CheckTTLInterval is how often the expiration sweep runs.
	CheckTTLInterval time.Duration `yaml:"check_ttl_interval"`

	// MaxSequenceNumberMapSizeBeforePurge is the map size past which a
	// Put triggers a scheduled purge.
	MaxSequenceNumberMapSizeBeforePurge int `yaml:"max_sequence_number_map_size_before_purge"`

	// MaxPermittedMessageSize bounds a single get-data response; the
	// working size budget is ResponseSizeBudgetFraction of this.
	MaxPermittedMessageSize datasize.ByteSize `yaml:"max_permitted_message_size"`

	// ResponseSizeBudgetFraction is the share of MaxPermittedMessageSize
	// a response build may actually spend.
	ResponseSizeBudgetFraction float64 `yaml:"response_size_budget_fraction"`

	// AppendOnlyAllocationFraction and ProtectedAllocationFraction split
	// the size budget 25%/75% between append-only payloads and protected
	// entries.
	AppendOnlyAllocationFraction float64 `yaml:"append_only_allocation_fraction"`
	ProtectedAllocationFraction  float64 `yaml:"protected_allocation_fraction"`

	// MaxEntriesPerType is the per-side entry-count ceiling step 4 of the
	// truncation pipeline enforces.
	MaxEntriesPerType int `yaml:"max_entries_per_type"`

	// InitialRebroadcastDelay is how long response ingest waits before
	// re-gossiping a HIGH-priority entry.
	InitialRebroadcastDelay time.Duration `yaml:"initial_rebroadcast_delay"`
}

// Default returns the stock tuning values. MaxPermittedMessageSize and
// MaxSequenceNumberMapSizeBeforePurge are deployment-dependent and left
// at conservative defaults.
func Default() Tuning {
	return Tuning{
		PurgeAge:                            10 * 24 * time.Hour,
		CheckTTLInterval:                    60 * time.Second,
		MaxSequenceNumberMapSizeBeforePurge:  100_000,
		MaxPermittedMessageSize:              10 * datasize.MB,
		ResponseSizeBudgetFraction:           0.6,
		AppendOnlyAllocationFraction:         0.25,
		ProtectedAllocationFraction:          0.75,
		MaxEntriesPerType:                    2000,
		InitialRebroadcastDelay:              60 * time.Second,
	}
}

// ResponseSizeBudget returns maxBytes = ResponseSizeBudgetFraction ×
// MaxPermittedMessageSize.
func (t Tuning) ResponseSizeBudget() uint64 {
	return uint64(float64(t.MaxPermittedMessageSize.Bytes()) * t.ResponseSizeBudgetFraction)
}

// AppendOnlyBudget and ProtectedBudget split ResponseSizeBudget between
// the two response sides.
func (t Tuning) AppendOnlyBudget() uint64 {
	return uint64(float64(t.ResponseSizeBudget()) * t.AppendOnlyAllocationFraction)
}

func (t Tuning) ProtectedBudget() uint64 {
	return uint64(float64(t.ResponseSizeBudget()) * t.ProtectedAllocationFraction)
}

// Load reads a YAML config file, starting from Default() so a file only
// needs to override the fields it cares about.
func Load(path string) (Tuning, error) {
	t := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Tuning{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return t, nil
}
