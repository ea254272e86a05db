package p2pstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/trasherdk/haveno/metrics"
	"github.com/trasherdk/haveno/network"
	"github.com/trasherdk/haveno/payload"
	"github.com/trasherdk/haveno/protected"
)

// Every protocol-level rejection is a plain (false, nil) —
// no caller-visible errors escape the ingress path. A non-nil error from
// Add/Remove/Refresh means a local fault (malformed canonical encoding),
// not a hostile peer.

// AddOptions carries the per-call knobs shared by Add and AddMailbox.
type AddOptions struct {
	Sender         network.Connection
	AllowBroadcast bool
}

// AddDataMessage is the wire shape broadcast for a successful add and
// delivered on ingress when a peer gossips one to us.
type AddDataMessage struct {
	Entry protected.StoredEntry
}

// BroadcastAdd re-gossips the add message for an entry that is already
// stored. The get-data ingest path uses it to schedule the delayed
// re-broadcast of HIGH priority entries after an initial sync.
func (s *Storage) BroadcastAdd(ctx context.Context, se protected.StoredEntry, excluded network.Connection) {
	s.broadcast(ctx, AddDataMessage{Entry: se}, excluded)
}

// Add validates and stores a non-mailbox protected entry.
func (s *Storage) Add(entry *protected.Entry, opts AddOptions) (bool, error) {
	return s.addCommon(entry, func() error { return protected.ValidateForAdd(entry) }, opts)
}

// AddMailbox validates and stores a mailbox entry.
func (s *Storage) AddMailbox(entry *protected.MailboxEntry, opts AddOptions) (bool, error) {
	return s.addCommon(entry, func() error { return protected.ValidateMailboxForAdd(entry) }, opts)
}

func (s *Storage) addCommon(se protected.StoredEntry, validate func() error, opts AddOptions) (bool, error) {
	h, err := payload.Hash(se.PayloadValue())
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, hasStored := s.main[h]

	// Step 2: replay.
	if hasStored && se.SeqNr() <= stored.SeqNr() {
		s.observe(func(m *metrics.Metrics) { m.AddsRejected.WithLabelValues("replay").Inc() })
		return false, nil
	}

	// Step 3: add-once revocation.
	traits := se.PayloadValue().Traits()
	if traits.IsAddOnce && s.removed.Contains(h) {
		s.observe(func(m *metrics.Metrics) { m.AddsRejected.WithLabelValues("add_once_revoked").Inc() })
		return false, nil
	}

	// Step 4: expired on arrival.
	if se.IsExpired(s.now()) {
		s.observe(func(m *metrics.Metrics) { m.AddsRejected.WithLabelValues("expired").Inc() })
		return false, nil
	}

	// Step 5: sequence-number regression.
	if seqEntry, ok := s.seqMap.Get(h); ok && seqEntry.SeqNr > se.SeqNr() {
		s.observe(func(m *metrics.Metrics) { m.AddsRejected.WithLabelValues("seqnr_regression").Inc() })
		return false, nil
	}

	// Step 6: signature validation.
	if err := validate(); err != nil {
		s.log.Debug("add rejected", zap.String("hash", h.String()), zap.Error(err))
		s.observe(func(m *metrics.Metrics) { m.AddsRejected.WithLabelValues("invalid_signature").Inc() })
		return false, nil
	}

	// Step 7: owner-key mismatch against whatever is currently stored.
	if hasStored && stored.Owner() != se.Owner() {
		s.observe(func(m *metrics.Metrics) { m.AddsRejected.WithLabelValues("owner_mismatch").Inc() })
		return false, nil
	}

	// Step 8: filter predicate.
	if !s.filter(se.PayloadValue()) {
		s.log.Debug("add rejected by filter predicate", zap.String("hash", h.String()))
		s.observe(func(m *metrics.Metrics) { m.AddsRejected.WithLabelValues("filter_predicate").Inc() })
		return false, nil
	}

	// Step 9: accept.
	s.main[h] = se
	s.seqMap.Put(h, se.SeqNr())
	if traits.IsPersistable {
		s.protected.Put(h, se)
	}
	s.notify(Event{Hash: h, Entry: se, IsRemove: false})
	if opts.AllowBroadcast {
		s.broadcast(context.Background(), AddDataMessage{Entry: se}, opts.Sender)
	}
	s.observe(func(m *metrics.Metrics) {
		m.AddsAccepted.Inc()
		m.MainMapSize.Set(float64(len(s.main)))
	})
	return true, nil
}
