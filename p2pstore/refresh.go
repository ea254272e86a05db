package p2pstore

import (
	"fmt"
	"time"

	"github.com/trasherdk/haveno/metrics"
	"github.com/trasherdk/haveno/protected"
)

// Refresh implements the TTL refresh path. If the hash is unknown
// locally the offer is ignored outright — we never saw the add, so there
// is nothing to refresh. Otherwise the stored entry is rebuilt with a new
// sequence number, signature and creation timestamp, keeping the original
// payload and owner key, and run back through the regular add path so it
// gets the exact same sequence-number and signature checks a fresh add
// would.
func (s *Storage) Refresh(offer protected.RefreshOffer, opts AddOptions) (bool, error) {
	s.mu.RLock()
	stored, hasStored := s.main[offer.PayloadHash]
	s.mu.RUnlock()
	if !hasStored {
		return false, nil
	}

	rebuilt, err := rebuildForRefresh(stored, offer, s.now())
	if err != nil {
		return false, err
	}

	var ok bool
	switch se := rebuilt.(type) {
	case *protected.Entry:
		ok, err = s.Add(se, opts)
	case *protected.MailboxEntry:
		ok, err = s.AddMailbox(se, opts)
	default:
		return false, fmt.Errorf("p2pstore: unreachable: rebuilt entry has type %T", rebuilt)
	}
	if ok && err == nil {
		s.observe(func(m *metrics.Metrics) { m.RefreshesApplied.Inc() })
	}
	return ok, err
}

func rebuildForRefresh(stored protected.StoredEntry, offer protected.RefreshOffer, now time.Time) (protected.StoredEntry, error) {
	switch se := stored.(type) {
	case *protected.Entry:
		refreshed := se.WithRefresh(offer.SequenceNumber, offer.Signature, now)
		return &refreshed, nil
	case *protected.MailboxEntry:
		refreshed := se.Entry.WithRefresh(offer.SequenceNumber, offer.Signature, now)
		return &protected.MailboxEntry{Entry: refreshed, ReceiverPubKey: se.ReceiverPubKey}, nil
	default:
		return nil, fmt.Errorf("p2pstore: unknown stored entry type %T", stored)
	}
}
