package p2pstore

import (
	"context"
	"fmt"
	"time"

	"github.com/trasherdk/haveno/cryptoutil"
	"github.com/trasherdk/haveno/metrics"
	"github.com/trasherdk/haveno/network"
	"github.com/trasherdk/haveno/protected"
)

// RunExpirationSweep runs SweepExpired every interval until ctx is
// cancelled.
func (s *Storage) RunExpirationSweep(ctx context.Context, interval time.Duration) {
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepExpired()
		}
	}
}

// SweepExpired removes every main-map entry for which IsExpired holds,
// purging it from the protected-entry store too and notifying listeners.
// The sequence-number map is deliberately untouched: a stale late add for
// the same hash must still be rejected.
func (s *Storage) SweepExpired() {
	now := s.now()

	s.mu.Lock()
	var expired []cryptoutil.Hash
	for h, se := range s.main {
		if se.IsExpired(now) {
			expired = append(expired, h)
		}
	}
	events := make([]Event, 0, len(expired))
	for _, h := range expired {
		se := s.main[h]
		delete(s.main, h)
		if se.PayloadValue().Traits().IsPersistable {
			s.protected.Delete(h)
		}
		events = append(events, Event{Hash: h, Entry: se, IsRemove: true})
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.notify(ev)
	}
	if len(events) > 0 {
		s.observe(func(m *metrics.Metrics) {
			m.ExpirationsSwept.Add(float64(len(events)))
			m.MainMapSize.Set(float64(s.Size()))
		})
	}
}

// OnPeerDisconnected implements back-dating. On an
// unintended disconnect, every requires-owner-online entry owned by the
// departed peer has its creation timestamp moved earlier by half its TTL,
// so the next expiration sweep removes it unless the owner reappears with
// a refresh first.
func (s *Storage) OnPeerDisconnected(reason network.DisconnectReason, conn network.Connection) {
	if reason.IsIntended {
		return
	}
	addr := conn.PeerAddress()

	s.mu.Lock()
	defer s.mu.Unlock()
	for h, se := range s.main {
		traits := se.PayloadValue().Traits()
		if !traits.IsRequiresOwnerOnline || traits.OwnerAddress != addr {
			continue
		}
		backdated, err := backDateEntry(se, traits.TTL/2)
		if err != nil {
			continue
		}
		s.main[h] = backdated
	}
}

func backDateEntry(se protected.StoredEntry, d time.Duration) (protected.StoredEntry, error) {
	switch v := se.(type) {
	case *protected.Entry:
		bd := v.BackDate(d)
		return &bd, nil
	case *protected.MailboxEntry:
		bd := v.Entry.BackDate(d)
		return &protected.MailboxEntry{Entry: bd, ReceiverPubKey: v.ReceiverPubKey}, nil
	default:
		return nil, fmt.Errorf("p2pstore: unknown stored entry type %T", se)
	}
}
