package p2pstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/trasherdk/haveno/metrics"
	"github.com/trasherdk/haveno/network"
	"github.com/trasherdk/haveno/protected"
)

// RemoveOptions carries the per-call knobs shared by Remove and
// RemoveMailbox.
type RemoveOptions struct {
	Sender         network.Connection
	AllowBroadcast bool
}

// RemoveDataMessage and RemoveMailboxDataMessage are the remove wire
// messages, broadcast on a successful remove and delivered on ingress.
type RemoveDataMessage struct {
	Request protected.RemoveRequest
}

type RemoveMailboxDataMessage struct {
	Request protected.RemoveRequest
}

// Remove implements the owner-initiated remove path.
func (s *Storage) Remove(req protected.RemoveRequest, opts RemoveOptions) (bool, error) {
	return s.removeCommon(req, false, RemoveDataMessage{Request: req}, opts)
}

// RemoveMailbox implements the receiver-initiated mailbox remove path:
// req.SignerPubKey must be the receiver's key, not the owner's.
func (s *Storage) RemoveMailbox(req protected.RemoveRequest, opts RemoveOptions) (bool, error) {
	return s.removeCommon(req, true, RemoveMailboxDataMessage{Request: req}, opts)
}

func (s *Storage) removeCommon(req protected.RemoveRequest, isMailbox bool, msg interface{}, opts RemoveOptions) (bool, error) {
	h := req.PayloadHash

	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: sequence number must strictly increase over any existing
	// sequence-number-map entry.
	if seqEntry, ok := s.seqMap.Get(h); ok && req.SequenceNumber <= seqEntry.SeqNr {
		return false, nil
	}

	// Step 2: signature validation.
	if err := protected.ValidateRemoveSignature(req); err != nil {
		s.log.Debug("remove rejected", zap.String("hash", h.String()), zap.Error(err))
		return false, nil
	}

	stored, hasStored := s.main[h]

	// Step 3: authorization-key match against whatever is currently stored
	// — the owner key for a regular remove, the receiver key for a mailbox
	// remove. The match is additional to the signature check above, never
	// a substitute for it.
	if hasStored {
		if isMailbox {
			receiver, ok := stored.Receiver()
			if !ok || receiver != req.SignerPubKey {
				return false, nil
			}
		} else if stored.Owner() != req.SignerPubKey {
			return false, nil
		}
	}

	// Step 4: advance the sequence-number map unconditionally, even if the
	// payload was never locally present — this is what makes remove-before-
	// add work.
	s.seqMap.Put(h, req.SequenceNumber)

	// Step 5: add-once revocation, decidable only if we have the payload's
	// traits on hand.
	if hasStored && stored.PayloadValue().Traits().IsAddOnce {
		s.removed.Add(h)
	}

	// Step 6: remove from the main map and protected-entry store.
	if hasStored {
		delete(s.main, h)
		if stored.PayloadValue().Traits().IsPersistable {
			s.protected.Delete(h)
		}
		s.notify(Event{Hash: h, Entry: stored, IsRemove: true})
	}

	// Step 7: broadcast unconditionally, subject to allowBroadcast.
	if opts.AllowBroadcast {
		s.broadcast(context.Background(), msg, opts.Sender)
	}
	s.observe(func(m *metrics.Metrics) {
		m.RemovesApplied.Inc()
		m.MainMapSize.Set(float64(len(s.main)))
	})
	return true, nil
}
