package getdata

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/trasherdk/haveno/appendonly"
	"github.com/trasherdk/haveno/network"
	"github.com/trasherdk/haveno/p2pstore"
	"github.com/trasherdk/haveno/payload"
	"github.com/trasherdk/haveno/protected"
)

// SessionState tracks the per-connection ingest state the process-once
// fast path needs.
type SessionState struct {
	mu                    sync.Mutex
	initialRequestApplied bool
}

func (s *SessionState) applied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialRequestApplied
}

func (s *SessionState) markApplied() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialRequestApplied = true
}

// ProcessResponse applies a get-data response: protected entries run the
// regular add path with broadcast suppressed (we're only
// connected to the seed peer, fan-out would be pointless); HIGH-priority
// entries additionally get a delayed rebroadcast scheduled for resilience.
// Append-only payloads route to their owning store; process-once payloads
// only apply on the first response of a session, or on any truncated
// response (which signals the sync may be incomplete and worth retrying).
func ProcessResponse(
	resp Response,
	storage *p2pstore.Storage,
	registry *appendonly.Registry,
	session *SessionState,
	sender network.Connection,
	clk clock.Clock,
	rebroadcastDelay time.Duration,
) {
	for _, se := range resp.ProtectedEntries {
		added := addStoredEntry(storage, se, sender)
		if added && se.PayloadValue().Traits().Priority == payload.PriorityHigh {
			scheduleRebroadcast(storage, se, sender, clk, rebroadcastDelay)
		}
	}

	applyProcessOnce := !session.applied() || resp.WasTruncated
	for _, p := range resp.AppendOnlyPayloads {
		ingestAppendOnly(p, registry, applyProcessOnce)
	}

	session.markApplied()
}

// AddPersistableNetworkPayloadMessage is the broadcast wire shape for a
// newly gossiped append-only payload.
type AddPersistableNetworkPayloadMessage struct {
	Payload payload.AppendOnlyPayload
}

// OnMessage handles append-only gossip arriving outside a get-data
// exchange, routing the payload to its owning store with the date check
// enabled. It reports whether the payload was newly added, so the
// caller can re-gossip it. Envelope types this path doesn't own are
// ignored.
func OnMessage(envelope interface{}, registry *appendonly.Registry, now time.Time) bool {
	msg, ok := envelope.(AddPersistableNetworkPayloadMessage)
	if !ok {
		return false
	}
	cat, ok := msg.Payload.(payload.Categorized)
	if !ok {
		return false
	}
	store, ok := registry.Lookup(cat.Category())
	if !ok {
		return false
	}
	switch s := store.(type) {
	case *appendonly.PlainStore:
		added, err := s.Ingest(msg.Payload, false, true, now)
		return err == nil && added
	case *appendonly.HistoricalStoreImpl:
		added, err := s.Ingest(msg.Payload, false, true, now)
		return err == nil && added
	}
	return false
}

func addStoredEntry(storage *p2pstore.Storage, se protected.StoredEntry, sender network.Connection) bool {
	opts := p2pstore.AddOptions{Sender: sender, AllowBroadcast: false}
	switch v := se.(type) {
	case *protected.Entry:
		ok, err := storage.Add(v, opts)
		return err == nil && ok
	case *protected.MailboxEntry:
		ok, err := storage.AddMailbox(v, opts)
		return err == nil && ok
	default:
		return false
	}
}

func scheduleRebroadcast(storage *p2pstore.Storage, se protected.StoredEntry, sender network.Connection, clk clock.Clock, delay time.Duration) {
	clk.AfterFunc(delay, func() {
		storage.BroadcastAdd(context.Background(), se, sender)
	})
}

func ingestAppendOnly(p payload.AppendOnlyPayload, registry *appendonly.Registry, applyProcessOnce bool) {
	cat, ok := p.(payload.Categorized)
	if !ok {
		return
	}
	store, ok := registry.Lookup(cat.Category())
	if !ok {
		return
	}

	if !p.Traits().IsProcessOnce {
		ingestRegular(store, p)
		return
	}
	if !applyProcessOnce {
		return
	}
	ingestOnce(store, p)
}

func ingestRegular(store appendonly.Store, p payload.AppendOnlyPayload) {
	switch s := store.(type) {
	case *appendonly.PlainStore:
		_, _ = s.Ingest(p, false, false, time.Time{})
	case *appendonly.HistoricalStoreImpl:
		_, _ = s.Ingest(p, false, false, time.Time{})
	}
}

func ingestOnce(store appendonly.Store, p payload.AppendOnlyPayload) {
	switch s := store.(type) {
	case *appendonly.PlainStore:
		_ = s.IngestProcessOnce(p)
	case *appendonly.HistoricalStoreImpl:
		_ = s.IngestProcessOnce(p)
	}
}
