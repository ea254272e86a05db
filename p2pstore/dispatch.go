package p2pstore

import (
	"github.com/trasherdk/haveno/network"
	"github.com/trasherdk/haveno/protected"
)

// RefreshOfferMessage carries a TTL refresh over the wire.
type RefreshOfferMessage struct {
	Offer protected.RefreshOffer
}

// OnMessage is the ingress entry point the NetworkNode delivers envelopes
// to. Gossiped mutations re-broadcast on success; envelope types this
// store doesn't own are ignored; the node's other listeners may still
// handle them.
func (s *Storage) OnMessage(envelope interface{}, conn network.Connection) {
	opts := AddOptions{Sender: conn, AllowBroadcast: true}
	switch msg := envelope.(type) {
	case AddDataMessage:
		switch e := msg.Entry.(type) {
		case *protected.Entry:
			_, _ = s.Add(e, opts)
		case *protected.MailboxEntry:
			_, _ = s.AddMailbox(e, opts)
		}
	case RemoveDataMessage:
		_, _ = s.Remove(msg.Request, RemoveOptions{Sender: conn, AllowBroadcast: true})
	case RemoveMailboxDataMessage:
		_, _ = s.RemoveMailbox(msg.Request, RemoveOptions{Sender: conn, AllowBroadcast: true})
	case RefreshOfferMessage:
		_, _ = s.Refresh(msg.Offer, opts)
	}
}

// RegisterWith subscribes the storage to node's message and disconnect
// streams. Call after Load, so ingress never races the initial restore.
func (s *Storage) RegisterWith(node network.NetworkNode) {
	node.AddMessageListener(s.OnMessage)
	node.AddDisconnectListener(s.OnPeerDisconnected)
}
