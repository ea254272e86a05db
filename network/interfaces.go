// Package network states the external-collaborator contracts this module
// consumes but does not implement: wire transport, TLS/onion plumbing, and
// broadcast fan-out strategy. These are the interfaces p2pstore and
// getdata are written against, satisfied elsewhere.
package network

import "context"

// Connection identifies the peer a message arrived on or should be
// addressed to. Its concrete shape (socket, onion address, session key...)
// is a transport-layer concern outside this module.
type Connection interface {
	PeerAddress() string
}

// DisconnectReason describes why a Connection went away.
type DisconnectReason struct {
	// IsIntended distinguishes a voluntary peer shutdown from a transient
	// drop — only unintended disconnects trigger back-dating.
	IsIntended bool
}

// BroadcastListener observes fan-out completion; passed through
// Broadcaster.Broadcast unchanged.
type BroadcastListener interface {
	OnBroadcasted(message interface{}, numPeers int)
}

// Broadcaster is the consumed fan-out strategy: best-effort fan-out to
// the peer set minus the excluded sender.
type Broadcaster interface {
	Broadcast(ctx context.Context, message interface{}, excludedPeer Connection, listener BroadcastListener) error
}

// NetworkNode delivers inbound messages and disconnect notifications; the
// core registers itself as a listener.
type NetworkNode interface {
	AddMessageListener(func(envelope interface{}, conn Connection))
	AddDisconnectListener(func(reason DisconnectReason, conn Connection))
}
