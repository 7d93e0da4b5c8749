// Package host defines the top-level Host facade binding swarm, peerstore,
// protocol router and identify, per spec.md §3/§6.
package host

import (
	"context"
	"io"

	"github.com/student-p2p/swarmkit/core/connmgr"
	"github.com/student-p2p/swarmkit/core/event"
	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/peerstore"
	"github.com/student-p2p/swarmkit/core/protocol"

	ma "github.com/multiformats/go-multiaddr"
)

// Host is the facade described in spec.md §6.
type Host interface {
	io.Closer

	ID() peer.ID
	Peerstore() peerstore.Peerstore
	Addrs() []ma.Multiaddr
	Network() network.Network
	Mux() *protocol.Switch
	EventBus() event.Bus
	ConnManager() connmgr.ConnManager

	Start()

	Connect(ctx context.Context, pi peer.AddrInfo) error
	NewStream(ctx context.Context, p peer.ID, pids ...protocol.ID) (network.Stream, error)

	SetStreamHandler(pid protocol.ID, handler network.StreamHandler)
	SetStreamHandlerMatch(pid protocol.ID, match func(protocol.ID) bool, handler network.StreamHandler)
	RemoveStreamHandler(pid protocol.ID)
}

// IdentifyService is the boundary contract the identify protocol
// collaborator satisfies (spec.md §6); declared here so Host implementations
// can hold an optional reference without importing p2p/protocol/identify.
type IdentifyService interface {
	IdentifyConn(network.Conn)
	IdentifyWait(network.Conn) <-chan struct{}
	Start()
	io.Closer
}
