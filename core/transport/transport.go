// Package transport defines the dial/listen abstraction over an opaque
// byte-stream that concrete transports (TCP, UDX, QUIC-like) implement, per
// spec.md §4.7. Concrete transports are out of scope; this package and
// p2p/transport/memory (a reference in-memory transport for tests) are the
// only implementations carried here.
package transport

import (
	"context"
	"errors"
	"io"

	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"

	ma "github.com/multiformats/go-multiaddr"
)

var (
	ErrUnreachable   = errors.New("transport: address unreachable")
	ErrTransport     = errors.New("transport: transport-level error")
	ErrListenerClosed = errors.New("transport: listener closed")
)

// CapableConn is a RawConn once it is promised to be eventually upgradable
// (the teacher's naming for "RawConn" from spec.md §4.7); plain byte stream,
// authenticated at the network level only.
type CapableConn interface {
	io.Closer
	network.ConnMultiaddrs

	// IsClosed reports whether the connection is already closed.
	IsClosed() bool
}

// Transport dials and listens on multiaddrs, producing RawConns, per
// spec.md §4.7.
type Transport interface {
	// Dial opens an outbound connection to the peer at raddr.
	Dial(ctx context.Context, raddr ma.Multiaddr, p peer.ID) (CapableConn, error)
	// CanDial reports whether this transport knows how to dial raddr.
	CanDial(raddr ma.Multiaddr) bool
	// Listen listens for inbound connections on laddr.
	Listen(laddr ma.Multiaddr) (Listener, error)
	// Protocols returns the multiaddr protocol codes this transport knows
	// how to dial, e.g. [ip4, tcp].
	Protocols() []int
	// Proxy reports whether this transport proxies (e.g. relay, circuit).
	Proxy() bool
}

// Listener yields accepted RawConns and reports its bound multiaddr, per
// spec.md §4.7.
type Listener interface {
	io.Closer
	Accept() (CapableConn, error)
	Multiaddr() ma.Multiaddr
}

// Upgrader composes a RawConn into an authenticated, multiplexed Conn by
// running the security handshake and then the muxer, per spec.md §4.10.
type Upgrader interface {
	UpgradeListener(Transport, Listener) Listener
	UpgradeOutbound(ctx context.Context, t Transport, raw CapableConn, p peer.ID) (network.Conn, error)
	UpgradeInbound(ctx context.Context, t Transport, raw CapableConn) (network.Conn, error)
}
