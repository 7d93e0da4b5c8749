// Package network defines the Conn, Stream and muxer abstractions that the
// swarm orchestrates, and the notifiee interface observers implement.
// Grounded on spec.md §3/§4.7-§4.10/§4.13.
package network

import (
	"context"
	"io"
	"time"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/protocol"

	ma "github.com/multiformats/go-multiaddr"
)

// Direction indicates which side of a Conn/Stream initiated it.
type Direction int

const (
	DirUnknown Direction = iota
	DirInbound
	DirOutbound
)

func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "Inbound"
	case DirOutbound:
		return "Outbound"
	default:
		return "Unknown"
	}
}

// Connectedness signals whether a peer is reachable, per spec.md §3.
type Connectedness int

const (
	NotConnected Connectedness = iota
	Connected
	CanConnect
	CannotConnect
	Limited
)

func (c Connectedness) String() string {
	switch c {
	case Connected:
		return "Connected"
	case CanConnect:
		return "CanConnect"
	case CannotConnect:
		return "CannotConnect"
	case Limited:
		return "Limited"
	default:
		return "NotConnected"
	}
}

// ConnStats carries accounting information about a Conn.
type ConnStats struct {
	Direction Direction
	Opened    time.Time
	Limited   bool
	NumStreams int
}

// ConnMultiaddrs exposes the local/remote addresses of a connection.
type ConnMultiaddrs interface {
	LocalMultiaddr() ma.Multiaddr
	RemoteMultiaddr() ma.Multiaddr
}

// ConnSecurity exposes the identity established by the security handshake.
type ConnSecurity interface {
	LocalPeer() peer.ID
	RemotePeer() peer.ID
	RemotePublicKey() crypto.PubKey
}

// Conn is an upgraded, authenticated, multiplexed session between two
// peers, per spec.md §3.
type Conn interface {
	io.Closer
	ConnMultiaddrs
	ConnSecurity

	ID() string
	NewStream(ctx context.Context) (MuxedStream, error)
	GetStreams() []MuxedStream
	Stat() ConnStats
	IsClosed() bool
}

// MuxedStream is a logical bidirectional byte channel inside a Conn, per
// spec.md §3/§4.9.
type MuxedStream interface {
	io.Reader
	io.Writer
	// CloseWrite half-closes the stream for writing; reads may continue.
	CloseWrite() error
	// CloseRead half-closes the stream for reading.
	CloseRead() error
	// Close closes the stream for both reading and writing.
	Close() error
	// Reset closes both ends abruptly, signaling an error to the remote.
	Reset() error

	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// MuxedConn multiplexes many streams over one authenticated connection, per
// spec.md §4.9.
type MuxedConn interface {
	io.Closer
	IsClosed() bool
	OpenStream(ctx context.Context) (MuxedStream, error)
	AcceptStream() (MuxedStream, error)
}

// Stream is a MuxedStream annotated with the protocol negotiated on it and
// a back-reference (lookup only) to its owning Conn, per spec.md §3.
type Stream interface {
	MuxedStream

	ID() string
	Protocol() protocol.ID
	SetProtocol(id protocol.ID) error
	Stat() ConnStats
	Conn() Conn
}

// StreamHandler processes an inbound Stream after protocol negotiation.
type StreamHandler func(Stream)

// Notifiee is notified of network-level lifecycle events, per spec.md §4.13.
// Delivery per observer is ordered but best-effort asynchronous.
type Notifiee interface {
	Listen(Network, ma.Multiaddr)
	ListenClose(Network, ma.Multiaddr)
	Connected(Network, Conn)
	Disconnected(Network, Conn)
}

// Network is the subset of Swarm that Host and Notifiee depend on, kept
// separate from the concrete p2p/net/swarm package to avoid an import
// cycle, per the teacher's own core/network split.
type Network interface {
	io.Closer

	DialPeer(ctx context.Context, p peer.ID) (Conn, error)
	ClosePeer(p peer.ID) error
	Connectedness(p peer.ID) Connectedness
	Peers() []peer.ID
	Conns() []Conn
	ConnsToPeer(p peer.ID) []Conn

	NewStream(ctx context.Context, p peer.ID) (Stream, error)

	Listen(...ma.Multiaddr) error
	ListenAddresses() []ma.Multiaddr
	InterfaceListenAddresses() ([]ma.Multiaddr, error)

	Notify(Notifiee)
	StopNotify(Notifiee)

	LocalPeer() peer.ID
}

// NotifyBundle groups individual callback fields into a Notifiee, matching
// the teacher's `network.NotifyBundle` adapter shape.
type NotifyBundle struct {
	ListenF      func(Network, ma.Multiaddr)
	ListenCloseF func(Network, ma.Multiaddr)
	ConnectedF   func(Network, Conn)
	DisconnectedF func(Network, Conn)
}

func (nb *NotifyBundle) Listen(n Network, a ma.Multiaddr) {
	if nb.ListenF != nil {
		nb.ListenF(n, a)
	}
}
func (nb *NotifyBundle) ListenClose(n Network, a ma.Multiaddr) {
	if nb.ListenCloseF != nil {
		nb.ListenCloseF(n, a)
	}
}
func (nb *NotifyBundle) Connected(n Network, c Conn) {
	if nb.ConnectedF != nil {
		nb.ConnectedF(n, c)
	}
}
func (nb *NotifyBundle) Disconnected(n Network, c Conn) {
	if nb.DisconnectedF != nil {
		nb.DisconnectedF(n, c)
	}
}
