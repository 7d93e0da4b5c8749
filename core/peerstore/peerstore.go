// Package peerstore declares the per-peer directory contracts: AddrBook,
// KeyBook, ProtoBook and Metrics, composed into Peerstore, per spec.md §3/§4.4.
package peerstore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/protocol"
	"github.com/student-p2p/swarmkit/core/record"

	ma "github.com/multiformats/go-multiaddr"
)

// TTL constants per spec.md §4.4.
const (
	// PermanentAddrTTL never expires.
	PermanentAddrTTL = math_MaxInt64Duration
	// ConnectedAddrTTL is refreshed on every connect notification and
	// expires after a grace period once disconnected.
	ConnectedAddrTTL  = 1 * time.Hour
	RecentlyConnectedAddrTTL = 30 * time.Minute
	TempAddrTTL       = 2 * time.Minute
	OwnObservedAddrTTL = 10 * time.Minute
	AddressTTL        = 1 * time.Hour
)

// math_MaxInt64Duration avoids importing math just for a constant; it is
// the largest representable time.Duration, used to mean "never expires".
const math_MaxInt64Duration = time.Duration(1<<63 - 1)

var ErrNotFound = errors.New("peerstore: not found")

// AddrBook manages per-peer address TTLs, per spec.md §4.4.
type AddrBook interface {
	AddAddr(p peer.ID, addr ma.Multiaddr, ttl time.Duration)
	AddAddrs(p peer.ID, addrs []ma.Multiaddr, ttl time.Duration)
	// SetAddr replaces the TTL for addr unconditionally; a ttl <= 0 removes
	// addr (used to force expiry).
	SetAddr(p peer.ID, addr ma.Multiaddr, ttl time.Duration)
	SetAddrs(p peer.ID, addrs []ma.Multiaddr, ttl time.Duration)
	// UpdateAddrs extends/shortens the TTL of addrs currently tagged
	// oldTTL to newTTL (used by the connectedness notifiee).
	UpdateAddrs(p peer.ID, oldTTL, newTTL time.Duration)

	Addrs(p peer.ID) []ma.Multiaddr
	ClearAddrs(p peer.ID)
	PeersWithAddrs() []peer.ID

	AddrStream(ctx context.Context, p peer.ID) <-chan ma.Multiaddr
}

// KeyBook stores the public/private key pair (if known) for each peer, per
// spec.md §4.4.
type KeyBook interface {
	PubKey(p peer.ID) crypto.PubKey
	AddPubKey(p peer.ID, pk crypto.PubKey) error

	PrivKey(p peer.ID) crypto.PrivKey
	AddPrivKey(p peer.ID, sk crypto.PrivKey) error

	PeersWithKeys() []peer.ID
}

// ErrIdentityMismatch is returned when a key doesn't match the peer it's
// being added under, per spec.md §4.4.
var ErrIdentityMismatch = errors.New("peerstore: key does not match peer ID")

// ProtoBook tracks the set of protocols each peer is known to support, per
// spec.md §4.4.
type ProtoBook interface {
	GetProtocols(p peer.ID) ([]protocol.ID, error)
	AddProtocols(p peer.ID, protos ...protocol.ID) error
	SetProtocols(p peer.ID, protos ...protocol.ID) error
	RemoveProtocols(p peer.ID, protos ...protocol.ID) error
	SupportsProtocols(p peer.ID, protos ...protocol.ID) ([]protocol.ID, error)
	FirstSupportedProtocol(p peer.ID, protos ...protocol.ID) (protocol.ID, error)
}

// Metrics records per-peer latency as an EWMA, per spec.md §4.4.
type Metrics interface {
	RecordLatency(p peer.ID, rtt time.Duration)
	LatencyEWMA(p peer.ID) time.Duration
}

// PeerMetadata stores arbitrary per-peer key/value metadata (e.g. the last
// signed PeerRecord envelope, cached identify agent version).
type PeerMetadata interface {
	Get(p peer.ID, key string) (interface{}, error)
	Put(p peer.ID, key string, val interface{}) error
	RemovePeer(p peer.ID)
}

// Peerstore composes the four sub-interfaces plus PeerRecord tracking, per
// spec.md §3/§4.4.
type Peerstore interface {
	io.Closer
	AddrBook
	KeyBook
	ProtoBook
	Metrics
	PeerMetadata

	PeerInfo(p peer.ID) peer.AddrInfo
	Peers() peer.Set

	// ConsumePeerRecord stores env under the peer ID its PeerRecord carries
	// if the record's seq is strictly greater than any existing record's,
	// per spec.md §3 invariant 4 (seq monotonicity). Returns (accepted, error).
	ConsumePeerRecord(env *record.Envelope, ttl time.Duration) (accepted bool, err error)
	// GetPeerRecord returns the most recently accepted signed PeerRecord
	// envelope for p, or nil if none.
	GetPeerRecord(p peer.ID) *record.Envelope
}
