// Package event declares the typed events carried on the host-wide event
// bus (p2p/host/eventbus), per spec.md §3/§4.5.
package event

import (
	"time"

	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/protocol"

	ma "github.com/multiformats/go-multiaddr"
)

// EvtPeerConnectednessChanged is emitted exactly once per peer on first
// successful upgrade and once when the last connection to that peer ends,
// per spec.md §4.10.
type EvtPeerConnectednessChanged struct {
	Peer          peer.ID
	Connectedness network.Connectedness
}

// EvtLocalAddressesUpdated fires when the set of addresses we believe we're
// listening/reachable on changes.
type EvtLocalAddressesUpdated struct {
	Diffs    bool
	Current  []UpdatedAddress
	Removed  []UpdatedAddress
}

// UpdatedAddress pairs an address with the reason it's current/removed.
type UpdatedAddress struct {
	Address ma.Multiaddr
	Action  AddrAction
}

type AddrAction int

const (
	Unknown AddrAction = iota
	Added
	Maintained
	Removed
)

// EvtLocalProtocolsUpdated fires when the local set of registered protocol
// handlers changes.
type EvtLocalProtocolsUpdated struct {
	Added   []protocol.ID
	Removed []protocol.ID
}

// EvtLocalReachabilityChanged is a stateful event carrying the locally
// detected OutboundCapability classification, per spec.md §3/§4.14.
type EvtLocalReachabilityChanged struct {
	HasIPv4    bool
	HasIPv6    bool
	DetectedAt time.Time
}

// NATDeviceType classifies our NAT behavior, per spec.md §3/§4.15.
type NATDeviceType int

const (
	NATDeviceTypeUnknown NATDeviceType = iota
	NATDeviceTypeFullCone
	NATDeviceTypeRestrictedCone
	NATDeviceTypePortRestricted
	NATDeviceTypeSymmetric
	NATDeviceTypeBlocked
)

func (t NATDeviceType) String() string {
	switch t {
	case NATDeviceTypeFullCone:
		return "FullCone"
	case NATDeviceTypeRestrictedCone:
		return "RestrictedCone"
	case NATDeviceTypePortRestricted:
		return "PortRestricted"
	case NATDeviceTypeSymmetric:
		return "Symmetric"
	case NATDeviceTypeBlocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}

// EvtNATDeviceTypeChanged is a stateful event emitted whenever the NAT
// behavior tracker's classification changes, per spec.md §4.15.
type EvtNATDeviceTypeChanged struct {
	NatDeviceType NATDeviceType
}

// EvtPeerIdentificationCompleted/Failed are emitted by the identify service
// after running the identify protocol on a connection.
type EvtPeerIdentificationCompleted struct {
	Peer              peer.ID
	Conn              network.Conn
	ListenAddrs       []ma.Multiaddr
	Protocols         []protocol.ID
	SignedPeerRecord  bool
	ObservedAddr      ma.Multiaddr
	ProtocolVersion   string
	AgentVersion      string
}

type EvtPeerIdentificationFailed struct {
	Peer   peer.ID
	Reason error
}

// EvtPeerProtocolsUpdated fires when a remote peer's supported protocol set
// changes (learned via identify push or a fresh identify).
type EvtPeerProtocolsUpdated struct {
	Peer    peer.ID
	Added   []protocol.ID
	Removed []protocol.ID
}
