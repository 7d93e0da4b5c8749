// Package connmgr defines the connection-manager and connection-gater
// contracts, per spec.md §4.12.
package connmgr

import (
	"context"
	"time"

	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"

	ma "github.com/multiformats/go-multiaddr"
)

// ConnManager tracks per-peer connection counts and decides eviction, per
// spec.md §4.12.
type ConnManager interface {
	// TagPeer sets the named tag on p to value, replacing any previous value.
	TagPeer(p peer.ID, tag string, value int)
	// UntagPeer removes a named tag from p.
	UntagPeer(p peer.ID, tag string)
	// UpsertTag atomically sets or updates a tag via upsert, given its
	// current value (0 if unset).
	UpsertTag(p peer.ID, tag string, upsert func(int) int)

	// GetTagInfo returns the current tag state for p, or nil if untracked.
	GetTagInfo(p peer.ID) *TagInfo

	// TrimOpenConns closes the lowest-scored connections down to the
	// configured low-water mark.
	TrimOpenConns(ctx context.Context)

	// Notifee returns a Notifiee that the swarm should register so the
	// manager observes connect/disconnect events.
	Notifee() network.Notifiee

	Close() error
}

// TagInfo summarizes a peer's decaying tags and aggregate score.
type TagInfo struct {
	FirstSeen time.Time
	Value     int
	Tags      map[string]int
}

// Decayer manages decaying tags on top of a ConnManager, per spec.md §4.12.
type Decayer interface {
	// RegisterDecayingTag registers a new decaying tag; returns an error if
	// the same tag name is registered twice.
	RegisterDecayingTag(name string, interval time.Duration, decay DecayFn, bump BumpFn) (DecayingTag, error)
}

// DecayFn computes the next value for a tag given its current value and the
// time elapsed; returning (next, remove) where remove indicates the tag
// entry should be dropped entirely.
type DecayFn func(value DecayingValue) (after int, remove bool)

// BumpFn merges a bump delta into the tag's current value.
type BumpFn func(value DecayingValue, delta int) (after int)

// DecayingValue is the bookkeeping state supplied to DecayFn/BumpFn.
type DecayingValue struct {
	Value    int
	LastTick time.Time
}

// DecayingTag is a handle returned by RegisterDecayingTag.
type DecayingTag interface {
	Name() string
	Bump(p peer.ID, delta int) error
	Remove(p peer.ID) error
}

// ConnGater vetoes connection lifecycle transitions at four points, per
// spec.md §4.12.
type ConnGater interface {
	// InterceptPeerDial is called before dialing a peer, pre-address-resolution.
	InterceptPeerDial(p peer.ID) (allow bool)
	// InterceptAddrDial is called for each candidate address before dialing it.
	InterceptAddrDial(p peer.ID, addr ma.Multiaddr) (allow bool)
	// InterceptAccept is called for an inbound connection immediately after
	// accept, before the upgrade pipeline runs.
	InterceptAccept(conn network.ConnMultiaddrs) (allow bool)
	// InterceptSecured is called after the security handshake, before the
	// muxer runs.
	InterceptSecured(dir network.Direction, p peer.ID, conn network.ConnMultiaddrs) (allow bool)
	// InterceptUpgraded is called once the connection is fully upgraded.
	InterceptUpgraded(conn network.Conn) (allow bool, reason DisconnectReason)
}

// DisconnectReason is an opaque numeric code surfaced to the remote peer or
// logs when InterceptUpgraded vetoes a connection.
type DisconnectReason int
