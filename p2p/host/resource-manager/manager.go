package rcmgr

import (
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/protocol"

	"github.com/benbjohnson/clock"
)

// ResourceManager wires the system/transient/service/protocol/peer scopes
// together and mints connection/stream scopes against them, per spec.md
// §4.6: "Scopes form a DAG rooted at system".
type ResourceManager struct {
	limits LimitConfig

	system    *scope
	transient *scope

	mu        sync.Mutex
	services  map[string]*scope
	protocols map[protocol.ID]*scope
	peers     map[peer.ID]*scope

	clock      clock.Clock
	gcInterval time.Duration
	closeGC    chan struct{}
}

// Option configures a ResourceManager at construction time.
type Option func(*ResourceManager)

// WithLimits overrides the auto-scaled DefaultLimits().
func WithLimits(l LimitConfig) Option {
	return func(rm *ResourceManager) { rm.limits = l }
}

// WithClock substitutes a fake clock for GC-interval tests.
func WithClock(cl clock.Clock) Option {
	return func(rm *ResourceManager) { rm.clock = cl }
}

// WithGCInterval overrides the default periodic unused-scope sweep period.
func WithGCInterval(d time.Duration) Option {
	return func(rm *ResourceManager) { rm.gcInterval = d }
}

// NewResourceManager constructs the root system/transient scopes and starts
// the background GC loop that reclaims unused sticky service/protocol/peer
// scopes, per spec.md §4.6/§4.13's "GC" mention.
func NewResourceManager(opts ...Option) *ResourceManager {
	rm := &ResourceManager{
		limits:     DefaultLimits(),
		services:   make(map[string]*scope),
		protocols:  make(map[protocol.ID]*scope),
		peers:      make(map[peer.ID]*scope),
		clock:      clock.New(),
		gcInterval: time.Minute,
		closeGC:    make(chan struct{}),
	}
	for _, o := range opts {
		o(rm)
	}
	rm.system = newScope("system", rm.limits.System)
	rm.transient = newScope("transient", rm.limits.Transient, rm.system)
	go rm.gcLoop()
	return rm
}

func (rm *ResourceManager) gcLoop() {
	t := rm.clock.Ticker(rm.gcInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			rm.gc()
		case <-rm.closeGC:
			return
		}
	}
}

// gc reclaims service/protocol/peer scopes that are no longer referenced
// and hold zero counters, per spec.md §4.6.
func (rm *ResourceManager) gc() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for k, s := range rm.services {
		if s.IsUnused() {
			delete(rm.services, k)
		}
	}
	for k, s := range rm.protocols {
		if s.IsUnused() {
			delete(rm.protocols, k)
		}
	}
	for k, s := range rm.peers {
		if s.IsUnused() {
			delete(rm.peers, k)
		}
	}
}

// Close stops the GC loop. Open scopes are left as-is; callers are expected
// to have already torn down connections/streams.
func (rm *ResourceManager) Close() error {
	close(rm.closeGC)
	return nil
}

func (rm *ResourceManager) serviceScope(name string) *scope {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	s, ok := rm.services[name]
	if !ok {
		s = newScope("service:"+name, rm.limits.Service, rm.system)
		rm.services[name] = s
	}
	return s
}

func (rm *ResourceManager) protocolScope(p protocol.ID) *scope {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	s, ok := rm.protocols[p]
	if !ok {
		s = newScope("protocol:"+string(p), rm.limits.Protocol, rm.system)
		rm.protocols[p] = s
	}
	return s
}

func (rm *ResourceManager) peerScope(p peer.ID) *scope {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	s, ok := rm.peers[p]
	if !ok {
		s = newScope("peer:"+p.String(), rm.limits.Peer, rm.system)
		rm.peers[p] = s
	}
	return s
}

// ResourceScopeSpan is the public handle returned by OpenConnection and
// OpenStream: it exposes the reservation operations scoped to one span and
// a Done that is safe to call more than once, per spec.md §4.6 "span
// scopes" / scenario S6.
type ResourceScopeSpan struct {
	mu   sync.Mutex
	self *scope
	done bool

	// the extra accounting released on Done, tracked so callers don't need
	// to remember dir/usesFD themselves.
	release func()
}

func (s *ResourceScopeSpan) ReserveMemory(size int64, prio Priority) error {
	return s.self.ReserveMemory(size, prio)
}

func (s *ResourceScopeSpan) ReleaseMemory(size int64) {
	s.self.ReleaseMemory(size)
}

func (s *ResourceScopeSpan) Stat() Stat {
	return s.self.Stat()
}

// Done releases the span's connection/stream accounting and marks the
// underlying scope closed. Idempotent: a second call is a no-op, per
// scenario S6 (double-close of a stream scope must not double-decrement
// parent counters).
func (s *ResourceScopeSpan) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	if s.release != nil {
		s.release()
	}
	s.self.Done()
}

// OpenConnection reserves connection-level accounting against transient
// (and, once identified, a peer scope may be merged in by the caller via
// Peer) per spec.md §4.10's "apply resource-scope reservation before the
// handshake".
func (rm *ResourceManager) OpenConnection(dir Direction, usesFD bool) (*ResourceScopeSpan, error) {
	parents := []*scope{rm.transient}
	s := newScope("conn", rm.limits.Conn, parents...)
	if err := s.AddConn(dir, usesFD); err != nil {
		return nil, err
	}
	return &ResourceScopeSpan{
		self: s,
		release: func() {
			s.RemoveConn(dir, usesFD)
		},
	}, nil
}

// SetPeer re-parents a connection span onto a peer scope once identify
// resolves the remote's PeerId, per spec.md §4.10.
func (rm *ResourceManager) SetPeer(span *ResourceScopeSpan, p peer.ID) {
	span.mu.Lock()
	defer span.mu.Unlock()
	if span.done {
		return
	}
	ps := rm.peerScope(p)
	ps.incRef()
	span.self.parents = append(span.self.parents, ps)
	prevRelease := span.release
	span.release = func() {
		prevRelease()
		ps.decRef()
	}
}

// OpenStream reserves stream-level accounting against transient, a named
// protocol scope (once negotiated) and a peer scope, per spec.md §4.6's
// scope list ("system, transient, service, protocol, peer, connection,
// stream").
func (rm *ResourceManager) OpenStream(p peer.ID, dir Direction) (*ResourceScopeSpan, error) {
	peerScope := rm.peerScope(p)
	peerScope.incRef()
	parents := []*scope{rm.transient, peerScope}
	s := newScope("stream", rm.limits.Stream, parents...)
	if err := s.AddStream(dir); err != nil {
		peerScope.decRef()
		return nil, err
	}
	return &ResourceScopeSpan{
		self: s,
		release: func() {
			s.RemoveStream(dir)
			peerScope.decRef()
		},
	}, nil
}

// AttachProtocol re-parents an open stream span onto a protocol scope once
// multistream-select negotiates the protocol ID.
func (rm *ResourceManager) AttachProtocol(span *ResourceScopeSpan, p protocol.ID) {
	span.mu.Lock()
	defer span.mu.Unlock()
	if span.done {
		return
	}
	ps := rm.protocolScope(p)
	ps.incRef()
	span.self.parents = append(span.self.parents, ps)
	prevRelease := span.release
	span.release = func() {
		prevRelease()
		ps.decRef()
	}
}

// AttachService re-parents an open stream span onto a named service scope.
func (rm *ResourceManager) AttachService(span *ResourceScopeSpan, name string) {
	span.mu.Lock()
	defer span.mu.Unlock()
	if span.done {
		return
	}
	ss := rm.serviceScope(name)
	ss.incRef()
	span.self.parents = append(span.self.parents, ss)
	prevRelease := span.release
	span.release = func() {
		prevRelease()
		ss.decRef()
	}
}

// ViewSystem returns the system scope's current stat, per spec.md §4.6.
func (rm *ResourceManager) ViewSystem() Stat { return rm.system.Stat() }

// ViewTransient returns the transient scope's current stat.
func (rm *ResourceManager) ViewTransient() Stat { return rm.transient.Stat() }

// ViewService returns a named service scope's current stat.
func (rm *ResourceManager) ViewService(name string) Stat { return rm.serviceScope(name).Stat() }

// ViewProtocol returns a protocol scope's current stat.
func (rm *ResourceManager) ViewProtocol(p protocol.ID) Stat { return rm.protocolScope(p).Stat() }

// ViewPeer returns a peer scope's current stat.
func (rm *ResourceManager) ViewPeer(p peer.ID) Stat { return rm.peerScope(p).Stat() }
