// Package swarm implements core/network.Network: the connection table,
// dial orchestration (per-peer dial lock, happy-eyeballs, capability-aware
// address ranking) and stream-opening surface described in spec.md §4.13.
package swarm

import (
	"context"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/connmgr"
	"github.com/student-p2p/swarmkit/core/event"
	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/peerstore"
	"github.com/student-p2p/swarmkit/core/transport"
	rcmgr "github.com/student-p2p/swarmkit/p2p/host/resource-manager"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	temperrcatcher "github.com/jbenet/go-temp-err-catcher"
	madns "github.com/multiformats/go-multiaddr-dns"
	ma "github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("swarm")

// Option configures a Swarm at construction time.
type Option func(*Swarm)

func WithClock(cl clock.Clock) Option {
	return func(s *Swarm) { s.clock = cl }
}

func WithConnGater(g connmgr.ConnGater) Option {
	return func(s *Swarm) { s.gater = g }
}

func WithConnManager(m connmgr.ConnManager) Option {
	return func(s *Swarm) { s.connmgr = m }
}

func WithCapabilityTTL(ttl time.Duration) Option {
	return func(s *Swarm) { s.capTTL = ttl }
}

// WithResourceManager attaches rm so every opened stream reserves its own
// scope (rm.OpenStream), per spec.md §4.6's stream-scope requirement. A
// Swarm built without this option skips stream-level scoping entirely;
// connection-level scoping (p2p/net/upgrader) is unaffected either way.
func WithResourceManager(rm *rcmgr.ResourceManager) Option {
	return func(s *Swarm) { s.rm = rm }
}

// WithResolver overrides the default DNS multiaddr resolver
// (madns.DefaultResolver) dialing uses to expand /dns4, /dns6 and /dnsaddr
// candidates. Passing nil disables DNS resolution entirely.
func WithResolver(r *madns.Resolver) Option {
	return func(s *Swarm) { s.resolver = r }
}

// Swarm is the concrete core/network.Network implementation, grounded on
// the contracts core/network.Network/core/transport.Transport/Upgrader
// already fix; its dial/listen/stream-table behavior follows spec.md §4.13.
type Swarm struct {
	localID   peer.ID
	peerstore peerstore.Peerstore
	bus       event.Bus

	clock    clock.Clock
	gater    connmgr.ConnGater
	connmgr  connmgr.ConnManager
	rm       *rcmgr.ResourceManager
	resolver *madns.Resolver
	capTTL   time.Duration
	cap      *capabilityTracker

	mu          sync.RWMutex
	transports  []transport.Transport
	upgrader    transport.Upgrader
	listeners   []transport.Listener
	conns       map[peer.ID][]*swarmConn

	dialMu    sync.Mutex
	dialJoins map[peer.ID]*dialJoin

	notifMu sync.RWMutex
	notif   []*notifQueue

	streamHandlerMu sync.RWMutex
	streamHandler   func(network.Stream)

	closeOnce sync.Once
	closed    chan struct{}
}

// notifQueue serializes one notifiee's callbacks behind a single drain
// goroutine, so Connected/Disconnected/Listen for that observer are always
// delivered in the order they were raised, per spec.md §4.13's per-observer
// ordering guarantee. Without this, two bare `go n.Connected(...)` calls for
// the same peer racing a quick connect/disconnect could reorder at the
// observer.
type notifQueue struct {
	n    network.Notifiee
	evts chan func(network.Notifiee)
	done chan struct{}
}

func newNotifQueue(n network.Notifiee) *notifQueue {
	q := &notifQueue{n: n, evts: make(chan func(network.Notifiee), 16), done: make(chan struct{})}
	go q.drain()
	return q
}

func (q *notifQueue) drain() {
	defer close(q.done)
	for fn := range q.evts {
		fn(q.n)
	}
}

func (q *notifQueue) push(fn func(network.Notifiee)) {
	q.evts <- fn
}

func (q *notifQueue) stop() {
	close(q.evts)
	<-q.done
}

type dialJoin struct {
	done chan struct{}
	conn network.Conn
	err  error
}

// New constructs a Swarm bound to localID, backed by ts for dialing/
// listening and u for the security+muxer upgrade pipeline.
func New(localID peer.ID, ps peerstore.Peerstore, bus event.Bus, u transport.Upgrader, ts []transport.Transport, opts ...Option) (*Swarm, error) {
	s := &Swarm{
		localID:    localID,
		peerstore:  ps,
		bus:        bus,
		clock:      clock.New(),
		resolver:   madns.DefaultResolver,
		capTTL:     10 * time.Minute,
		transports: ts,
		upgrader:   u,
		conns:      make(map[peer.ID][]*swarmConn),
		dialJoins:  make(map[peer.ID]*dialJoin),
		closed:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.cap = newCapabilityTracker(s.capTTL, s.clock, func(evt event.EvtLocalReachabilityChanged) {
		if em, err := bus.Emitter(event.EvtLocalReachabilityChanged{}); err == nil {
			_ = em.Emit(evt)
			_ = em.Close()
		}
	})
	return s, nil
}

func (s *Swarm) LocalPeer() peer.ID { return s.localID }

// SetStreamHandler registers the callback invoked for every newly accepted
// inbound stream on any connection; the Host facade uses this to run
// multistream-select and dispatch to its protocol.Switch.
func (s *Swarm) SetStreamHandler(h func(network.Stream)) {
	s.streamHandlerMu.Lock()
	defer s.streamHandlerMu.Unlock()
	s.streamHandler = h
}

func (s *Swarm) dispatchStream(st network.Stream) {
	s.streamHandlerMu.RLock()
	h := s.streamHandler
	s.streamHandlerMu.RUnlock()
	if h == nil {
		_ = st.Reset()
		return
	}
	h(st)
}

// Connectedness reports whether we currently hold a live connection to p.
func (s *Swarm) Connectedness(p peer.ID) network.Connectedness {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.conns[p]) > 0 {
		return network.Connected
	}
	return network.NotConnected
}

func (s *Swarm) Peers() []peer.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]peer.ID, 0, len(s.conns))
	for p := range s.conns {
		out = append(out, p)
	}
	return out
}

func (s *Swarm) Conns() []network.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []network.Conn
	for _, cs := range s.conns {
		for _, c := range cs {
			out = append(out, c)
		}
	}
	return out
}

func (s *Swarm) ConnsToPeer(p peer.ID) []network.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.conns[p]
	out := make([]network.Conn, len(cs))
	for i, c := range cs {
		out[i] = c
	}
	return out
}

func (s *Swarm) firstUsableConn(p peer.ID) network.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conns[p] {
		if !c.IsClosed() {
			return c
		}
	}
	return nil
}

func (s *Swarm) addConn(p peer.ID, c *swarmConn) {
	s.mu.Lock()
	s.conns[p] = append(s.conns[p], c)
	s.mu.Unlock()

	s.notifMu.RLock()
	for _, q := range s.notif {
		q.push(func(n network.Notifiee) { n.Connected(s, c) })
	}
	s.notifMu.RUnlock()
	if s.connmgr != nil {
		s.connmgr.Notifee().Connected(s, c)
	}
}

func (s *Swarm) removeConn(c *swarmConn) {
	p := c.RemotePeer()
	s.mu.Lock()
	cs := s.conns[p]
	for i, existing := range cs {
		if existing == c {
			cs = append(cs[:i], cs[i+1:]...)
			break
		}
	}
	if len(cs) == 0 {
		delete(s.conns, p)
	} else {
		s.conns[p] = cs
	}
	s.mu.Unlock()

	s.notifMu.RLock()
	for _, q := range s.notif {
		q.push(func(n network.Notifiee) { n.Disconnected(s, c) })
	}
	s.notifMu.RUnlock()
	if s.connmgr != nil {
		s.connmgr.Notifee().Disconnected(s, c)
	}
}

// Notify registers n to receive future Connected/Disconnected/Listen/
// ListenClose callbacks, each delivered on its own single-goroutine queue so
// this observer always sees them in the order they were raised.
func (s *Swarm) Notify(n network.Notifiee) {
	s.notifMu.Lock()
	defer s.notifMu.Unlock()
	s.notif = append(s.notif, newNotifQueue(n))
}

func (s *Swarm) StopNotify(n network.Notifiee) {
	s.notifMu.Lock()
	defer s.notifMu.Unlock()
	for i, q := range s.notif {
		if q.n == n {
			s.notif = append(s.notif[:i], s.notif[i+1:]...)
			q.stop()
			break
		}
	}
}

// notifyListen pushes a Listen callback onto every registered notifiee's
// queue; used by Listen in listener.go.
func (s *Swarm) notifyListen(addr ma.Multiaddr) {
	s.notifMu.RLock()
	defer s.notifMu.RUnlock()
	for _, q := range s.notif {
		q.push(func(n network.Notifiee) { n.Listen(s, addr) })
	}
}

// ClosePeer closes every live connection to p.
func (s *Swarm) ClosePeer(p peer.ID) error {
	s.mu.RLock()
	cs := append([]*swarmConn(nil), s.conns[p]...)
	s.mu.RUnlock()
	var firstErr error
	for _, c := range cs {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Swarm) Close() error {
	var firstErr error
	s.closeOnce.Do(func() { close(s.closed) })
	s.mu.Lock()
	listeners := append([]transport.Listener(nil), s.listeners...)
	s.mu.Unlock()
	tec := &temperrcatcher.TempErrCatcher{}
	for _, l := range listeners {
		if err := l.Close(); err != nil && !tec.IsTemporary(err) && firstErr == nil {
			firstErr = err
		}
	}
	for _, p := range s.Peers() {
		_ = s.ClosePeer(p)
	}

	s.notifMu.Lock()
	queues := s.notif
	s.notif = nil
	s.notifMu.Unlock()
	for _, q := range queues {
		q.stop()
	}

	return firstErr
}

// NewStream opens a fresh MuxedStream over a (possibly newly dialed)
// connection to p; protocol negotiation happens one layer up, in the Host
// facade, per core/network.Network's signature.
func (s *Swarm) NewStream(ctx context.Context, p peer.ID) (network.Stream, error) {
	conn, err := s.DialPeer(ctx, p)
	if err != nil {
		return nil, err
	}
	ms, err := conn.NewStream(ctx)
	if err != nil {
		return nil, err
	}
	return ms.(network.Stream), nil
}

var _ network.Network = (*Swarm)(nil)
