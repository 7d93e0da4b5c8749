// Package basichost implements core/host.Host: the facade binding a
// core/network.Network, a peerstore, an event bus and a protocol router
// into the single entry point applications use, per spec.md §4.11 (the
// multistream-select responsibility core/network.Network's signature
// deliberately excludes) and the external interfaces named in spec.md §6.
package basichost

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/connmgr"
	"github.com/student-p2p/swarmkit/core/event"
	"github.com/student-p2p/swarmkit/core/host"
	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/peerstore"
	"github.com/student-p2p/swarmkit/core/protocol"

	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
	msmux "github.com/multiformats/go-multistream"
)

var log = logging.Logger("basichost")

// DefaultNegotiationTimeout bounds how long a stream may sit unread while
// multistream-select runs before newStreamHandler gives up on it.
const DefaultNegotiationTimeout = 60 * time.Second

// AddrsFactory filters/rewrites the addresses Addrs() reports as safe to
// announce; the identity function if never overridden via WithAddrsFactory.
type AddrsFactory func([]ma.Multiaddr) []ma.Multiaddr

func defaultAddrsFactory(addrs []ma.Multiaddr) []ma.Multiaddr { return addrs }

// Option configures a BasicHost at construction.
type Option func(*BasicHost)

// WithNegotiationTimeout overrides DefaultNegotiationTimeout. A value <= 0
// disables the deadline entirely.
func WithNegotiationTimeout(d time.Duration) Option {
	return func(h *BasicHost) { h.negTimeout = d }
}

// WithAddrsFactory overrides the default identity AddrsFactory.
func WithAddrsFactory(f AddrsFactory) Option {
	return func(h *BasicHost) { h.addrsFactory = f }
}

// WithConnManager wires a connmgr.ConnManager, registering it as a
// network.Notifiee so it observes connect/disconnect events.
func WithConnManager(cm connmgr.ConnManager) Option {
	return func(h *BasicHost) { h.cmgr = cm }
}

// WithIdentifyService wires the optional identify protocol collaborator;
// dialPeer blocks on IdentifyConn before returning and its own background
// loop starts from Host.Start.
func WithIdentifyService(ids host.IdentifyService) Option {
	return func(h *BasicHost) { h.ids = ids }
}

// streamHandlerSetter is the extra method p2p/net/swarm's concrete Network
// implementation exposes beyond core/network.Network, for exactly this
// purpose: registering the inbound dispatch point Host owns.
type streamHandlerSetter interface {
	SetStreamHandler(func(network.Stream))
}

// BasicHost is the default core/host.Host implementation. It:
//   - muxes per-protocol streams via a multistream.MultistreamMuxer for
//     wire negotiation, mirrored into a protocol.Switch for Mux()/Protocols()
//   - delegates everything connection- and peer-shaped to the Network
//   - optionally runs an identify collaborator and a connection manager
type BasicHost struct {
	net network.Network
	ps  peerstore.Peerstore
	bus event.Bus

	mux         *msmux.MultistreamMuxer
	protoSwitch *protocol.Switch

	negTimeout   time.Duration
	addrsFactory AddrsFactory

	cmgr connmgr.ConnManager
	ids  host.IdentifyService

	closeOnce sync.Once
	closeErr  error
}

// New constructs a BasicHost over net, registering its connection and
// stream handlers with the network immediately. ps must be the same
// Peerstore the Network was constructed with (core/network.Network
// deliberately exposes no Peerstore() accessor of its own).
func New(net network.Network, ps peerstore.Peerstore, bus event.Bus, opts ...Option) (*BasicHost, error) {
	h := &BasicHost{
		net:          net,
		ps:           ps,
		bus:          bus,
		mux:          msmux.NewMultistreamMuxer(),
		protoSwitch:  protocol.NewSwitch(),
		negTimeout:   DefaultNegotiationTimeout,
		addrsFactory: defaultAddrsFactory,
	}
	for _, o := range opts {
		o(h)
	}

	if h.cmgr != nil {
		net.Notify(h.cmgr.Notifee())
	}
	setter, ok := net.(streamHandlerSetter)
	if !ok {
		return nil, fmt.Errorf("basichost: network %T does not support SetStreamHandler", net)
	}
	setter.SetStreamHandler(h.newStreamHandler)

	return h, nil
}

// ID returns the local peer identity, taken from the Network.
func (h *BasicHost) ID() peer.ID { return h.net.LocalPeer() }

// Peerstore returns the Peerstore this host was constructed with.
func (h *BasicHost) Peerstore() peerstore.Peerstore { return h.ps }

// Network returns the underlying Network.
func (h *BasicHost) Network() network.Network { return h.net }

// Mux returns the protocol router used for Protocols() enumeration (e.g.
// by the identify protocol); actual wire negotiation runs through the
// separate multistream.MultistreamMuxer kept in sync by
// SetStreamHandler/SetStreamHandlerMatch/RemoveStreamHandler.
func (h *BasicHost) Mux() *protocol.Switch { return h.protoSwitch }

// EventBus returns the bus this host was constructed with.
func (h *BasicHost) EventBus() event.Bus { return h.bus }

// ConnManager returns the configured connection manager, or nil if none
// was supplied via WithConnManager.
func (h *BasicHost) ConnManager() connmgr.ConnManager { return h.cmgr }

// Start begins the host's background collaborators (currently just the
// optional identify service; the connection manager runs its own
// background loop from its constructor, and the swarm's capability tracker
// has no loop: it re-probes on use once its cached result is stale).
func (h *BasicHost) Start() {
	if h.ids != nil {
		h.ids.Start()
	}
}

// SetStreamHandler registers handler for pid on both the wire-level
// multistream muxer and the protocol.Switch exposed via Mux().
func (h *BasicHost) SetStreamHandler(pid protocol.ID, handler network.StreamHandler) {
	h.mux.AddHandler(string(pid), msAdapter(handler))
	h.protoSwitch.AddHandler(pid, handler)
}

// SetStreamHandlerMatch registers a predicate-matched handler the same way.
func (h *BasicHost) SetStreamHandlerMatch(pid protocol.ID, match func(protocol.ID) bool, handler network.StreamHandler) {
	h.mux.AddHandlerWithFunc(string(pid), func(p string) bool { return match(protocol.ID(p)) }, msAdapter(handler))
	h.protoSwitch.AddHandlerWithFunc(pid, match, handler)
}

// RemoveStreamHandler removes pid from both registries.
func (h *BasicHost) RemoveStreamHandler(pid protocol.ID) {
	h.mux.RemoveHandler(string(pid))
	h.protoSwitch.RemoveHandler(pid)
}

func msAdapter(handler network.StreamHandler) msmux.HandlerFunc {
	return func(_ string, rwc io.ReadWriteCloser) error {
		s, ok := rwc.(network.Stream)
		if !ok {
			return fmt.Errorf("basichost: negotiated rwc is not a network.Stream")
		}
		handler(s)
		return nil
	}
}

// newStreamHandler is registered as the Network's inbound stream handler:
// it runs multistream-select on the raw stream under a negotiation
// deadline, then dispatches to whichever handler matched.
func (h *BasicHost) newStreamHandler(s network.Stream) {
	before := time.Now()
	if h.negTimeout > 0 {
		if err := s.SetDeadline(before.Add(h.negTimeout)); err != nil {
			log.Debugw("setting negotiation deadline failed", "err", err)
			s.Reset()
			return
		}
	}

	lzc, protoID, handle, err := h.mux.NegotiateLazy(s)
	took := time.Since(before)
	if err != nil {
		if err == io.EOF {
			log.Debugw("remote closed before negotiating a protocol", "remote", s.Conn().RemotePeer(), "took", took)
		} else {
			log.Infow("protocol negotiation failed", "err", err, "took", took)
		}
		s.Reset()
		return
	}

	ws := &streamWrapper{Stream: s, rw: lzc}
	if h.negTimeout > 0 {
		if err := s.SetDeadline(time.Time{}); err != nil {
			log.Debugw("clearing negotiation deadline failed", "err", err)
			s.Reset()
			return
		}
	}
	_ = ws.SetProtocol(protocol.ID(protoID))

	go func() {
		if err := handle(protoID, ws); err != nil {
			log.Debugw("protocol handler returned an error", "protocol", protoID, "err", err)
		}
	}()
}

// NewStream opens a stream to p and negotiates one of pids on it. If the
// peerstore already knows which of pids p supports, negotiation is skipped
// in favor of immediately writing that protocol's header (the teacher's
// own "lazy" fast path); otherwise it falls back to a full SelectOneOf
// round trip. core/network.Network.NewStream only opens the raw channel —
// this is the one place multistream-select actually runs, per spec.md
// §4.11.
func (h *BasicHost) NewStream(ctx context.Context, p peer.ID, pids ...protocol.ID) (network.Stream, error) {
	pref, err := h.preferredProtocol(p, pids)
	if err != nil {
		return nil, err
	}
	if pref != "" {
		return h.newStreamWithProtocol(ctx, p, pref)
	}

	s, err := h.net.NewStream(ctx, p)
	if err != nil {
		return nil, err
	}

	selected, err := msmux.SelectOneOf(protocol.ConvertToStrings(pids), s)
	if err != nil {
		s.Reset()
		return nil, fmt.Errorf("basichost: negotiating protocol with %s: %w", p, err)
	}
	selpid := protocol.ID(selected)
	_ = s.SetProtocol(selpid)
	_ = h.Peerstore().AddProtocols(p, selpid)
	return s, nil
}

func (h *BasicHost) preferredProtocol(p peer.ID, pids []protocol.ID) (protocol.ID, error) {
	supported, err := h.Peerstore().SupportsProtocols(p, pids...)
	if err != nil {
		return "", err
	}
	if len(supported) > 0 {
		return supported[0], nil
	}
	return "", nil
}

func (h *BasicHost) newStreamWithProtocol(ctx context.Context, p peer.ID, pid protocol.ID) (network.Stream, error) {
	s, err := h.net.NewStream(ctx, p)
	if err != nil {
		return nil, err
	}
	_ = s.SetProtocol(pid)
	lzcon := msmux.NewMSSelect(s, string(pid))
	return &streamWrapper{Stream: s, rw: lzcon}, nil
}

// Connect absorbs pi's addresses into the peerstore and ensures at least
// one connection to pi.ID exists, dialing if necessary.
func (h *BasicHost) Connect(ctx context.Context, pi peer.AddrInfo) error {
	h.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.TempAddrTTL)

	if len(h.net.ConnsToPeer(pi.ID)) > 0 {
		return nil
	}
	return h.dialPeer(ctx, pi.ID)
}

func (h *BasicHost) dialPeer(ctx context.Context, p peer.ID) error {
	log.Debugw("dialing", "local", h.ID(), "remote", p)
	c, err := h.net.DialPeer(ctx, p)
	if err != nil {
		return err
	}

	if h.ids == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		h.ids.IdentifyConn(c)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Debugw("finished dialing", "local", h.ID(), "remote", p)
	return nil
}

// Addrs returns the listen addresses safe to announce, after AddrsFactory.
func (h *BasicHost) Addrs() []ma.Multiaddr {
	return h.addrsFactory(h.AllAddrs())
}

// AllAddrs returns every address the host currently believes it's
// reachable on, unfiltered.
func (h *BasicHost) AllAddrs() []ma.Multiaddr {
	addrs, err := h.net.InterfaceListenAddresses()
	if err != nil {
		log.Debugw("resolving interface listen addresses failed", "err", err)
	}
	return addrs
}

// Close shuts down the identify service (if any) and the underlying
// Network. Idempotent.
func (h *BasicHost) Close() error {
	h.closeOnce.Do(func() {
		if h.ids != nil {
			_ = h.ids.Close()
		}
		h.closeErr = h.net.Close()
	})
	return h.closeErr
}

// streamWrapper overrides a network.Stream's Read/Write with the lazy
// negotiation read-writer multistream-select hands back, so bytes
// buffered during negotiation aren't lost, matching the teacher's own
// streamWrapper.
type streamWrapper struct {
	network.Stream
	rw io.ReadWriter
}

func (s *streamWrapper) Read(b []byte) (int, error)  { return s.rw.Read(b) }
func (s *streamWrapper) Write(b []byte) (int, error) { return s.rw.Write(b) }

var _ host.Host = (*BasicHost)(nil)
