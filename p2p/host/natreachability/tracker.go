// Package natreachability implements the NAT behavior tracker described in
// spec.md §4.15: a health-scored pool of STUN servers probed periodically
// to classify the local NAT's mapping and filtering behavior and emit
// EvtNATDeviceTypeChanged when the classification changes. Unrelated to
// p2p/net/swarm's capability tracker (spec.md §4.14), which answers a
// different question — whether the local stack can originate IPv4/IPv6
// traffic at all, from the routing table alone, with no STUN round trip.
package natreachability

import (
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/event"
	"github.com/student-p2p/swarmkit/p2p/host/eventbus"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	pionlog "github.com/pion/logging"
	"github.com/pion/stun"
)

var log = logging.Logger("natreachability")

// DefaultProbeInterval is how often the tracker re-probes by default.
const DefaultProbeInterval = 10 * time.Minute

// DefaultSTUNServers is the fallback pool New's callers can pass when they
// don't operate their own STUN infrastructure.
var DefaultSTUNServers = []string{
	"stun.l.google.com:19302",
	"stun1.l.google.com:19302",
	"stun2.l.google.com:19302",
}

const probeTimeout = 3 * time.Second

// changeRequestAttr is STUN's classic (RFC 3489) CHANGE-REQUEST attribute
// code, used for filtering-behavior discovery; it predates pion/stun's
// RFC 5389/8489-only attribute set, so it's built as a raw attribute.
const changeRequestAttr = stun.AttrType(0x0003)

const (
	changeIPFlag   uint32 = 0x4
	changePortFlag uint32 = 0x2
)

// MappingBehavior classifies how a NAT assigns external (IP, port) pairs to
// an internal socket, per spec.md §4.15.
type MappingBehavior int

const (
	MappingUnknown MappingBehavior = iota
	MappingEndpointIndependent
	MappingAddressDependent
	MappingAddressAndPortDependent
)

// FilteringBehavior classifies which remote (IP, port) pairs a NAT accepts
// inbound traffic from, per spec.md §4.15.
type FilteringBehavior int

const (
	FilteringUnknown FilteringBehavior = iota
	FilteringEndpointIndependent
	FilteringAddressDependent
	FilteringAddressAndPortDependent
)

// TraversalStrategy is the practical consequence of a NAT classification:
// how a higher-level dialer should expect to reach a peer behind it.
type TraversalStrategy int

const (
	StrategyUnknown TraversalStrategy = iota
	StrategyDirect             // fullCone / no NAT: any peer can dial us directly once our mapping is known
	StrategyHolePunch          // restrictedCone / portRestricted: a prior outbound packet to the peer opens the path
	StrategyRelayOnly          // symmetric / blocked: direct hole-punching is unreliable or impossible
)

func classify(mapping MappingBehavior, filtering FilteringBehavior, reachable bool) (event.NATDeviceType, TraversalStrategy) {
	if !reachable {
		return event.NATDeviceTypeBlocked, StrategyRelayOnly
	}
	if mapping == MappingAddressAndPortDependent {
		return event.NATDeviceTypeSymmetric, StrategyRelayOnly
	}
	switch filtering {
	case FilteringEndpointIndependent:
		return event.NATDeviceTypeFullCone, StrategyDirect
	case FilteringAddressDependent:
		return event.NATDeviceTypeRestrictedCone, StrategyHolePunch
	case FilteringAddressAndPortDependent:
		return event.NATDeviceTypePortRestricted, StrategyHolePunch
	default:
		return event.NATDeviceTypeUnknown, StrategyUnknown
	}
}

// serverHealth tracks one STUN server's recent reliability, per spec.md
// §4.15: +10 on a successful round trip, -20 on failure, clamped to
// [0, 100], servers preferred for probing in descending score order.
type serverHealth struct {
	addr  string
	score int
}

func (s *serverHealth) recordSuccess() {
	s.score += 10
	if s.score > 100 {
		s.score = 100
	}
}

func (s *serverHealth) recordFailure() {
	s.score -= 20
	if s.score < 0 {
		s.score = 0
	}
}

// Option configures a Tracker at construction.
type Option func(*Tracker)

// WithInterval overrides DefaultProbeInterval.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithClock injects a clock.Clock, for deterministic tests.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithDialer overrides how the tracker opens a UDP socket to a STUN
// server, for tests that fake STUN responses without real sockets.
func WithDialer(d func(addr string) (net.Conn, error)) Option {
	return func(t *Tracker) { t.dial = d }
}

// Tracker periodically classifies the local NAT's behavior against a pool
// of STUN servers and emits event.EvtNATDeviceTypeChanged on change.
type Tracker struct {
	mu      sync.Mutex
	servers []*serverHealth

	clock    clock.Clock
	interval time.Duration
	dial     func(addr string) (net.Conn, error)

	emit event.Emitter
	pLog pionlog.LeveledLogger

	cur       event.NATDeviceType
	curStrat  TraversalStrategy

	stop      chan struct{}
	closeOnce sync.Once
}

// New constructs a Tracker over the given STUN server addresses
// ("host:port" form) and starts its background probe loop.
func New(bus event.Bus, stunServers []string, opts ...Option) (*Tracker, error) {
	if len(stunServers) == 0 {
		return nil, fmt.Errorf("natreachability: at least one STUN server is required")
	}
	emit, err := bus.Emitter(event.EvtNATDeviceTypeChanged{}, eventbus.Stateful())
	if err != nil {
		return nil, fmt.Errorf("natreachability: creating emitter: %w", err)
	}

	t := &Tracker{
		clock:    clock.New(),
		interval: DefaultProbeInterval,
		dial:     func(addr string) (net.Conn, error) { return net.DialTimeout("udp4", addr, probeTimeout) },
		emit:     emit,
		pLog:     pionlog.NewDefaultLoggerFactory().NewLogger("natreachability"),
		stop:     make(chan struct{}),
	}
	for _, addr := range stunServers {
		t.servers = append(t.servers, &serverHealth{addr: addr, score: 50})
	}
	for _, o := range opts {
		o(t)
	}

	go t.loop()
	return t, nil
}

func (t *Tracker) loop() {
	ticker := t.clock.Ticker(t.interval)
	defer ticker.Stop()
	t.probeOnce()
	for {
		select {
		case <-ticker.C:
			t.probeOnce()
		case <-t.stop:
			return
		}
	}
}

// Close stops the background probe loop. Idempotent.
func (t *Tracker) Close() error {
	t.closeOnce.Do(func() { close(t.stop) })
	return nil
}

// Current returns the last-computed classification and strategy.
func (t *Tracker) Current() (event.NATDeviceType, TraversalStrategy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur, t.curStrat
}

// bestServers returns up to n server addresses, highest health score
// first, ties broken by pool order.
func (t *Tracker) bestServers(n int) []string {
	t.mu.Lock()
	sorted := make([]*serverHealth, len(t.servers))
	copy(sorted, t.servers)
	t.mu.Unlock()

	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = sorted[i].addr
	}
	return out
}

func (t *Tracker) markResult(addr string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.servers {
		if s.addr == addr {
			if ok {
				s.recordSuccess()
			} else {
				s.recordFailure()
			}
			return
		}
	}
}

func (t *Tracker) probeOnce() {
	candidates := t.bestServers(2)
	if len(candidates) == 0 {
		return
	}

	baseline, err := t.bindingRequest(candidates[0])
	if err != nil {
		t.markResult(candidates[0], false)
		t.setClassification(classify(MappingUnknown, FilteringUnknown, false))
		return
	}
	t.markResult(candidates[0], true)

	mapping := MappingEndpointIndependent
	if len(candidates) > 1 {
		second, err := t.bindingRequest(candidates[1])
		if err != nil {
			t.markResult(candidates[1], false)
		} else {
			t.markResult(candidates[1], true)
			mapping = compareMappedAddrs(baseline, second)
		}
	}

	filtering := t.probeFiltering(candidates[0])
	t.setClassification(classify(mapping, filtering, true))
}

func compareMappedAddrs(a, b *net.UDPAddr) MappingBehavior {
	if a.IP.Equal(b.IP) && a.Port == b.Port {
		return MappingEndpointIndependent
	}
	if !a.IP.Equal(b.IP) {
		return MappingAddressDependent
	}
	return MappingAddressAndPortDependent
}

// probeFiltering sends CHANGE-REQUEST probes to classify which inbound
// (IP, port) combinations the local NAT accepts responses from.
func (t *Tracker) probeFiltering(server string) FilteringBehavior {
	if _, err := t.changeRequest(server, true, true); err == nil {
		return FilteringEndpointIndependent
	}
	if _, err := t.changeRequest(server, false, true); err == nil {
		return FilteringAddressDependent
	}
	return FilteringAddressAndPortDependent
}

func (t *Tracker) bindingRequest(server string) (*net.UDPAddr, error) {
	conn, err := t.dial(server)
	if err != nil {
		return nil, fmt.Errorf("natreachability: dialing %s: %w", server, err)
	}
	defer conn.Close()

	client, err := stun.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("natreachability: stun client for %s: %w", server, err)
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	return t.roundTrip(client, msg)
}

func (t *Tracker) changeRequest(server string, changeIP, changePort bool) (*net.UDPAddr, error) {
	conn, err := t.dial(server)
	if err != nil {
		return nil, fmt.Errorf("natreachability: dialing %s: %w", server, err)
	}
	defer conn.Close()

	client, err := stun.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("natreachability: stun client for %s: %w", server, err)
	}
	defer client.Close()

	var flags uint32
	if changeIP {
		flags |= changeIPFlag
	}
	if changePort {
		flags |= changePortFlag
	}
	val := make([]byte, 4)
	binary.BigEndian.PutUint32(val, flags)

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest, stun.RawAttribute{Type: changeRequestAttr, Value: val})
	return t.roundTrip(client, msg)
}

func (t *Tracker) roundTrip(client *stun.Client, msg *stun.Message) (*net.UDPAddr, error) {
	type outcome struct {
		addr *net.UDPAddr
		err  error
	}
	done := make(chan outcome, 1)

	err := client.Start(msg, func(res stun.Event) {
		if res.Error != nil {
			done <- outcome{err: res.Error}
			return
		}
		var xorAddr stun.XORMappedAddress
		if err := xorAddr.GetFrom(res.Message); err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{addr: &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}}
	})
	if err != nil {
		return nil, err
	}

	select {
	case o := <-done:
		return o.addr, o.err
	case <-t.clock.After(probeTimeout):
		return nil, fmt.Errorf("natreachability: STUN round trip timed out")
	}
}

func (t *Tracker) setClassification(nt event.NATDeviceType, strat TraversalStrategy) {
	t.mu.Lock()
	changed := nt != t.cur
	t.cur = nt
	t.curStrat = strat
	t.mu.Unlock()

	if !changed {
		return
	}
	t.pLog.Infof("NAT classification changed to %s", nt)
	if err := t.emit.Emit(event.EvtNATDeviceTypeChanged{NatDeviceType: nt}); err != nil {
		log.Debugw("emitting NAT classification change failed", "err", err)
	}
}
