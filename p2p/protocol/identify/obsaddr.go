package identify

import (
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/host"
	"github.com/student-p2p/swarmkit/core/network"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// DefaultObservedAddrTTL is how long an observation from one remote group
// counts toward activating an address, and the GC sweep interval.
const DefaultObservedAddrTTL = 10 * time.Minute

// DefaultMinObservers is how many distinct remote groups must report the
// same externally observed address before it's trusted enough to surface
// via Addrs()/AddrsFor(). Guards against a single lying (or confused) peer
// poisoning our own view of our addresses.
const DefaultMinObservers = 4

type observedAddr struct {
	addr   ma.Multiaddr
	seenBy map[string]time.Time
}

func (oa *observedAddr) activated(now time.Time, ttl time.Duration, minObservers int) bool {
	n := 0
	for _, t := range oa.seenBy {
		if now.Sub(t) < ttl {
			n++
		}
	}
	return n >= minObservers
}

// ObservedAddrManager tracks externally observed addresses reported by
// remote peers during identify exchanges, grouped by the local listen
// address the observation came in on, and only surfaces an address once
// enough distinct remote peers have corroborated it.
type ObservedAddrManager struct {
	host host.Host

	clock        clock.Clock
	ttl          time.Duration
	minObservers int

	mu    sync.RWMutex
	addrs map[string]map[string]*observedAddr // local addr string -> observed addr string -> entry

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type obsAddrOption func(*ObservedAddrManager)

func withClock(c clock.Clock) obsAddrOption {
	return func(o *ObservedAddrManager) { o.clock = c }
}

// NewObservedAddrManager starts a manager that records observations made
// against h's own identity.
func NewObservedAddrManager(h host.Host, opts ...obsAddrOption) (*ObservedAddrManager, error) {
	o := &ObservedAddrManager{
		host:         h,
		clock:        clock.New(),
		ttl:          DefaultObservedAddrTTL,
		minObservers: DefaultMinObservers,
		addrs:        make(map[string]map[string]*observedAddr),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.wg.Add(1)
	go o.gcLoop()
	return o, nil
}

// Record registers that conn's remote peer told us we appear to be dialing
// from observed. Ignored unless observed shares a transport with one of our
// own advertised addresses (a remote peer can't usefully tell us about a
// transport we don't speak) and conn carries a resolvable remote address to
// group the observation by.
func (o *ObservedAddrManager) Record(c network.Conn, observed ma.Multiaddr) {
	if observed == nil {
		return
	}
	if !HasConsistentTransport(observed, o.host.Addrs()) {
		return
	}
	groupKey := remoteGroupKey(c.RemoteMultiaddr())
	if groupKey == "" {
		return
	}

	local := c.LocalMultiaddr()
	if local == nil {
		return
	}
	localKey := local.String()
	obsKey := observed.String()
	now := o.clock.Now()

	o.mu.Lock()
	defer o.mu.Unlock()
	bucket, ok := o.addrs[localKey]
	if !ok {
		bucket = make(map[string]*observedAddr)
		o.addrs[localKey] = bucket
	}
	oa, ok := bucket[obsKey]
	if !ok {
		oa = &observedAddr{addr: observed, seenBy: make(map[string]time.Time)}
		bucket[obsKey] = oa
	}
	oa.seenBy[groupKey] = now
}

// Addrs returns every activated observed address, across all local listen
// addresses.
func (o *ObservedAddrManager) Addrs() []ma.Multiaddr {
	o.mu.RLock()
	defer o.mu.RUnlock()
	now := o.clock.Now()
	var out []ma.Multiaddr
	for _, bucket := range o.addrs {
		for _, oa := range bucket {
			if oa.activated(now, o.ttl, o.minObservers) {
				out = append(out, oa.addr)
			}
		}
	}
	return out
}

// AddrsFor returns the activated observed addresses reported for
// connections whose local address was exactly local.
func (o *ObservedAddrManager) AddrsFor(local ma.Multiaddr) []ma.Multiaddr {
	if local == nil {
		return nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	bucket, ok := o.addrs[local.String()]
	if !ok {
		return nil
	}
	now := o.clock.Now()
	var out []ma.Multiaddr
	for _, oa := range bucket {
		if oa.activated(now, o.ttl, o.minObservers) {
			out = append(out, oa.addr)
		}
	}
	return out
}

// Close stops the background GC loop. Idempotent.
func (o *ObservedAddrManager) Close() error {
	o.closeOnce.Do(func() { close(o.stop) })
	o.wg.Wait()
	return nil
}

func (o *ObservedAddrManager) gcLoop() {
	defer o.wg.Done()
	ticker := o.clock.Ticker(o.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.gc()
		case <-o.stop:
			return
		}
	}
}

func (o *ObservedAddrManager) gc() {
	now := o.clock.Now()
	o.mu.Lock()
	defer o.mu.Unlock()
	for localKey, bucket := range o.addrs {
		for obsKey, oa := range bucket {
			for g, t := range oa.seenBy {
				if now.Sub(t) > 2*o.ttl {
					delete(oa.seenBy, g)
				}
			}
			if len(oa.seenBy) == 0 {
				delete(bucket, obsKey)
			}
		}
		if len(bucket) == 0 {
			delete(o.addrs, localKey)
		}
	}
}

// remoteGroupKey reduces a remote multiaddr to the IP it carries, so that
// repeated observations from the same peer (potentially over many
// connections/ports) still count as one corroborating witness.
func remoteGroupKey(remote ma.Multiaddr) string {
	if remote == nil {
		return ""
	}
	ip, err := manet.ToIP(remote)
	if err != nil {
		return ""
	}
	return ip.String()
}
