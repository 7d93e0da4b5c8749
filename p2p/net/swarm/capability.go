package swarm

import (
	"net"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/event"

	"github.com/benbjohnson/clock"
	netroute "github.com/libp2p/go-netroute"
)

// capabilityTracker probes the local network stack for IPv4/IPv6 egress
// and caches the result, re-probing once the cache is older than ttl, per
// spec.md §4.14. Grounded on the teacher's own use of go-netroute in its
// observed-address/reachability code to answer "can we route out over
// this family" without opening a real socket.
type capabilityTracker struct {
	mu    sync.Mutex
	cur   Capability
	ttl   time.Duration
	clock clock.Clock
	emit  func(event.EvtLocalReachabilityChanged)

	router netroute.Router
}

func newCapabilityTracker(ttl time.Duration, cl clock.Clock, emit func(event.EvtLocalReachabilityChanged)) *capabilityTracker {
	router, _ := netroute.New()
	return &capabilityTracker{ttl: ttl, clock: cl, emit: emit, router: router}
}

// Get returns the cached capability, re-probing first if it is stale.
func (t *capabilityTracker) Get() Capability {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clock.Now().Sub(t.cur.DetectedAt) > t.ttl {
		t.probeLocked()
	}
	return t.cur
}

// Refresh forces a re-probe, used on interface-change notifications.
func (t *capabilityTracker) Refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probeLocked()
}

func (t *capabilityTracker) probeLocked() {
	v4 := t.canRoute(net.ParseIP("8.8.8.8"))
	v6 := t.canRoute(net.ParseIP("2001:4860:4860::8888"))
	next := Capability{HasIPv4: v4, HasIPv6: v6, DetectedAt: t.clock.Now()}
	changed := next.HasIPv4 != t.cur.HasIPv4 || next.HasIPv6 != t.cur.HasIPv6
	t.cur = next
	if changed && t.emit != nil {
		t.emit(event.EvtLocalReachabilityChanged{HasIPv4: v4, HasIPv6: v6, DetectedAt: next.DetectedAt})
	}
}

func (t *capabilityTracker) canRoute(dst net.IP) bool {
	if t.router == nil {
		return false
	}
	_, _, src, err := t.router.Route(dst)
	if err != nil {
		return false
	}
	return src != nil && !src.IsUnspecified()
}
