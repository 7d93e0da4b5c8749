// Package pstoremem is an in-memory Peerstore, per spec.md §4.4. No on-disk
// persistence is mandated by the core (spec.md §6); callers needing
// persistence plug in their own implementation of core/peerstore.Peerstore.
package pstoremem

import (
	"context"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/peerstore"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
)

type expiringAddr struct {
	Addr    ma.Multiaddr
	Expiry  time.Time
	TTL     time.Duration
}

func (e *expiringAddr) ExpiredBy(t time.Time) bool { return t.After(e.Expiry) }

// memoryAddrBook implements core/peerstore.AddrBook with a 16-way sharded
// sync.RWMutex, matching the teacher's pstoremem sharding.
const nShards = 16

type addrShard struct {
	sync.RWMutex
	addrs map[peer.ID]map[string]*expiringAddr
}

type memoryAddrBook struct {
	shards [nShards]*addrShard
	clock  clock.Clock

	subsMu sync.Mutex
	subs   map[peer.ID][]chan ma.Multiaddr

	stopGC chan struct{}
	wg     sync.WaitGroup
}

func shardFor(p peer.ID) int {
	if len(p) == 0 {
		return 0
	}
	return int(p[len(p)-1]) % nShards
}

// NewAddrBook constructs an in-memory AddrBook with a background TTL
// sweeper, per spec.md §4.4.
func NewAddrBook(cl clock.Clock, sweepInterval time.Duration) *memoryAddrBook {
	if cl == nil {
		cl = clock.New()
	}
	ab := &memoryAddrBook{
		clock:  cl,
		subs:   make(map[peer.ID][]chan ma.Multiaddr),
		stopGC: make(chan struct{}),
	}
	for i := range ab.shards {
		ab.shards[i] = &addrShard{addrs: make(map[peer.ID]map[string]*expiringAddr)}
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	ab.wg.Add(1)
	go ab.background(sweepInterval)
	return ab
}

func (ab *memoryAddrBook) Close() error {
	close(ab.stopGC)
	ab.wg.Wait()
	return nil
}

func (ab *memoryAddrBook) background(interval time.Duration) {
	defer ab.wg.Done()
	ticker := ab.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ab.sweep()
		case <-ab.stopGC:
			return
		}
	}
}

func (ab *memoryAddrBook) sweep() {
	now := ab.clock.Now()
	for _, shard := range ab.shards {
		shard.Lock()
		for p, m := range shard.addrs {
			for k, ea := range m {
				if ea.TTL != peerstore.PermanentAddrTTL && ea.ExpiredBy(now) {
					delete(m, k)
				}
			}
			if len(m) == 0 {
				delete(shard.addrs, p)
			}
		}
		shard.Unlock()
	}
}

// AddAddr merges a single address with the given ttl.
func (ab *memoryAddrBook) AddAddr(p peer.ID, addr ma.Multiaddr, ttl time.Duration) {
	ab.AddAddrs(p, []ma.Multiaddr{addr}, ttl)
}

// AddAddrs merges addrs: each (peer, addr)'s expiry becomes
// max(existing expiry, now+ttl), per spec.md §4.4.
func (ab *memoryAddrBook) AddAddrs(p peer.ID, addrs []ma.Multiaddr, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := ab.clock.Now()
	newExpiry := now.Add(ttl)
	shard := ab.shards[shardFor(p)]
	shard.Lock()
	m, ok := shard.addrs[p]
	if !ok {
		m = make(map[string]*expiringAddr)
		shard.addrs[p] = m
	}
	var added []ma.Multiaddr
	for _, addr := range addrs {
		key := addr.String()
		if existing, ok := m[key]; ok {
			if ttl == peerstore.PermanentAddrTTL || newExpiry.After(existing.Expiry) {
				existing.Expiry = newExpiry
				existing.TTL = ttl
			}
			continue
		}
		m[key] = &expiringAddr{Addr: addr, Expiry: newExpiry, TTL: ttl}
		added = append(added, addr)
	}
	shard.Unlock()

	if len(added) > 0 {
		ab.notifySubs(p, added)
	}
}

// SetAddr replaces the TTL for addr unconditionally.
func (ab *memoryAddrBook) SetAddr(p peer.ID, addr ma.Multiaddr, ttl time.Duration) {
	ab.SetAddrs(p, []ma.Multiaddr{addr}, ttl)
}

func (ab *memoryAddrBook) SetAddrs(p peer.ID, addrs []ma.Multiaddr, ttl time.Duration) {
	now := ab.clock.Now()
	shard := ab.shards[shardFor(p)]
	shard.Lock()
	m, ok := shard.addrs[p]
	if !ok {
		m = make(map[string]*expiringAddr)
		shard.addrs[p] = m
	}
	var added []ma.Multiaddr
	for _, addr := range addrs {
		key := addr.String()
		if ttl <= 0 {
			delete(m, key)
			continue
		}
		if _, existed := m[key]; !existed {
			added = append(added, addr)
		}
		m[key] = &expiringAddr{Addr: addr, Expiry: now.Add(ttl), TTL: ttl}
	}
	shard.Unlock()
	if len(added) > 0 {
		ab.notifySubs(p, added)
	}
}

// UpdateAddrs extends/shortens the TTL of addrs currently tagged oldTTL.
func (ab *memoryAddrBook) UpdateAddrs(p peer.ID, oldTTL, newTTL time.Duration) {
	now := ab.clock.Now()
	shard := ab.shards[shardFor(p)]
	shard.Lock()
	defer shard.Unlock()
	m, ok := shard.addrs[p]
	if !ok {
		return
	}
	for k, ea := range m {
		if ea.TTL == oldTTL {
			if newTTL <= 0 {
				delete(m, k)
				continue
			}
			ea.TTL = newTTL
			ea.Expiry = now.Add(newTTL)
		}
	}
}

// Addrs returns non-expired addresses for p, per spec.md §4.4.
func (ab *memoryAddrBook) Addrs(p peer.ID) []ma.Multiaddr {
	now := ab.clock.Now()
	shard := ab.shards[shardFor(p)]
	shard.RLock()
	defer shard.RUnlock()
	m := shard.addrs[p]
	out := make([]ma.Multiaddr, 0, len(m))
	for _, ea := range m {
		if ea.TTL == peerstore.PermanentAddrTTL || !ea.ExpiredBy(now) {
			out = append(out, ea.Addr)
		}
	}
	return out
}

func (ab *memoryAddrBook) ClearAddrs(p peer.ID) {
	shard := ab.shards[shardFor(p)]
	shard.Lock()
	delete(shard.addrs, p)
	shard.Unlock()
}

func (ab *memoryAddrBook) PeersWithAddrs() []peer.ID {
	var out []peer.ID
	for _, shard := range ab.shards {
		shard.RLock()
		for p, m := range shard.addrs {
			if len(m) > 0 {
				out = append(out, p)
			}
		}
		shard.RUnlock()
	}
	return out
}

// AddrStream streams newly-added addresses for p until ctx is done.
func (ab *memoryAddrBook) AddrStream(ctx context.Context, p peer.ID) <-chan ma.Multiaddr {
	ch := make(chan ma.Multiaddr, 16)
	for _, a := range ab.Addrs(p) {
		ch <- a
	}
	ab.subsMu.Lock()
	ab.subs[p] = append(ab.subs[p], ch)
	ab.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		ab.subsMu.Lock()
		defer ab.subsMu.Unlock()
		subs := ab.subs[p]
		for i, c := range subs {
			if c == ch {
				ab.subs[p] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (ab *memoryAddrBook) notifySubs(p peer.ID, addrs []ma.Multiaddr) {
	ab.subsMu.Lock()
	defer ab.subsMu.Unlock()
	for _, ch := range ab.subs[p] {
		for _, a := range addrs {
			select {
			case ch <- a:
			default:
			}
		}
	}
}
