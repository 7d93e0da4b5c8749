// Package conngater implements core/connmgr.ConnGater as a blocklist over
// peer IDs, IPs and subnets, per spec.md §4.12.
package conngater

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/student-p2p/swarmkit/core/connmgr"
	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"

	ds "github.com/ipfs/go-datastore"
	dsquery "github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

var log = logging.Logger("conngater")

const (
	peerKeyPrefix = "/peers/"
	ipKeyPrefix   = "/ips/"
	subnetKeyPrefix = "/subnets/"
)

// BasicConnGater vetoes dials/accepts against a blocklist, optionally
// persisted through an ipfs/go-datastore (ds-leveldb in production, an
// in-memory map-datastore in tests), matching the teacher's own
// datastore-backed conngater variant.
type BasicConnGater struct {
	mu       sync.RWMutex
	store    ds.Datastore
	peers    map[peer.ID]struct{}
	ips      map[string]struct{}
	subnets  []*net.IPNet
}

// NewBasicConnGater loads any persisted blocklist entries from store (pass
// a fresh ds-leveldb or datastore.NewMapDatastore() for an ephemeral
// gater) and returns a ready-to-use ConnGater.
func NewBasicConnGater(store ds.Datastore) (*BasicConnGater, error) {
	g := &BasicConnGater{
		store: store,
		peers: make(map[peer.ID]struct{}),
		ips:   make(map[string]struct{}),
	}
	if err := g.loadRules(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *BasicConnGater) loadRules() error {
	ctx := context.Background()
	res, err := g.store.Query(ctx, dsquery.Query{Prefix: peerKeyPrefix})
	if err != nil {
		return err
	}
	entries, err := res.Rest()
	if err != nil {
		return err
	}
	for _, e := range entries {
		g.peers[peer.ID(e.Value)] = struct{}{}
	}

	res, err = g.store.Query(ctx, dsquery.Query{Prefix: ipKeyPrefix})
	if err != nil {
		return err
	}
	entries, err = res.Rest()
	if err != nil {
		return err
	}
	for _, e := range entries {
		g.ips[string(e.Value)] = struct{}{}
	}

	res, err = g.store.Query(ctx, dsquery.Query{Prefix: subnetKeyPrefix})
	if err != nil {
		return err
	}
	entries, err = res.Rest()
	if err != nil {
		return err
	}
	for _, e := range entries {
		_, ipnet, err := net.ParseCIDR(string(e.Value))
		if err == nil {
			g.subnets = append(g.subnets, ipnet)
		}
	}
	return nil
}

// BlockPeer adds p to the blocklist, persisting the entry.
func (g *BasicConnGater) BlockPeer(p peer.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.peers[p] = struct{}{}
	return g.store.Put(context.Background(), ds.NewKey(peerKeyPrefix+string(p)), []byte(p))
}

func (g *BasicConnGater) UnblockPeer(p peer.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.peers, p)
	return g.store.Delete(context.Background(), ds.NewKey(peerKeyPrefix+string(p)))
}

// BlockAddr adds a single IP to the blocklist.
func (g *BasicConnGater) BlockAddr(ip net.IP) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := ip.String()
	g.ips[key] = struct{}{}
	return g.store.Put(context.Background(), ds.NewKey(ipKeyPrefix+key), []byte(key))
}

func (g *BasicConnGater) UnblockAddr(ip net.IP) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := ip.String()
	delete(g.ips, key)
	return g.store.Delete(context.Background(), ds.NewKey(ipKeyPrefix+key))
}

// BlockSubnet adds a CIDR range to the blocklist.
func (g *BasicConnGater) BlockSubnet(ipnet *net.IPNet) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subnets = append(g.subnets, ipnet)
	return g.store.Put(context.Background(), ds.NewKey(subnetKeyPrefix+ipnet.String()), []byte(ipnet.String()))
}

func (g *BasicConnGater) UnblockSubnet(ipnet *net.IPNet) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	target := ipnet.String()
	for i, n := range g.subnets {
		if n.String() == target {
			g.subnets = append(g.subnets[:i], g.subnets[i+1:]...)
			break
		}
	}
	return g.store.Delete(context.Background(), ds.NewKey(subnetKeyPrefix+target))
}

func (g *BasicConnGater) blockedIP(ip net.IP) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.ips[ip.String()]; ok {
		return true
	}
	for _, n := range g.subnets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (g *BasicConnGater) InterceptPeerDial(p peer.ID) bool {
	g.mu.RLock()
	_, blocked := g.peers[p]
	g.mu.RUnlock()
	return !blocked
}

func (g *BasicConnGater) InterceptAddrDial(p peer.ID, addr ma.Multiaddr) bool {
	if !g.InterceptPeerDial(p) {
		return false
	}
	ip, err := manet.ToIP(addr)
	if err != nil {
		return true // non-IP transport addresses (e.g. /memory/...) are never gated on IP
	}
	return !g.blockedIP(ip)
}

func (g *BasicConnGater) InterceptAccept(c network.ConnMultiaddrs) bool {
	ip, err := manet.ToIP(c.RemoteMultiaddr())
	if err != nil {
		return true
	}
	return !g.blockedIP(ip)
}

func (g *BasicConnGater) InterceptSecured(dir network.Direction, p peer.ID, c network.ConnMultiaddrs) bool {
	return g.InterceptPeerDial(p)
}

func (g *BasicConnGater) InterceptUpgraded(c network.Conn) (bool, connmgr.DisconnectReason) {
	if !g.InterceptPeerDial(c.RemotePeer()) {
		return false, 1
	}
	return true, 0
}

func (g *BasicConnGater) String() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fmt.Sprintf("conngater: %d peers, %d ips, %d subnets blocked", len(g.peers), len(g.ips), len(g.subnets))
}

var _ connmgr.ConnGater = (*BasicConnGater)(nil)
