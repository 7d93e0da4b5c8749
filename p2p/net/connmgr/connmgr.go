// Package connmgr implements core/connmgr.ConnManager: a low/high-water
// connection count with decaying per-peer tags used to score which
// connections to trim first, per spec.md §4.12.
package connmgr

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/connmgr"
	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/arc/v2"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("connmgr")

const segmentCacheSize = 4096

// Config bounds the manager's behavior.
type Config struct {
	LowWater  int
	HighWater int
	GracePeriod time.Duration
}

func DefaultConfig() Config {
	return Config{LowWater: 160, HighWater: 192, GracePeriod: 20 * time.Second}
}

type peerTags struct {
	firstSeen time.Time
	tags      map[string]int
	protected bool
}

func (pt *peerTags) score() int {
	total := 0
	for _, v := range pt.tags {
		total += v
	}
	return total
}

// BasicConnManager implements core/connmgr.ConnManager with an ARC-backed
// segment cache for per-peer tag state, the way the teacher's connmgr
// package uses hashicorp/golang-lru/arc for exactly this.
type BasicConnManager struct {
	cfg   Config
	clock clock.Clock

	mu    sync.Mutex
	peers *lru.ARCCache[peer.ID, *peerTags]
	conns map[peer.ID][]network.Conn

	decaying map[string]*decayingTagState

	closeCh chan struct{}
}

// Option configures a BasicConnManager at construction time.
type Option func(*BasicConnManager)

func WithClock(cl clock.Clock) Option {
	return func(m *BasicConnManager) { m.clock = cl }
}

// New constructs a BasicConnManager and starts its periodic trim loop.
func New(cfg Config, opts ...Option) (*BasicConnManager, error) {
	cache, err := lru.NewARC[peer.ID, *peerTags](segmentCacheSize)
	if err != nil {
		return nil, err
	}
	m := &BasicConnManager{
		cfg:     cfg,
		clock:   clock.New(),
		peers:   cache,
		conns:   make(map[peer.ID][]network.Conn),
		closeCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	go m.background()
	return m, nil
}

func (m *BasicConnManager) background() {
	t := m.clock.Ticker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.TrimOpenConns(context.Background())
		case <-m.closeCh:
			return
		}
	}
}

func (m *BasicConnManager) entry(p peer.ID) *peerTags {
	if pt, ok := m.peers.Get(p); ok {
		return pt
	}
	pt := &peerTags{firstSeen: m.clock.Now(), tags: make(map[string]int)}
	m.peers.Add(p, pt)
	return pt
}

func (m *BasicConnManager) TagPeer(p peer.ID, tag string, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt := m.entry(p)
	pt.tags[tag] = value
}

func (m *BasicConnManager) UntagPeer(p peer.ID, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pt, ok := m.peers.Get(p); ok {
		delete(pt.tags, tag)
	}
}

func (m *BasicConnManager) UpsertTag(p peer.ID, tag string, upsert func(int) int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt := m.entry(p)
	pt.tags[tag] = upsert(pt.tags[tag])
}

func (m *BasicConnManager) GetTagInfo(p peer.ID) *connmgr.TagInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt, ok := m.peers.Get(p)
	if !ok {
		return nil
	}
	out := &connmgr.TagInfo{FirstSeen: pt.firstSeen, Value: pt.score(), Tags: make(map[string]int, len(pt.tags))}
	for k, v := range pt.tags {
		out.Tags[k] = v
	}
	return out
}

// Protect marks a peer's connections as never eligible for trimming, the
// way the teacher's connmgr exempts e.g. bootstrap peers.
func (m *BasicConnManager) Protect(p peer.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(p).protected = true
}

func (m *BasicConnManager) Unprotect(p peer.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt, ok := m.peers.Get(p)
	if !ok {
		return false
	}
	pt.protected = false
	return true
}

// TrimOpenConns closes the lowest-scored, unprotected, grace-period-
// expired connections down to cfg.LowWater, per spec.md §4.12.
func (m *BasicConnManager) TrimOpenConns(ctx context.Context) {
	m.mu.Lock()
	total := 0
	for _, cs := range m.conns {
		total += len(cs)
	}
	if total <= m.cfg.HighWater {
		m.mu.Unlock()
		return
	}

	type candidate struct {
		p     peer.ID
		score int
		conns []network.Conn
	}
	var candidates []candidate
	now := m.clock.Now()
	for p, cs := range m.conns {
		pt, ok := m.peers.Get(p)
		if ok && pt.protected {
			continue
		}
		if ok && now.Sub(pt.firstSeen) < m.cfg.GracePeriod {
			continue
		}
		score := 0
		if ok {
			score = pt.score()
		}
		candidates = append(candidates, candidate{p: p, score: score, conns: cs})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	toClose := total - m.cfg.LowWater
	m.mu.Unlock()

	for _, c := range candidates {
		if toClose <= 0 {
			return
		}
		for _, conn := range c.conns {
			if toClose <= 0 {
				break
			}
			log.Debugw("trimming connection", "peer", c.p, "score", c.score)
			_ = conn.Close()
			toClose--
		}
	}
}

func (m *BasicConnManager) Notifee() network.Notifiee {
	return &network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			m.mu.Lock()
			m.entry(c.RemotePeer())
			m.conns[c.RemotePeer()] = append(m.conns[c.RemotePeer()], c)
			m.mu.Unlock()
		},
		DisconnectedF: func(_ network.Network, c network.Conn) {
			m.mu.Lock()
			cs := m.conns[c.RemotePeer()]
			for i, existing := range cs {
				if existing == c {
					cs = append(cs[:i], cs[i+1:]...)
					break
				}
			}
			if len(cs) == 0 {
				delete(m.conns, c.RemotePeer())
			} else {
				m.conns[c.RemotePeer()] = cs
			}
			m.mu.Unlock()
		},
	}
}

func (m *BasicConnManager) Close() error {
	close(m.closeCh)
	return nil
}

var _ connmgr.ConnManager = (*BasicConnManager)(nil)
