package backoff

import (
	"context"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/host"
	"github.com/student-p2p/swarmkit/core/peer"

	logging "github.com/ipfs/go-log/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

var log = logging.Logger("discovery/backoff")

// DefaultConnectTimeout bounds how long BackoffConnector waits for a single
// discovered-peer dial before giving up on it.
const DefaultConnectTimeout = 10 * time.Second

type backoffEntry struct {
	strat   BackoffStrategy
	nextTry time.Time
}

// BackoffConnector implements (p2p/discovery/mdns).Notifee: rather than
// dialing every rediscovery of a peer on a LAN (mDNS rebroadcasts every few
// seconds), it gates dials for a given peer behind that peer's own backoff
// schedule, cached in a bounded LRU keyed by peer.ID.
type BackoffConnector struct {
	host host.Host

	mu      sync.Mutex
	cache   *lru.Cache[peer.ID, *backoffEntry]
	factory BackoffFactory

	connectTimeout time.Duration
}

// NewBackoffConnector constructs a connector for h, tracking at most
// cacheSize peers' backoff state and minting a fresh BackoffStrategy per
// peer via factory.
func NewBackoffConnector(h host.Host, cacheSize int, factory BackoffFactory) (*BackoffConnector, error) {
	cache, err := lru.New[peer.ID, *backoffEntry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &BackoffConnector{
		host:           h,
		cache:          cache,
		factory:        factory,
		connectTimeout: DefaultConnectTimeout,
	}, nil
}

// HandlePeerFound is called once per mDNS (or other discovery mechanism)
// sighting of pi. If pi is still within its backoff window from a previous
// sighting, this is a no-op; otherwise it advances pi's backoff schedule
// and dials it in the background.
func (c *BackoffConnector) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == c.host.ID() {
		return
	}

	c.mu.Lock()
	now := time.Now()
	entry, ok := c.cache.Get(pi.ID)
	if ok && now.Before(entry.nextTry) {
		c.mu.Unlock()
		return
	}
	if !ok {
		entry = &backoffEntry{strat: c.factory()}
		c.cache.Add(pi.ID, entry)
	}
	entry.nextTry = now.Add(entry.strat.Delay())
	c.mu.Unlock()

	go c.connect(pi)
}

func (c *BackoffConnector) connect(pi peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	defer cancel()
	if err := c.host.Connect(ctx, pi); err != nil {
		log.Debugw("backoff connector failed to dial discovered peer", "peer", pi.ID, "err", err)
	}
}
