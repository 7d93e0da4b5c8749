package upgrader

import (
	"context"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/sec"
	"github.com/student-p2p/swarmkit/core/transport"
	rcmgr "github.com/student-p2p/swarmkit/p2p/host/resource-manager"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"
)

// conn implements core/network.Conn by composing a secured net.Conn with a
// muxed session over it, per spec.md §4.10.
type conn struct {
	muxed network.MuxedConn
	sec   sec.SecureConn
	raw   transport.CapableConn
	dir   network.Direction

	id     string
	opened time.Time
	span   *rcmgr.ResourceScopeSpan

	tracker *connectednessTracker

	mu      sync.Mutex
	closed  bool
	streams map[*trackedStream]struct{}
}

func (c *conn) ID() string {
	if c.id == "" {
		c.id = uuid.NewString()
	}
	return c.id
}

func (c *conn) LocalMultiaddr() ma.Multiaddr  { return c.raw.LocalMultiaddr() }
func (c *conn) RemoteMultiaddr() ma.Multiaddr { return c.raw.RemoteMultiaddr() }

func (c *conn) LocalPeer() peer.ID               { return c.sec.LocalPeer() }
func (c *conn) RemotePeer() peer.ID              { return c.sec.RemotePeer() }
func (c *conn) RemotePublicKey() crypto.PubKey   { return c.sec.RemotePublicKey() }

func (c *conn) IsClosed() bool { return c.muxed.IsClosed() }

func (c *conn) Stat() network.ConnStats {
	c.mu.Lock()
	n := len(c.streams)
	c.mu.Unlock()
	return network.ConnStats{Direction: c.dir, Opened: c.opened, NumStreams: n}
}

func (c *conn) NewStream(ctx context.Context) (network.MuxedStream, error) {
	s, err := c.muxed.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	return c.track(s), nil
}

func (c *conn) GetStreams() []network.MuxedStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]network.MuxedStream, 0, len(c.streams))
	for s := range c.streams {
		out = append(out, s)
	}
	return out
}

func (c *conn) track(s network.MuxedStream) *trackedStream {
	ts := &trackedStream{MuxedStream: s, parent: c}
	c.mu.Lock()
	if c.streams == nil {
		c.streams = make(map[*trackedStream]struct{})
	}
	c.streams[ts] = struct{}{}
	c.mu.Unlock()
	return ts
}

func (c *conn) untrack(ts *trackedStream) {
	c.mu.Lock()
	delete(c.streams, ts)
	c.mu.Unlock()
}

// AcceptStream promotes the next inbound MuxedStream from the muxed
// session into the connection's tracked set; used by the swarm's per-conn
// accept loop.
func (c *conn) AcceptStream() (network.MuxedStream, error) {
	s, err := c.muxed.AcceptStream()
	if err != nil {
		return nil, err
	}
	return c.track(s), nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.tracker.dec(c.sec.RemotePeer())
	c.span.Done()
	return c.muxed.Close()
}

// trackedStream wraps a MuxedStream so conn can maintain its GetStreams
// view and so stream close deregisters it, per spec.md §4.13's "idempotent
// stream/connection cleanup" scenario.
type trackedStream struct {
	network.MuxedStream
	parent *conn
	once   sync.Once
}

func (s *trackedStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.MuxedStream.Close()
		s.parent.untrack(s)
	})
	return err
}

func (s *trackedStream) Reset() error {
	var err error
	s.once.Do(func() {
		err = s.MuxedStream.Reset()
		s.parent.untrack(s)
	})
	return err
}

var _ network.Conn = (*conn)(nil)
