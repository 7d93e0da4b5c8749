package swarm

import (
	"context"
	"sync"

	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
)

// swarmConn wraps an upgraded network.Conn with the bookkeeping the swarm
// needs: which Swarm it belongs to (for the clock and notifiee fanout) and
// the set of live streams opened over it, so ClosePeer/connmgr trimming can
// account for open streams per spec.md §4.13.
type swarmConn struct {
	network.Conn

	swarm *Swarm
	dir   network.Direction

	mu      sync.Mutex
	streams map[*stream]struct{}
}

func wrapConn(s *Swarm, c network.Conn) *swarmConn {
	dir := network.DirUnknown
	if c.Stat().Direction != network.DirUnknown {
		dir = c.Stat().Direction
	}
	return &swarmConn{Conn: c, swarm: s, dir: dir, streams: make(map[*stream]struct{})}
}

func (c *swarmConn) addStream(s *stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams[s] = struct{}{}
}

func (c *swarmConn) removeStream(s *stream) {
	c.mu.Lock()
	delete(c.streams, s)
	c.mu.Unlock()
}

func (c *swarmConn) NewStream(ctx context.Context) (network.MuxedStream, error) {
	ms, err := c.Conn.NewStream(ctx)
	if err != nil {
		return nil, err
	}
	s, err := newStream(ms, c)
	if err != nil {
		ms.Reset()
		return nil, err
	}
	return s, nil
}

func (c *swarmConn) GetStreams() []network.MuxedStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]network.MuxedStream, 0, len(c.streams))
	for s := range c.streams {
		out = append(out, s)
	}
	return out
}

func (c *swarmConn) Stat() network.ConnStats {
	st := c.Conn.Stat()
	c.mu.Lock()
	st.NumStreams = len(c.streams)
	c.mu.Unlock()
	return st
}

func (c *swarmConn) Close() error {
	err := c.Conn.Close()
	c.swarm.removeConn(c)
	return err
}

func (c *swarmConn) RemotePeer() peer.ID { return c.Conn.RemotePeer() }

var _ network.Conn = (*swarmConn)(nil)
