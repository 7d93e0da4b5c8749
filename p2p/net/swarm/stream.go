package swarm

import (
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/protocol"
	rcmgr "github.com/student-p2p/swarmkit/p2p/host/resource-manager"

	"github.com/google/uuid"
)

// stream implements core/network.Stream: a MuxedStream annotated with its
// negotiated protocol ID once multistream-select completes (performed by
// the Host facade, not here — Network.NewStream only opens the raw duplex
// channel, per the split already fixed by core/network.Network's
// signature). Cleanup is idempotent: Close/Reset may be called any number
// of times in any combination, the owning connection's stream set is
// pruned exactly once, per spec.md §4.13.
type stream struct {
	network.MuxedStream

	id   string
	conn *swarmConn

	mu       sync.Mutex
	protoSet bool
	proto    protocol.ID
	opened   time.Time
	removed  bool
	span     *rcmgr.ResourceScopeSpan
}

func newStream(ms network.MuxedStream, c *swarmConn) (*stream, error) {
	var span *rcmgr.ResourceScopeSpan
	if c.swarm.rm != nil {
		var err error
		span, err = c.swarm.rm.OpenStream(c.RemotePeer(), rcmgrDirection(c.dir))
		if err != nil {
			return nil, err
		}
	}
	s := &stream{
		MuxedStream: ms,
		id:          uuid.NewString(),
		conn:        c,
		opened:      c.swarm.clock.Now(),
		span:        span,
	}
	c.addStream(s)
	return s, nil
}

// rcmgrDirection maps core/network's Direction onto rcmgr's own Direction
// type, which deliberately avoids importing core/network (see
// p2p/host/resource-manager/scope.go).
func rcmgrDirection(dir network.Direction) rcmgr.Direction {
	if dir == network.DirInbound {
		return rcmgr.DirInbound
	}
	return rcmgr.DirOutbound
}

func (s *stream) ID() string { return s.id }

func (s *stream) Protocol() protocol.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proto
}

func (s *stream) SetProtocol(id protocol.ID) error {
	s.mu.Lock()
	s.proto = id
	s.protoSet = true
	span := s.span
	s.mu.Unlock()
	if span != nil && s.conn.swarm.rm != nil {
		s.conn.swarm.rm.AttachProtocol(span, id)
	}
	return nil
}

func (s *stream) Stat() network.ConnStats {
	return network.ConnStats{Direction: s.conn.dir, Opened: s.opened}
}

func (s *stream) Conn() network.Conn { return s.conn }

func (s *stream) Close() error {
	err := s.MuxedStream.Close()
	s.removeOnce()
	return err
}

func (s *stream) Reset() error {
	err := s.MuxedStream.Reset()
	s.removeOnce()
	return err
}

func (s *stream) removeOnce() {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	s.removed = true
	span := s.span
	s.mu.Unlock()
	s.conn.removeStream(s)
	if span != nil {
		span.Done()
	}
}

var _ network.Stream = (*stream)(nil)
