package rcmgr

import (
	"testing"

	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/protocol"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func testLimits() LimitConfig {
	l := DefaultLimits()
	l.System.Memory = 1000
	l.Transient.Memory = 1000
	l.Peer.Memory = 100
	l.Peer.StreamsIn, l.Peer.StreamsOut, l.Peer.StreamsTotal = 2, 2, 2
	l.Conn.Memory = 1000
	l.Conn.FD = 1
	l.Stream.Memory = 1000
	return l
}

// S5: a reservation that fits the child scope but not an ancestor must be
// rejected and leave every scope's counters untouched (atomic rollback).
func TestReserveMemoryRollback(t *testing.T) {
	rm := NewResourceManager(WithLimits(testLimits()), WithClock(clock.NewMock()))
	defer rm.Close()

	span, err := rm.OpenConnection(DirOutbound, true)
	require.NoError(t, err)
	defer span.Done()

	require.NoError(t, span.ReserveMemory(50, PriorityDefault))
	before := rm.ViewSystem()

	// Conn limit is 1000 but push system down to make this fail cleanly by
	// draining remaining system budget first.
	require.NoError(t, rm.system.ReserveMemory(940, PriorityDefault))
	err = span.ReserveMemory(100, PriorityDefault)
	require.ErrorIs(t, err, ErrResourceLimitExceeded)

	after := rm.ViewSystem()
	require.Equal(t, before.Memory+940, after.Memory, "rejected reservation must not partially apply")

	rm.system.ReleaseMemory(940)
}

// S6: closing a stream scope twice must not double-decrement the parent
// peer scope's stream counters.
func TestStreamScopeDoneIdempotent(t *testing.T) {
	rm := NewResourceManager(WithLimits(testLimits()), WithClock(clock.NewMock()))
	defer rm.Close()

	p := peer.ID("fake-peer-id-for-scope-test")

	span, err := rm.OpenStream(p, DirOutbound)
	require.NoError(t, err)

	stat := rm.ViewPeer(p)
	require.Equal(t, 1, stat.NumStreamsOut)

	span.Done()
	span.Done() // must be a no-op, not a double-release

	stat = rm.ViewPeer(p)
	require.Equal(t, 0, stat.NumStreamsOut)
}

func TestStreamLimitEnforced(t *testing.T) {
	rm := NewResourceManager(WithLimits(testLimits()), WithClock(clock.NewMock()))
	defer rm.Close()

	p := peer.ID("another-fake-peer-id")
	s1, err := rm.OpenStream(p, DirOutbound)
	require.NoError(t, err)
	s2, err := rm.OpenStream(p, DirOutbound)
	require.NoError(t, err)
	defer s1.Done()
	defer s2.Done()

	_, err = rm.OpenStream(p, DirOutbound)
	require.ErrorIs(t, err, ErrResourceLimitExceeded)
}

func TestAttachProtocolAndService(t *testing.T) {
	rm := NewResourceManager(WithLimits(testLimits()), WithClock(clock.NewMock()))
	defer rm.Close()

	p := peer.ID("proto-peer")
	span, err := rm.OpenStream(p, DirInbound)
	require.NoError(t, err)

	rm.AttachProtocol(span, protocol.ID("/chat/1.0.0"))
	rm.AttachService(span, "chat")

	pstat := rm.ViewProtocol(protocol.ID("/chat/1.0.0"))
	require.Equal(t, 0, pstat.NumStreamsIn) // protocol scope itself doesn't track stream count directly

	span.Done()
}
