package connmgr

import (
	"context"
	"testing"
	"time"

	"github.com/student-p2p/swarmkit/core/connmgr"
	"github.com/student-p2p/swarmkit/core/peer"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestTagPeerAndGetTagInfo(t *testing.T) {
	mc := clock.NewMock()
	m, err := New(DefaultConfig(), WithClock(mc))
	require.NoError(t, err)
	defer m.Close()

	p := peer.ID("peer-a")
	m.TagPeer(p, "useful", 10)
	m.TagPeer(p, "bootstrap", 5)

	info := m.GetTagInfo(p)
	require.NotNil(t, info)
	require.Equal(t, 15, info.Value)

	m.UntagPeer(p, "bootstrap")
	info = m.GetTagInfo(p)
	require.Equal(t, 10, info.Value)
}

func TestDecayingTagTicksDown(t *testing.T) {
	mc := clock.NewMock()
	m, err := New(DefaultConfig(), WithClock(mc))
	require.NoError(t, err)
	defer m.Close()

	tag, err := m.RegisterDecayingTag("pings", time.Second, func(v connmgr.DecayingValue) (int, bool) {
		if v.Value <= 1 {
			return 0, true
		}
		return v.Value - 1, false
	}, func(v connmgr.DecayingValue, delta int) int {
		return v.Value + delta
	})
	require.NoError(t, err)

	p := peer.ID("peer-b")
	require.NoError(t, tag.Bump(p, 3))
	require.Equal(t, 3, m.GetTagInfo(p).Value)

	mc.Add(time.Second)
	require.Eventually(t, func() bool {
		info := m.GetTagInfo(p)
		return info != nil && info.Value == 2
	}, time.Second, 5*time.Millisecond)
}

func TestTrimOpenConnsRespectsProtected(t *testing.T) {
	cfg := Config{LowWater: 1, HighWater: 2, GracePeriod: 0}
	mc := clock.NewMock()
	m, err := New(cfg, WithClock(mc))
	require.NoError(t, err)
	defer m.Close()

	protected := peer.ID("protected-peer")
	m.Protect(protected)

	m.TrimOpenConns(context.Background())
	// No connections registered yet; this just exercises the early-return
	// and protected-peer skip paths without panicking.
}
