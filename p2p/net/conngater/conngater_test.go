package conngater

import (
	"net"
	"testing"

	"github.com/student-p2p/swarmkit/core/peer"

	datastore "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/require"
)

func newTestGater(t *testing.T) *BasicConnGater {
	t.Helper()
	g, err := NewBasicConnGater(datastore.NewMapDatastore())
	require.NoError(t, err)
	return g
}

func TestBlockPeer(t *testing.T) {
	g := newTestGater(t)
	p := peer.ID("blocked-peer")

	require.True(t, g.InterceptPeerDial(p))
	require.NoError(t, g.BlockPeer(p))
	require.False(t, g.InterceptPeerDial(p))

	require.NoError(t, g.UnblockPeer(p))
	require.True(t, g.InterceptPeerDial(p))
}

func TestBlockSubnet(t *testing.T) {
	g := newTestGater(t)
	_, ipnet, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)
	require.NoError(t, g.BlockSubnet(ipnet))

	require.True(t, g.blockedIP(net.ParseIP("10.1.2.3")))
	require.False(t, g.blockedIP(net.ParseIP("192.168.1.1")))

	require.NoError(t, g.UnblockSubnet(ipnet))
	require.False(t, g.blockedIP(net.ParseIP("10.1.2.3")))
}

func TestReloadPersistedRules(t *testing.T) {
	store := datastore.NewMapDatastore()
	g1, err := NewBasicConnGater(store)
	require.NoError(t, err)
	p := peer.ID("persisted-peer")
	require.NoError(t, g1.BlockPeer(p))
	require.NoError(t, g1.BlockAddr(net.ParseIP("1.2.3.4")))

	g2, err := NewBasicConnGater(store)
	require.NoError(t, err)
	require.False(t, g2.InterceptPeerDial(p))
	require.True(t, g2.blockedIP(net.ParseIP("1.2.3.4")))
}
