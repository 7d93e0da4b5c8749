package config

import (
	"testing"
	"time"

	datastore "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsUsableWithNoOptions(t *testing.T) {
	c := Default()
	require.Equal(t, time.Minute, c.PeerstoreSweepInterval)
	require.False(t, c.EnableIdentify)
	require.False(t, c.EnableMDNS)
	require.False(t, c.EnableNATTracker)
}

func TestListenAddrStringsParsesAndAppends(t *testing.T) {
	c := Default()
	require.NoError(t, ListenAddrStrings("/memory/1", "/memory/2")(&c))
	require.Len(t, c.ListenAddrs, 2)
	require.Equal(t, "/memory/1", c.ListenAddrs[0].String())
}

func TestListenAddrStringsRejectsGarbage(t *testing.T) {
	c := Default()
	require.Error(t, ListenAddrStrings("not-a-multiaddr")(&c))
}

func TestConnectionManagerOverridesWatermarks(t *testing.T) {
	c := Default()
	require.NoError(t, ConnectionManager(10, 20, time.Minute)(&c))
	require.True(t, c.UseConnMgr)
	require.Equal(t, 10, c.ConnMgr.LowWater)
	require.Equal(t, 20, c.ConnMgr.HighWater)
}

func TestEnableMDNSDiscoveryKeepsDefaultsWhenUnset(t *testing.T) {
	c := Default()
	require.NoError(t, EnableMDNSDiscovery("", 0)(&c))
	require.True(t, c.EnableMDNS)
	require.Equal(t, "_p2p._udp", c.MDNSServiceName)
	require.Equal(t, 128, c.DiscoveryCacheLen)
}

func TestEnableMDNSDiscoveryOverridesWhenSet(t *testing.T) {
	c := Default()
	require.NoError(t, EnableMDNSDiscovery("_custom._udp", 32)(&c))
	require.Equal(t, "_custom._udp", c.MDNSServiceName)
	require.Equal(t, 32, c.DiscoveryCacheLen)
}

func TestConnGaterSetsStore(t *testing.T) {
	c := Default()
	require.Nil(t, c.ConnGaterStore)
	store := datastore.NewMapDatastore()
	require.NoError(t, ConnGater(store)(&c))
	require.Same(t, store, c.ConnGaterStore)
}

func TestEnableNATServiceTrackerKeepsDefaultIntervalWhenZero(t *testing.T) {
	c := Default()
	require.NoError(t, EnableNATServiceTracker([]string{"stun.example:3478"}, 0)(&c))
	require.True(t, c.EnableNATTracker)
	require.Equal(t, 10*time.Minute, c.NATProbeInterval)
	require.Equal(t, []string{"stun.example:3478"}, c.STUNServers)
}
