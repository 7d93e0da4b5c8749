package libp2pkit

import (
	"context"
	"testing"
	"time"

	"github.com/student-p2p/swarmkit/config"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/p2p/net/conngater"

	datastore "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewAssemblesAConnectableHost(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a, err := New(config.ListenAddrStrings("/memory/710101"))
	require.NoError(t, err)
	defer a.Close()

	b, err := New(config.ListenAddrStrings("/memory/710102"))
	require.NoError(t, err)
	defer b.Close()

	err = a.Connect(context.Background(), peer.AddrInfo{ID: b.ID(), Addrs: b.Addrs()})
	require.NoError(t, err)
	require.NotEmpty(t, a.Network().ConnsToPeer(b.ID()))
}

func TestNewWithIdentifyPopulatesPeerProtocols(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	a, err := New(config.ListenAddrStrings("/memory/710201"), config.EnableIdentify())
	require.NoError(t, err)
	defer a.Close()

	b, err := New(config.ListenAddrStrings("/memory/710202"), config.EnableIdentify())
	require.NoError(t, err)
	defer b.Close()

	require.NotNil(t, a.IdentifyService())
	require.NotNil(t, b.IdentifyService())

	require.NoError(t, a.Connect(context.Background(), peer.AddrInfo{ID: b.ID(), Addrs: b.Addrs()}))

	require.Eventually(t, func() bool {
		protos, err := a.Peerstore().GetProtocols(b.ID())
		return err == nil && len(protos) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewRejectsBadListenAddr(t *testing.T) {
	_, err := New(config.ListenAddrStrings("not-a-multiaddr"))
	require.Error(t, err)
}

func TestNewWithConnGaterBlocksDial(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b, err := New(config.ListenAddrStrings("/memory/710302"))
	require.NoError(t, err)
	defer b.Close()

	store := datastore.NewMapDatastore()
	preload, err := conngater.NewBasicConnGater(store)
	require.NoError(t, err)
	require.NoError(t, preload.BlockPeer(b.ID()))

	a, err := New(config.ListenAddrStrings("/memory/710301"), config.ConnGater(store))
	require.NoError(t, err)
	defer a.Close()

	err = a.Connect(context.Background(), peer.AddrInfo{ID: b.ID(), Addrs: b.Addrs()})
	require.Error(t, err)
}
