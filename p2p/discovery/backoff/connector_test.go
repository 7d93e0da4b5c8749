package backoff

import (
	"testing"
	"time"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/transport"
	basichost "github.com/student-p2p/swarmkit/p2p/host/basic"
	"github.com/student-p2p/swarmkit/p2p/host/eventbus"
	"github.com/student-p2p/swarmkit/p2p/host/peerstore/pstoremem"
	rcmgr "github.com/student-p2p/swarmkit/p2p/host/resource-manager"
	"github.com/student-p2p/swarmkit/p2p/muxer/yamux"
	"github.com/student-p2p/swarmkit/p2p/net/swarm"
	"github.com/student-p2p/swarmkit/p2p/net/upgrader"
	"github.com/student-p2p/swarmkit/p2p/security/noise"
	memtransport "github.com/student-p2p/swarmkit/p2p/transport/memory"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

func newConnectorTestHost(t *testing.T, addr string) (*basichost.BasicHost, peer.ID) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair(crypto.Ed25519, 0)
	require.NoError(t, err)
	id, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)

	ps := pstoremem.NewPeerstore(clock.New(), time.Minute)
	require.NoError(t, ps.AddPrivKey(id, priv))
	require.NoError(t, ps.AddPubKey(id, pub))

	bus := eventbus.NewBus()
	rm := rcmgr.NewResourceManager()
	sec, err := noise.New(priv)
	require.NoError(t, err)
	up, err := upgrader.New(id, sec, yamux.New(), rm, bus)
	require.NoError(t, err)

	mt := &memtransport.Transport{}
	sw, err := swarm.New(id, ps, bus, up, []transport.Transport{mt})
	require.NoError(t, err)

	h, err := basichost.New(sw, ps, bus)
	require.NoError(t, err)

	laddr, err := ma.NewMultiaddr(addr)
	require.NoError(t, err)
	require.NoError(t, h.Network().Listen(laddr))

	return h, id
}

func TestBackoffConnectorDialsNewlyDiscoveredPeer(t *testing.T) {
	a, _ := newConnectorTestHost(t, "/memory/620101")
	b, bID := newConnectorTestHost(t, "/memory/620102")
	defer a.Close()
	defer b.Close()

	c, err := NewBackoffConnector(a, 64, NewFixedBackoff(time.Hour))
	require.NoError(t, err)

	c.HandlePeerFound(peer.AddrInfo{ID: bID, Addrs: b.Network().ListenAddresses()})

	require.Eventually(t, func() bool {
		return len(a.Network().ConnsToPeer(bID)) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBackoffConnectorSuppressesRediscoveryDuringBackoff(t *testing.T) {
	a, _ := newConnectorTestHost(t, "/memory/620201")
	defer a.Close()

	calls := 0
	c, err := NewBackoffConnector(a, 64, func() BackoffStrategy {
		calls++
		return &fixedBackoff{delay: time.Hour}
	})
	require.NoError(t, err)

	other := peer.AddrInfo{ID: peer.ID("nonexistent-peer-id"), Addrs: nil}
	c.HandlePeerFound(other)
	c.HandlePeerFound(other)
	c.HandlePeerFound(other)

	require.Equal(t, 1, calls, "a cached peer should mint its backoff strategy exactly once")
}
