package identify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/event"
	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/protocol"
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

type testPeer struct {
	host *basichost.BasicHost
	id   peer.ID
}

func newIdentifyTestHost(t *testing.T, addr string) testPeer {
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

	if addr != "" {
		laddr, err := ma.NewMultiaddr(addr)
		require.NoError(t, err)
		require.NoError(t, h.Network().Listen(laddr))
	}

	return testPeer{host: h, id: id}
}

func connect(t *testing.T, from, to testPeer) {
	t.Helper()
	addrs := to.host.Network().ListenAddresses()
	require.NotEmpty(t, addrs)
	from.host.Peerstore().AddAddrs(to.id, addrs, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, from.host.Connect(ctx, peer.AddrInfo{ID: to.id, Addrs: addrs}))
}

func TestIdentifyExchangesListenAddrsAndProtocols(t *testing.T) {
	a := newIdentifyTestHost(t, "/memory/600101")
	b := newIdentifyTestHost(t, "/memory/600102")
	defer a.host.Close()
	defer b.host.Close()

	idsA, err := NewIDService(a.host, WithUserAgent("test-agent-a"))
	require.NoError(t, err)
	idsA.Start()
	defer idsA.Close()

	idsB, err := NewIDService(b.host, WithUserAgent("test-agent-b"))
	require.NoError(t, err)
	idsB.Start()
	defer idsB.Close()

	sub, err := b.host.EventBus().Subscribe(event.EvtPeerIdentificationCompleted{})
	require.NoError(t, err)
	defer sub.Close()

	connect(t, b, a)

	select {
	case evt := <-sub.Out():
		completed := evt.(event.EvtPeerIdentificationCompleted)
		require.Equal(t, a.id, completed.Peer)
		require.Equal(t, "test-agent-a", completed.AgentVersion)
		require.NotEmpty(t, completed.ListenAddrs)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for identification to complete")
	}

	protos, err := b.host.Peerstore().GetProtocols(a.id)
	require.NoError(t, err)
	require.Contains(t, protos, ID)
}

func TestIdentifyPushAnnouncesNewProtocol(t *testing.T) {
	a := newIdentifyTestHost(t, "/memory/600201")
	b := newIdentifyTestHost(t, "/memory/600202")
	defer a.host.Close()
	defer b.host.Close()

	idsA, err := NewIDService(a.host)
	require.NoError(t, err)
	idsA.Start()
	defer idsA.Close()

	idsB, err := NewIDService(b.host)
	require.NoError(t, err)
	idsB.Start()
	defer idsB.Close()

	connect(t, b, a)

	const newProto protocol.ID = "/test/pushed/1.0.0"
	a.host.SetStreamHandler(newProto, func(s network.Stream) { s.Close() })

	sub, err := b.host.EventBus().Subscribe(event.EvtPeerProtocolsUpdated{})
	require.NoError(t, err)
	defer sub.Close()

	// Snapshot refresh and the resulting push are normally driven by a
	// change notification on the local event bus; this test drives that
	// path directly rather than depending on the side carrying it.
	idsA.updateSnapshot()
	idsA.sendPushes(context.Background())

	select {
	case evt := <-sub.Out():
		updated := evt.(event.EvtPeerProtocolsUpdated)
		require.Equal(t, a.id, updated.Peer)
		require.Contains(t, updated.Added, newProto)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for protocol push")
	}
}

func TestObservedAddrManagerRequiresMultipleObservers(t *testing.T) {
	a := newIdentifyTestHost(t, "/memory/600301")
	defer a.host.Close()

	mgr, err := NewObservedAddrManager(a.host)
	require.NoError(t, err)
	defer mgr.Close()

	local, err := ma.NewMultiaddr("/memory/600301")
	require.NoError(t, err)
	observed, err := ma.NewMultiaddr("/memory/700001")
	require.NoError(t, err)

	for i := 0; i < DefaultMinObservers-1; i++ {
		remote, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/10.0.0.%d/tcp/4001", i+1))
		require.NoError(t, err)
		mgr.Record(&fakeConn{local: local, remote: remote}, observed)
	}
	require.Empty(t, mgr.Addrs())

	remote, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/10.0.0.%d/tcp/4001", DefaultMinObservers))
	require.NoError(t, err)
	mgr.Record(&fakeConn{local: local, remote: remote}, observed)

	require.Len(t, mgr.Addrs(), 1)
	require.Len(t, mgr.AddrsFor(local), 1)
}

// fakeConn satisfies just enough of network.Conn for ObservedAddrManager.Record.
type fakeConn struct {
	network.Conn
	local, remote ma.Multiaddr
}

func (f *fakeConn) LocalMultiaddr() ma.Multiaddr  { return f.local }
func (f *fakeConn) RemoteMultiaddr() ma.Multiaddr { return f.remote }
