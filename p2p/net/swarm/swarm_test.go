package swarm

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/transport"
	"github.com/student-p2p/swarmkit/internal/mocks"
	"github.com/student-p2p/swarmkit/p2p/host/eventbus"
	"github.com/student-p2p/swarmkit/p2p/host/peerstore/pstoremem"
	rcmgr "github.com/student-p2p/swarmkit/p2p/host/resource-manager"
	"github.com/student-p2p/swarmkit/p2p/muxer/yamux"
	"github.com/student-p2p/swarmkit/p2p/net/upgrader"
	"github.com/student-p2p/swarmkit/p2p/security/noise"
	memtransport "github.com/student-p2p/swarmkit/p2p/transport/memory"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func newTestSwarm(t *testing.T) (*Swarm, peer.ID) {
	t.Helper()
	sw, id, _ := newTestSwarmWithRM(t, rcmgr.NewResourceManager(), false)
	return sw, id
}

// newTestSwarmWithRM builds a Swarm backed by rm, optionally wiring
// swarm.WithResourceManager(rm) so opened streams actually reserve a scope
// (attachRM=false reproduces the pre-fix behavior of a Swarm that never
// wires stream-level scoping at all).
func newTestSwarmWithRM(t *testing.T, rm *rcmgr.ResourceManager, attachRM bool) (*Swarm, peer.ID, *rcmgr.ResourceManager) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair(crypto.Ed25519, 0)
	require.NoError(t, err)
	id, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)

	ps := pstoremem.NewPeerstore(clock.New(), time.Minute)
	require.NoError(t, ps.AddPrivKey(id, priv))
	require.NoError(t, ps.AddPubKey(id, pub))

	bus := eventbus.NewBus()
	sec, err := noise.New(priv)
	require.NoError(t, err)
	up, err := upgrader.New(id, sec, yamux.New(), rm, bus)
	require.NoError(t, err)

	mt := &memtransport.Transport{}
	var opts []Option
	if attachRM {
		opts = append(opts, WithResourceManager(rm))
	}
	sw, err := New(id, ps, bus, up, []transport.Transport{mt}, opts...)
	require.NoError(t, err)
	return sw, id, rm
}

func TestDialPeerOverMemoryTransport(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	serverSwarm, serverID := newTestSwarm(t)
	clientSwarm, _ := newTestSwarm(t)
	defer serverSwarm.Close()
	defer clientSwarm.Close()

	serverSwarm.SetStreamHandler(func(s network.Stream) {
		buf := make([]byte, 5)
		_, err := io.ReadFull(s, buf)
		if err != nil {
			return
		}
		_, _ = s.Write(buf)
		_ = s.Close()
	})

	laddr, err := ma.NewMultiaddr("/memory/500001")
	require.NoError(t, err)
	require.NoError(t, serverSwarm.Listen(laddr))
	laddrs := serverSwarm.ListenAddresses()
	require.Len(t, laddrs, 1)

	cpsAny := clientSwarm.peerstore
	cpsAny.AddAddr(serverID, laddrs[0], time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := clientSwarm.DialPeer(ctx, serverID)
	require.NoError(t, err)
	require.Equal(t, serverID, conn.RemotePeer())

	st, err := conn.NewStream(ctx)
	require.NoError(t, err)

	_, err = st.Write([]byte("hello"))
	require.NoError(t, err)

	out := make([]byte, 5)
	_, err = io.ReadFull(st, out)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))

	require.Equal(t, network.Connected, clientSwarm.Connectedness(serverID))
}

func TestAddressRanking(t *testing.T) {
	dualStack := Capability{HasIPv4: true, HasIPv6: true}
	v4, _ := ma.NewMultiaddr("/ip4/1.2.3.4/tcp/4001")
	v6, _ := ma.NewMultiaddr("/ip6/2001:db8::1/tcp/4001")
	priv, _ := ma.NewMultiaddr("/ip4/192.168.1.1/tcp/4001")

	ranked := rankAddrs([]ma.Multiaddr{priv, v4, v6}, dualStack)
	require.Len(t, ranked, 3)
	require.True(t, ranked[0].addr.Equal(v6))
	require.True(t, ranked[1].addr.Equal(v4))
	require.True(t, ranked[2].addr.Equal(priv))
}

// S6: a stream opened over a Swarm wired with WithResourceManager reserves
// a peer-scoped stream slot, reparents it onto the negotiated protocol scope
// on SetProtocol, and releases it exactly once regardless of how many times
// Close/Reset are called.
func TestStreamOpenReservesAndReleasesScope(t *testing.T) {
	rm := rcmgr.NewResourceManager()
	defer rm.Close()

	serverSwarm, serverID := newTestSwarm(t)
	clientSwarm, _, _ := newTestSwarmWithRM(t, rm, true)
	defer serverSwarm.Close()
	defer clientSwarm.Close()

	serverSwarm.SetStreamHandler(func(s network.Stream) { _ = s.Close() })

	laddr, err := ma.NewMultiaddr("/memory/500101")
	require.NoError(t, err)
	require.NoError(t, serverSwarm.Listen(laddr))
	laddrs := serverSwarm.ListenAddresses()
	require.Len(t, laddrs, 1)
	clientSwarm.peerstore.AddAddr(serverID, laddrs[0], time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := clientSwarm.DialPeer(ctx, serverID)
	require.NoError(t, err)

	st, err := conn.NewStream(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rm.ViewPeer(serverID).NumStreamsOut)

	require.NoError(t, st.SetProtocol("/chat/1.0.0"))
	require.Equal(t, 1, rm.ViewProtocol("/chat/1.0.0").NumStreamsOut)

	require.NoError(t, st.Close())
	require.NoError(t, st.Reset()) // must be a no-op, not a double-release
	require.Equal(t, 0, rm.ViewPeer(serverID).NumStreamsOut)
}

// Exercises the path a reviewer flagged as untestable before stream scoping
// was wired in: a peer whose outbound stream budget is exhausted must have
// NewStream fail with the resource manager's error rather than silently
// opening an unscoped stream.
func TestStreamOpenRejectedAtResourceLimit(t *testing.T) {
	limits := rcmgr.DefaultLimits()
	limits.Peer.StreamsOut = 1
	limits.Peer.StreamsTotal = 1
	rm := rcmgr.NewResourceManager(rcmgr.WithLimits(limits))
	defer rm.Close()

	serverSwarm, serverID := newTestSwarm(t)
	clientSwarm, _, _ := newTestSwarmWithRM(t, rm, true)
	defer serverSwarm.Close()
	defer clientSwarm.Close()

	serverSwarm.SetStreamHandler(func(s network.Stream) {})

	laddr, err := ma.NewMultiaddr("/memory/500102")
	require.NoError(t, err)
	require.NoError(t, serverSwarm.Listen(laddr))
	laddrs := serverSwarm.ListenAddresses()
	clientSwarm.peerstore.AddAddr(serverID, laddrs[0], time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := clientSwarm.DialPeer(ctx, serverID)
	require.NoError(t, err)

	_, err = conn.NewStream(ctx)
	require.NoError(t, err)

	_, err = conn.NewStream(ctx)
	require.ErrorIs(t, err, rcmgr.ErrResourceLimitExceeded)
}

// A single observer must see Connected before Disconnected for a rapid
// connect/disconnect on the same peer, even though addConn/removeConn push
// onto the notifiee's queue from different goroutines.
func TestNotifieeDeliveryIsOrderedPerObserver(t *testing.T) {
	serverSwarm, serverID := newTestSwarm(t)
	clientSwarm, _ := newTestSwarm(t)
	defer serverSwarm.Close()
	defer clientSwarm.Close()

	var mu sync.Mutex
	var events []string
	done := make(chan struct{}, 1)
	clientSwarm.Notify(&recordingNotifiee{
		onConnected: func() {
			mu.Lock()
			events = append(events, "connected")
			mu.Unlock()
		},
		onDisconnected: func() {
			mu.Lock()
			events = append(events, "disconnected")
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
		},
	})

	laddr, err := ma.NewMultiaddr("/memory/500103")
	require.NoError(t, err)
	require.NoError(t, serverSwarm.Listen(laddr))
	laddrs := serverSwarm.ListenAddresses()
	clientSwarm.peerstore.AddAddr(serverID, laddrs[0], time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := clientSwarm.DialPeer(ctx, serverID)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for disconnected notification")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"connected", "disconnected"}, events)
}

type recordingNotifiee struct {
	onConnected    func()
	onDisconnected func()
}

func (r *recordingNotifiee) Connected(network.Network, network.Conn)    { r.onConnected() }
func (r *recordingNotifiee) Disconnected(network.Network, network.Conn) { r.onDisconnected() }
func (r *recordingNotifiee) Listen(network.Network, ma.Multiaddr)       {}
func (r *recordingNotifiee) ListenClose(network.Network, ma.Multiaddr)  {}

// ConnGater/Notifiee test doubles built on go.uber.org/mock/gomock, per
// SPEC_FULL's commitment to mock-based doubles rather than hand-rolled
// fakes for these two collaborators.
func TestConnGaterMockBlocksDial(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gater := mocks.NewMockConnGater(ctrl)

	clientSwarm, _ := newTestSwarm(t)
	defer clientSwarm.Close()
	clientSwarm.gater = gater

	blockedID := peer.ID("blocked-peer")
	gater.EXPECT().InterceptPeerDial(blockedID).Return(false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := clientSwarm.DialPeer(ctx, blockedID)
	require.Error(t, err)
}

// Demonstrates the same per-observer ordering TestNotifieeDeliveryIsOrderedPerObserver
// exercises, but through a gomock.InOrder expectation on a MockNotifiee
// rather than a hand-rolled recorder.
func TestNotifieeMockObservesConnectedBeforeDisconnected(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	notifiee := mocks.NewMockNotifiee(ctrl)

	serverSwarm, serverID := newTestSwarm(t)
	clientSwarm, _ := newTestSwarm(t)
	defer serverSwarm.Close()
	defer clientSwarm.Close()

	done := make(chan struct{})
	gomock.InOrder(
		notifiee.EXPECT().Connected(gomock.Any(), gomock.Any()),
		notifiee.EXPECT().Disconnected(gomock.Any(), gomock.Any()).Do(func(network.Network, network.Conn) { close(done) }),
	)
	clientSwarm.Notify(notifiee)

	laddr, err := ma.NewMultiaddr("/memory/500104")
	require.NoError(t, err)
	require.NoError(t, serverSwarm.Listen(laddr))
	laddrs := serverSwarm.ListenAddresses()
	clientSwarm.peerstore.AddAddr(serverID, laddrs[0], time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := clientSwarm.DialPeer(ctx, serverID)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for disconnected notification")
	}
}

// Non-DNS addresses must pass through resolveAddrs untouched, and
// WithResolver(nil) must disable DNS expansion entirely rather than panic.
func TestResolveAddrsPassesThroughNonDNSAddrs(t *testing.T) {
	sw, _ := newTestSwarm(t)
	defer sw.Close()

	a, err := ma.NewMultiaddr("/ip4/1.2.3.4/tcp/4001")
	require.NoError(t, err)
	b, err := ma.NewMultiaddr("/memory/999")
	require.NoError(t, err)

	out := sw.resolveAddrs(context.Background(), peer.ID("somepeer"), []ma.Multiaddr{a, b})
	require.ElementsMatch(t, []ma.Multiaddr{a, b}, out)

	sw.resolver = nil
	out = sw.resolveAddrs(context.Background(), peer.ID("somepeer"), []ma.Multiaddr{a, b})
	require.ElementsMatch(t, []ma.Multiaddr{a, b}, out)
}

func TestIPv6DedupKeepsFirst(t *testing.T) {
	a, _ := ma.NewMultiaddr("/ip6/2001:db8::1/tcp/4001")
	b, _ := ma.NewMultiaddr("/ip6/2001:db8::2/tcp/4002")
	deduped := dedupIPv6([]ma.Multiaddr{a, b})
	require.Len(t, deduped, 1)
	require.True(t, deduped[0].Equal(a))
}
