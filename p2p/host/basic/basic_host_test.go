package basichost

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/protocol"
	"github.com/student-p2p/swarmkit/core/transport"
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
	"go.uber.org/goleak"
)

const (
	protoEcho  protocol.ID = "/test/echo/1.0.0"
	protoOther protocol.ID = "/test/other/1.0.0"
)

func newTestHost(t *testing.T) (*BasicHost, peer.ID) {
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

	h, err := New(sw, ps, bus)
	require.NoError(t, err)
	return h, id
}

func TestNewStreamNegotiatesRegisteredProtocol(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	serverHost, serverID := newTestHost(t)
	clientHost, _ := newTestHost(t)
	defer serverHost.Close()
	defer clientHost.Close()

	serverHost.SetStreamHandler(protoEcho, func(s network.Stream) {
		buf := make([]byte, 5)
		if _, err := io.ReadFull(s, buf); err != nil {
			return
		}
		_, _ = s.Write(buf)
		_ = s.Close()
	})

	laddr, err := ma.NewMultiaddr("/memory/500101")
	require.NoError(t, err)
	require.NoError(t, serverHost.Network().Listen(laddr))
	laddrs := serverHost.Network().ListenAddresses()
	require.Len(t, laddrs, 1)

	clientHost.Peerstore().AddAddrs(serverID, laddrs, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := clientHost.NewStream(ctx, serverID, protoOther, protoEcho)
	require.NoError(t, err)
	require.Equal(t, protoEcho, st.Protocol())

	_, err = st.Write([]byte("hello"))
	require.NoError(t, err)

	out := make([]byte, 5)
	_, err = io.ReadFull(st, out)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))
}

func TestNewStreamSkipsNegotiationWhenPeerstoreKnowsProtocol(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	serverHost, serverID := newTestHost(t)
	clientHost, _ := newTestHost(t)
	defer serverHost.Close()
	defer clientHost.Close()

	serverHost.SetStreamHandler(protoEcho, func(s network.Stream) {
		_ = s.Close()
	})

	laddr, err := ma.NewMultiaddr("/memory/500102")
	require.NoError(t, err)
	require.NoError(t, serverHost.Network().Listen(laddr))
	laddrs := serverHost.Network().ListenAddresses()

	clientHost.Peerstore().AddAddrs(serverID, laddrs, time.Hour)
	require.NoError(t, clientHost.Peerstore().AddProtocols(serverID, protoEcho))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := clientHost.NewStream(ctx, serverID, protoEcho)
	require.NoError(t, err)
	require.Equal(t, protoEcho, st.Protocol())
}
