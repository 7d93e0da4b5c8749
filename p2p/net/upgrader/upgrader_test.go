package upgrader

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/p2p/host/eventbus"
	rcmgr "github.com/student-p2p/swarmkit/p2p/host/resource-manager"
	"github.com/student-p2p/swarmkit/p2p/muxer/yamux"
	"github.com/student-p2p/swarmkit/p2p/security/noise"
	memtransport "github.com/student-p2p/swarmkit/p2p/transport/memory"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func newTestUpgrader(t *testing.T) (*Upgrader, peer.ID) {
	t.Helper()
	sk, _, err := crypto.GenerateKeyPair(crypto.Ed25519, 0)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(sk)
	require.NoError(t, err)

	sec, err := noise.New(sk)
	require.NoError(t, err)

	rm := rcmgr.NewResourceManager(rcmgr.WithClock(clock.NewMock()))
	t.Cleanup(func() { rm.Close() })

	bus := eventbus.NewBus()
	u, err := New(id, sec, yamux.New(), rm, bus)
	require.NoError(t, err)
	return u, id
}

// TestUpgradeRoundTrip dials through the in-memory transport and runs the
// full security+muxer pipeline on both sides, then opens a stream and
// echoes bytes across it end to end.
func TestUpgradeRoundTrip(t *testing.T) {
	clientUp, clientID := newTestUpgrader(t)
	serverUp, serverID := newTestUpgrader(t)

	tr := memtransport.New()
	l, err := tr.Listen(nil)
	require.NoError(t, err)
	defer l.Close()

	serverConnCh := make(chan error, 1)
	go func() {
		raw, err := l.Accept()
		if err != nil {
			serverConnCh <- err
			return
		}
		sconn, err := serverUp.UpgradeInbound(context.Background(), tr, raw)
		if err != nil {
			serverConnCh <- err
			return
		}
		defer sconn.Close()

		stream, err := sconn.(*conn).AcceptStream()
		if err != nil {
			serverConnCh <- err
			return
		}
		buf := make([]byte, 5)
		if _, err := io.ReadFull(stream, buf); err != nil {
			serverConnCh <- err
			return
		}
		if _, err := stream.Write(buf); err != nil {
			serverConnCh <- err
			return
		}
		serverConnCh <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := tr.Dial(ctx, l.Multiaddr(), serverID)
	require.NoError(t, err)

	cconn, err := clientUp.UpgradeOutbound(ctx, tr, raw, serverID)
	require.NoError(t, err)
	defer cconn.Close()

	require.Equal(t, clientID, cconn.LocalPeer())
	require.Equal(t, serverID, cconn.RemotePeer())

	stream, err := cconn.NewStream(ctx)
	require.NoError(t, err)

	_, err = stream.Write([]byte("hello"))
	require.NoError(t, err)

	out := make([]byte, 5)
	_, err = io.ReadFull(stream, out)
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))

	require.NoError(t, <-serverConnCh)
}
