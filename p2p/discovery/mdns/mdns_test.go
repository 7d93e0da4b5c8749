package mdns

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
	"github.com/libp2p/zeroconf/v2"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

func newMdnsTestHost(t *testing.T, addr string) (*basichost.BasicHost, peer.ID) {
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

type recordingNotifee struct {
	found []peer.AddrInfo
}

func (r *recordingNotifee) HandlePeerFound(ai peer.AddrInfo) {
	r.found = append(r.found, ai)
}

func TestBuildTXTRecordsEncodesDnsaddrPerListenAddr(t *testing.T) {
	h, id := newMdnsTestHost(t, "/memory/610101")
	defer h.Close()

	s := NewService(h, "", nil)
	txt, _ := s.buildTXTRecords()
	require.Len(t, txt, 1)
	require.True(t, hasPrefix(txt[0], dnsaddrPrefix))

	addr, err := ma.NewMultiaddr(txt[0][len(dnsaddrPrefix):])
	require.NoError(t, err)
	info, err := peer.AddrInfoFromP2pAddr(addr)
	require.NoError(t, err)
	require.Equal(t, id, info.ID)
}

func TestHandleEntrySuppressesSelfAndNotifiesOthers(t *testing.T) {
	self, _ := newMdnsTestHost(t, "/memory/610201")
	defer self.Close()
	other, otherID := newMdnsTestHost(t, "/memory/610202")
	defer other.Close()

	notifee := &recordingNotifee{}
	s := NewService(self, "", notifee)

	selfTXT, _ := s.buildTXTRecords()
	s.handleEntry(&zeroconf.ServiceEntry{Text: selfTXT})
	require.Empty(t, notifee.found, "self-discovery must be suppressed")

	otherSvc := NewService(other, "", nil)
	otherTXT, _ := otherSvc.buildTXTRecords()

	s.handleEntry(&zeroconf.ServiceEntry{Text: otherTXT})
	require.Len(t, notifee.found, 1)
	require.Equal(t, otherID, notifee.found[0].ID)
	require.NotEmpty(t, notifee.found[0].Addrs)
}
