package pstoremem

import (
	"testing"
	"time"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/record"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

func TestAddrTTLExpiry(t *testing.T) {
	mc := clock.NewMock()
	ps := NewPeerstore(mc, time.Second)
	defer ps.Close()

	sk, _, err := crypto.GenerateKeyPair(crypto.Ed25519, 0)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(sk)
	require.NoError(t, err)
	addr, _ := ma.NewMultiaddr("/ip4/1.2.3.4/tcp/4001")

	ps.AddAddrs(id, []ma.Multiaddr{addr}, 10*time.Second)
	require.Len(t, ps.Addrs(id), 1)

	mc.Add(20 * time.Second)
	require.Empty(t, ps.Addrs(id))
}

func TestPeerRecordSeqMonotonicity(t *testing.T) {
	// Scenario S4: r1(seq=1000) then r2(seq=500); peerstore retains r1.
	mc := clock.NewMock()
	ps := NewPeerstore(mc, time.Second)
	defer ps.Close()

	sk, _, err := crypto.GenerateKeyPair(crypto.Ed25519, 0)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(sk)
	require.NoError(t, err)

	a1, _ := ma.NewMultiaddr("/ip4/1.1.1.1/tcp/1")
	a2, _ := ma.NewMultiaddr("/ip4/2.2.2.2/tcp/2")

	r1 := &record.PeerRecord{PeerID: id, Addrs: []ma.Multiaddr{a1}, Seq: 1000}
	env1, err := record.Seal(r1, sk)
	require.NoError(t, err)
	raw1, err := env1.Marshal()
	require.NoError(t, err)
	_, _, err = record.ConsumeEnvelope(raw1, record.PeerRecordDomain)
	require.NoError(t, err)

	accepted, err := ps.ConsumePeerRecord(env1, time.Hour)
	require.NoError(t, err)
	require.True(t, accepted)

	r2 := &record.PeerRecord{PeerID: id, Addrs: []ma.Multiaddr{a2}, Seq: 500}
	env2, err := record.Seal(r2, sk)
	require.NoError(t, err)

	accepted, err = ps.ConsumePeerRecord(env2, time.Hour)
	require.NoError(t, err)
	require.False(t, accepted)

	got := ps.GetPeerRecord(id)
	require.Equal(t, uint64(1000), got.Record().(*record.PeerRecord).Seq)
}

func TestKeyBookIdentityMismatch(t *testing.T) {
	kb := NewKeyBook()
	sk, pk, err := crypto.GenerateKeyPair(crypto.Ed25519, 0)
	require.NoError(t, err)
	otherID := peer.ID("not-a-real-id")

	err = kb.AddPubKey(otherID, pk)
	require.Error(t, err)

	id, err := peer.IDFromPrivateKey(sk)
	require.NoError(t, err)
	require.NoError(t, kb.AddPubKey(id, pk))
}
