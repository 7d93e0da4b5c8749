package record

import (
	"testing"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/peer"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
)

func TestSealConsumeRoundTrip(t *testing.T) {
	sk, _, err := crypto.GenerateKeyPair(crypto.Ed25519, 0)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(sk)
	require.NoError(t, err)
	addr, err := ma.NewMultiaddr("/ip4/1.2.3.4/tcp/4001")
	require.NoError(t, err)

	rec := NewPeerRecord(id, []ma.Multiaddr{addr})
	env, err := Seal(rec, sk)
	require.NoError(t, err)

	raw, err := env.Marshal()
	require.NoError(t, err)

	_, decoded, err := ConsumeEnvelope(raw, PeerRecordDomain)
	require.NoError(t, err)
	got := decoded.(*PeerRecord)
	require.Equal(t, id, got.PeerID)
	require.Equal(t, rec.Seq, got.Seq)

	_, _, err = ConsumeEnvelope(raw, "some-other-domain")
	require.Error(t, err)
}

func TestSeqMonotonic(t *testing.T) {
	a := NextSeq()
	b := NextSeq()
	require.Greater(t, b, a)
}
