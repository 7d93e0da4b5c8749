// Package noise implements core/sec.SecureTransport using the Noise XX
// handshake pattern, per spec.md §4.8's "at least one concrete security
// transport sufficient to drive the upgrade pipeline in tests".
package noise

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/protocol"
	"github.com/student-p2p/swarmkit/core/sec"
	pb "github.com/student-p2p/swarmkit/p2p/security/noise/pb"

	logging "github.com/ipfs/go-log/v2"
	"github.com/flynn/noise"
)

var log = logging.Logger("security-noise")

// ID is the protocol.ID negotiated by multistream-select for this
// transport.
const ID protocol.ID = "/noise"

// sigPrefix is prepended to the ephemeral static key before signing, to
// bind the Noise static key to the long-term libp2p identity key without
// the signature being replayable for any other purpose.
const sigPrefix = "noise-libp2p-static-key:"

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Transport implements core/sec.SecureTransport over Noise XX.
type Transport struct {
	localID  peer.ID
	privKey  crypto.PrivKey
}

// New builds a noise Transport bound to the local peer's identity key.
func New(privKey crypto.PrivKey) (*Transport, error) {
	localID, err := peer.IDFromPrivateKey(privKey)
	if err != nil {
		return nil, err
	}
	return &Transport{localID: localID, privKey: privKey}, nil
}

func (t *Transport) ID() protocol.ID { return ID }

func (t *Transport) SecureInbound(ctx context.Context, insecure net.Conn, p peer.ID) (sec.SecureConn, error) {
	return t.handshake(ctx, insecure, false, p)
}

func (t *Transport) SecureOutbound(ctx context.Context, insecure net.Conn, p peer.ID) (sec.SecureConn, error) {
	return t.handshake(ctx, insecure, true, p)
}

// handshake runs the Noise XX pattern: each side sends its libp2p identity
// key and a signature over the ephemeral static key as early data in
// messages 2 and 3, per spec.md §4.8 ("the handshake... authenticates the
// static key against the peer's long-term identity key").
func (t *Transport) handshake(ctx context.Context, conn net.Conn, initiator bool, expectedPeer peer.ID) (sec.SecureConn, error) {
	staticKeypair, err := cipherSuite.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generating static keypair: %v", sec.ErrHandshakeFailed, err)
	}

	payload, err := t.signedPayload(staticKeypair.Public)
	if err != nil {
		return nil, err
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: staticKeypair,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
	}

	rw := &messageTransport{conn: conn}

	var remotePayloadBytes []byte
	if initiator {
		msg1, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
		}
		if err := rw.writeFrame(msg1); err != nil {
			return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
		}
		msg2, err := rw.readFrame()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
		}
		remotePayloadBytes, _, _, err = hs.ReadMessage(nil, msg2)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
		}
		msg3, cs1, cs2, err := hs.WriteMessage(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
		}
		if err := rw.writeFrame(msg3); err != nil {
			return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
		}
		return t.finish(conn, cs1, cs2, remotePayloadBytes, initiator, expectedPeer, hs.PeerStatic())
	}

	msg1, err := rw.readFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
	}
	msg2, _, _, err := hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
	}
	if err := rw.writeFrame(msg2); err != nil {
		return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
	}
	msg3, err := rw.readFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
	}
	remotePayloadBytes, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
	}
	return t.finish(conn, cs1, cs2, remotePayloadBytes, initiator, expectedPeer, hs.PeerStatic())
}

func (t *Transport) signedPayload(staticPub []byte) ([]byte, error) {
	idKeyBytes, err := crypto.MarshalPublicKey(t.privKey.GetPublic())
	if err != nil {
		return nil, err
	}
	sig, err := t.privKey.Sign(append([]byte(sigPrefix), staticPub...))
	if err != nil {
		return nil, err
	}
	p := &pb.NoiseHandshakePayload{IdentityKey: idKeyBytes, IdentitySig: sig}
	return p.Marshal(), nil
}

func (t *Transport) finish(conn net.Conn, cs1, cs2 *noise.CipherState, remotePayloadBytes []byte, initiator bool, expectedPeer peer.ID, remoteStaticPub []byte) (sec.SecureConn, error) {
	var payload pb.NoiseHandshakePayload
	if err := payload.Unmarshal(remotePayloadBytes); err != nil {
		return nil, fmt.Errorf("%w: malformed handshake payload: %v", sec.ErrHandshakeFailed, err)
	}
	remotePub, err := crypto.UnmarshalPublicKey(payload.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
	}
	ok, err := remotePub.Verify(append([]byte(sigPrefix), remoteStaticPub...), payload.IdentitySig)
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: static key signature did not verify", sec.ErrHandshakeFailed)
	}
	remoteID, err := peer.IDFromPublicKey(remotePub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sec.ErrHandshakeFailed, err)
	}
	if expectedPeer != "" && expectedPeer != remoteID {
		return nil, fmt.Errorf("%w: expected %s, got %s", sec.ErrPeerIDMismatch, expectedPeer, remoteID)
	}

	var enc, dec *noise.CipherState
	if initiator {
		enc, dec = cs1, cs2
	} else {
		enc, dec = cs2, cs1
	}

	return &secureConn{
		Conn:     conn,
		localID:  t.localID,
		remoteID: remoteID,
		remoteKey: remotePub,
		enc:      enc,
		dec:      dec,
	}, nil
}
