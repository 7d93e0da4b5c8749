// Package sec defines the security-upgrade abstraction: given a RawConn and
// an expected remote peer (possibly unknown on inbound), negotiate an
// authenticated-encryption handshake, per spec.md §4.8.
package sec

import (
	"context"
	"errors"
	"net"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/protocol"
)

var (
	ErrHandshakeFailed = errors.New("sec: handshake failed")
	ErrPeerIDMismatch  = errors.New("sec: remote peer ID does not match expected ID")
	ErrNoMutualSecurity = errors.New("sec: no mutually supported security protocol")
)

// SecureConn is an AuthenticatedConn: a RawConn once the handshake has
// confirmed the remote peer's identity and public key, per spec.md §4.8.
// All further bytes on the wire are confidential and integrity-protected.
type SecureConn interface {
	net.Conn

	LocalPeer() peer.ID
	RemotePeer() peer.ID
	RemotePublicKey() crypto.PubKey
}

// SecureTransport negotiates one of the configured security protocols via
// multistream-select and executes its handshake.
type SecureTransport interface {
	// ID is the protocol.ID this transport negotiates under, e.g. "/noise".
	ID() protocol.ID
	SecureInbound(ctx context.Context, insecure net.Conn, p peer.ID) (SecureConn, error)
	SecureOutbound(ctx context.Context, insecure net.Conn, p peer.ID) (SecureConn, error)
}
