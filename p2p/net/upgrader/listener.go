package upgrader

import (
	"context"

	"github.com/student-p2p/swarmkit/core/transport"

	ma "github.com/multiformats/go-multiaddr"
)

// upgradedListener wraps a raw transport.Listener so each Accept already
// returns a fully upgraded connection, per spec.md §4.10.
type upgradedListener struct {
	u      *Upgrader
	t      transport.Transport
	raw    transport.Listener
}

// UpgradeListener wraps l so Accept() performs the security handshake and
// muxer setup before returning, matching the teacher's upgrader package
// shape.
func (u *Upgrader) UpgradeListener(t transport.Transport, l transport.Listener) transport.Listener {
	return &upgradedListener{u: u, t: t, raw: l}
}

func (l *upgradedListener) Accept() (transport.CapableConn, error) {
	for {
		raw, err := l.raw.Accept()
		if err != nil {
			return nil, err
		}
		if l.u.gater != nil {
			if allow := l.u.gater.InterceptAccept(raw); !allow {
				log.Debugw("inbound connection rejected pre-upgrade by connection gater", "remote", raw.RemoteMultiaddr())
				_ = raw.Close()
				continue
			}
		}
		c, err := l.u.UpgradeInbound(context.Background(), l.t, raw)
		if err != nil {
			log.Debugw("inbound upgrade failed", "error", err, "remote", raw.RemoteMultiaddr())
			continue
		}
		return c, nil
	}
}

func (l *upgradedListener) Multiaddr() ma.Multiaddr { return l.raw.Multiaddr() }

func (l *upgradedListener) Close() error { return l.raw.Close() }

var _ transport.Listener = (*upgradedListener)(nil)
