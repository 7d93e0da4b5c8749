package swarm

import (
	"fmt"

	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/transport"

	temperrcatcher "github.com/jbenet/go-temp-err-catcher"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// Listen opens a listener on each addr using whichever configured
// transport can dial it, and starts an accept loop that upgrades inbound
// connections and registers them exactly like a dialed one.
func (s *Swarm) Listen(addrs ...ma.Multiaddr) error {
	for _, addr := range addrs {
		t := s.transportFor(addr)
		if t == nil {
			return fmt.Errorf("swarm: no transport configured for %s", addr)
		}
		raw, err := t.Listen(addr)
		if err != nil {
			return fmt.Errorf("swarm: listen on %s: %w", addr, err)
		}
		l := s.upgrader.UpgradeListener(t, raw)

		s.mu.Lock()
		s.listeners = append(s.listeners, l)
		s.mu.Unlock()

		s.notifyListen(addr)

		go s.acceptLoop(l)
	}
	return nil
}

// acceptLoop pulls already-upgraded connections off l. InterceptAccept and
// InterceptSecured are applied one layer down, inside p2p/net/upgrader's
// UpgradeListener, since that's the only place the pre-upgrade and
// post-handshake intermediate states are observable; this loop applies the
// fourth veto point, InterceptUpgraded, once the connection reaches here.
// Temporary accept errors (a momentarily overloaded OS socket queue, e.g.)
// are logged and retried rather than tearing down the whole listener, the
// way the teacher's own accept loops use go-temp-err-catcher.
func (s *Swarm) acceptLoop(l transport.Listener) {
	tec := &temperrcatcher.TempErrCatcher{}
	for {
		raw, err := l.Accept()
		if err != nil {
			if tec.IsTemporary(err) {
				log.Debugw("temporary accept error, retrying", "err", err)
				continue
			}
			select {
			case <-s.closed:
			default:
				log.Debugw("listener accept failed, stopping accept loop", "err", err)
			}
			return
		}
		conn, ok := raw.(network.Conn)
		if !ok {
			log.Debugw("accepted connection is not an upgraded network.Conn", "type", fmt.Sprintf("%T", raw))
			_ = raw.Close()
			continue
		}

		if s.gater != nil {
			if allow, _ := s.gater.InterceptUpgraded(conn); !allow {
				_ = conn.Close()
				continue
			}
		}

		sc := wrapConn(s, conn)
		s.addConn(conn.RemotePeer(), sc)
		go s.acceptStreams(sc)
	}
}

// streamAcceptor is the extra method p2p/net/upgrader's concrete conn type
// exposes beyond core/network.Conn, for exactly this purpose.
type streamAcceptor interface {
	AcceptStream() (network.MuxedStream, error)
}

// acceptStreams relays every inbound stream on c to the swarm's registered
// stream handler until the muxed session closes.
func (s *Swarm) acceptStreams(c *swarmConn) {
	acceptor, ok := c.Conn.(streamAcceptor)
	if !ok {
		return
	}
	for {
		ms, err := acceptor.AcceptStream()
		if err != nil {
			return
		}
		st, err := newStream(ms, c)
		if err != nil {
			log.Debugw("rejecting inbound stream, resource limit exceeded", "peer", c.RemotePeer(), "err", err)
			_ = ms.Reset()
			continue
		}
		s.dispatchStream(st)
	}
}

func (s *Swarm) ListenAddresses() []ma.Multiaddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ma.Multiaddr, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l.Multiaddr())
	}
	return out
}

// InterfaceListenAddresses resolves any unspecified (0.0.0.0/::) listen
// addresses to the concrete interface addresses they're actually bound on.
func (s *Swarm) InterfaceListenAddresses() ([]ma.Multiaddr, error) {
	laddrs := s.ListenAddresses()
	ifaceAddrs, err := manet.InterfaceMultiaddrs()
	if err != nil {
		return laddrs, nil
	}
	resolved, err := manet.ResolveUnspecifiedAddresses(laddrs, ifaceAddrs)
	if err != nil {
		return laddrs, nil
	}
	return resolved, nil
}
