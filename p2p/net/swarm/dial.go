package swarm

import (
	"context"
	"fmt"

	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/transport"

	ma "github.com/multiformats/go-multiaddr"
)

// DialPeer implements spec.md §4.13's dial algorithm: reuse an existing
// usable connection, join an in-flight dial for the same peer, or run a
// fresh address-ranked happy-eyeballs attempt.
func (s *Swarm) DialPeer(ctx context.Context, p peer.ID) (network.Conn, error) {
	if p == s.localID {
		return nil, fmt.Errorf("swarm: dial to self")
	}
	if c := s.firstUsableConn(p); c != nil {
		return c, nil
	}
	if s.gater != nil && !s.gater.InterceptPeerDial(p) {
		return nil, fmt.Errorf("swarm: dial to %s blocked by connection gater", p)
	}

	s.dialMu.Lock()
	if j, ok := s.dialJoins[p]; ok {
		s.dialMu.Unlock()
		select {
		case <-j.done:
			return j.conn, j.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	j := &dialJoin{done: make(chan struct{})}
	s.dialJoins[p] = j
	s.dialMu.Unlock()

	conn, err := s.dialPeerLocked(ctx, p)

	s.dialMu.Lock()
	delete(s.dialJoins, p)
	s.dialMu.Unlock()

	j.conn, j.err = conn, err
	close(j.done)
	return conn, err
}

func (s *Swarm) dialPeerLocked(ctx context.Context, p peer.ID) (network.Conn, error) {
	addrs := s.peerstore.Addrs(p)
	if len(addrs) == 0 {
		return nil, network.ErrNoRemoteAddrs
	}
	addrs = s.resolveAddrs(ctx, p, addrs)
	if len(addrs) == 0 {
		return nil, network.ErrNoRemoteAddrs
	}

	cap := s.cap.Get()
	ranked := rankAddrs(addrs, cap)
	if s.gater != nil {
		filtered := ranked[:0]
		for _, c := range ranked {
			if s.gater.InterceptAddrDial(p, c.addr) {
				filtered = append(filtered, c)
			}
		}
		ranked = filtered
	}
	if len(ranked) == 0 {
		return nil, network.ErrNoRemoteAddrs
	}

	conn, attempts := happyEyeballs(ctx, s.clock, ranked, func(dctx context.Context, c scoredAddr) (network.Conn, error) {
		return s.dialOne(dctx, p, c.addr)
	})
	if conn == nil {
		de := &network.DialError{Peer: string(p)}
		for _, a := range attempts {
			de.Attempts = append(de.Attempts, network.TransportError{Address: a.addr.addr.String(), Cause: a.err})
		}
		return nil, de
	}

	sc := wrapConn(s, conn)
	s.addConn(p, sc)
	return sc, nil
}

func (s *Swarm) transportFor(raddr ma.Multiaddr) transport.Transport {
	for _, t := range s.transports {
		if t.CanDial(raddr) {
			return t
		}
	}
	return nil
}

func (s *Swarm) dialOne(ctx context.Context, p peer.ID, raddr ma.Multiaddr) (network.Conn, error) {
	t := s.transportFor(raddr)
	if t == nil {
		return nil, fmt.Errorf("swarm: no transport for %s", raddr)
	}
	raw, err := t.Dial(ctx, raddr, p)
	if err != nil {
		return nil, err
	}
	conn, err := s.upgrader.UpgradeOutbound(ctx, t, raw, p)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	if s.gater != nil {
		if allow, _ := s.gater.InterceptUpgraded(conn); !allow {
			_ = conn.Close()
			return nil, fmt.Errorf("swarm: connection to %s rejected by connection gater", p)
		}
	}
	return conn, nil
}
