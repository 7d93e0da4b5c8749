package swarm

import (
	"context"

	"github.com/student-p2p/swarmkit/core/peer"

	madns "github.com/multiformats/go-multiaddr-dns"
	ma "github.com/multiformats/go-multiaddr"
)

// resolveAddrs expands every /dns4, /dns6 or /dnsaddr component among addrs
// into its concrete resolved addresses via madns, the candidate-collection
// step spec.md §4.13 step 3 calls for before ranking. Non-DNS addresses pass
// through untouched. A single /dnsaddr TXT record can answer for many
// peers, so resolved /p2p-suffixed results are kept only when they name p;
// plain /dns4,/dns6 answers (no peer ID attached) are kept unconditionally.
func (s *Swarm) resolveAddrs(ctx context.Context, p peer.ID, addrs []ma.Multiaddr) []ma.Multiaddr {
	if s.resolver == nil {
		return addrs
	}
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if !madns.Matches(a) {
			out = append(out, a)
			continue
		}
		resolved, err := s.resolver.Resolve(ctx, a)
		if err != nil {
			log.Debugw("dns multiaddr resolution failed", "addr", a, "err", err)
			continue
		}
		for _, r := range resolved {
			info, err := peer.AddrInfoFromP2pAddr(r)
			if err != nil {
				// A plain /dns4 or /dns6 answer carries no /p2p suffix.
				out = append(out, r)
				continue
			}
			if info.ID != p {
				continue
			}
			out = append(out, info.Addrs...)
		}
	}
	return out
}
