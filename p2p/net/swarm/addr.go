package swarm

import (
	"net"
	"sort"
	"strings"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	mafmt "github.com/multiformats/go-multiaddr-fmt"
	manet "github.com/multiformats/go-multiaddr/net"
)

// describeProto labels a's outer transport for filter/drop log lines only;
// mafmt's pattern matchers never influence which addresses are kept.
func describeProto(a ma.Multiaddr) string {
	switch {
	case mafmt.TCP.Matches(a):
		return "tcp"
	case mafmt.UDP.Matches(a):
		return "udp"
	case mafmt.IP.Matches(a):
		return "ip"
	default:
		return "other"
	}
}

// Capability is the locally detected outbound network capability, per
// spec.md §4.14.
type Capability struct {
	HasIPv4    bool
	HasIPv6    bool
	DetectedAt time.Time
}

const (
	directTimeout = 5 * time.Second
	relayTimeout  = 10 * time.Second
)

func isCircuitRelay(a ma.Multiaddr) bool {
	_, err := a.ValueForProtocol(ma.P_CIRCUIT)
	return err == nil
}

func isIPv6LinkLocal(ip net.IP) bool {
	return ip.To4() == nil && ip.IsLinkLocalUnicast()
}

// filterAddrs drops link-local IPv6 always, and drops address families the
// local capability can't use at all, keeping circuit-relay addresses
// unconditionally, per spec.md §4.14.
func filterAddrs(addrs []ma.Multiaddr, cap Capability) []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		relay := isCircuitRelay(a)
		ip, err := manet.ToIP(a)
		if err != nil {
			// Not an IP-based address (e.g. /memory/<id>); never gated here.
			out = append(out, a)
			continue
		}
		if ip.To4() == nil {
			if isIPv6LinkLocal(ip) {
				log.Debugw("dropping link-local IPv6 candidate", "addr", a, "proto", describeProto(a))
				continue
			}
			if !cap.HasIPv6 && !relay {
				log.Debugw("dropping IPv6 candidate, no local IPv6 capability", "addr", a, "proto", describeProto(a))
				continue
			}
		} else {
			if !cap.HasIPv4 && !relay {
				log.Debugw("dropping IPv4 candidate, no local IPv4 capability", "addr", a, "proto", describeProto(a))
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// dedupIPv6 keeps only the first-encountered address within each distinct
// IPv6 /64 prefix, leaving non-IPv6 addresses untouched, per spec.md §4.14.
func dedupIPv6(addrs []ma.Multiaddr) []ma.Multiaddr {
	seen := make(map[string]struct{})
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		ip, err := manet.ToIP(a)
		if err != nil || ip.To4() != nil {
			out = append(out, a)
			continue
		}
		prefix := string(ip.To16()[:8])
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		out = append(out, a)
	}
	return out
}

// scoredAddr is one ranked dial candidate.
type scoredAddr struct {
	addr    ma.Multiaddr
	rank    int
	timeout time.Duration
	order   int
}

func isPrivateIP(ip net.IP) bool {
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8"} {
		_, ipnet, _ := net.ParseCIDR(cidr)
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// rankAddr scores a single candidate per the capability-aware priority
// table in spec.md §4.14 (lower = try first). isRelaySpecific distinguishes
// a relay address that names a specific relay peer (we give it a higher
// priority than a wholly generic relay circuit address).
func rankAddr(a ma.Multiaddr, cap Capability, isRelaySpecific bool) int {
	relay := isCircuitRelay(a)
	if relay {
		if isRelaySpecific {
			if !cap.HasIPv4 && !cap.HasIPv6 {
				return 1
			}
			return 10
		}
		if !cap.HasIPv4 && !cap.HasIPv6 {
			return 5
		}
		return 20
	}

	ip, err := manet.ToIP(a)
	if err != nil {
		return 20
	}
	if ip.To4() == nil {
		if cap.HasIPv6 {
			return 1
		}
		return 999 // filtered out earlier; unreachable in practice
	}
	if isPrivateIP(ip) {
		if cap.HasIPv6 && cap.HasIPv4 {
			return 3
		}
		return 5
	}
	if cap.HasIPv6 && cap.HasIPv4 {
		return 2
	}
	return 1
}

// rankAddrs filters, dedups and scores candidate addresses, returning them
// ordered by ascending rank (tie-broken by original order), per spec.md
// §4.13 steps 4-6.
func rankAddrs(addrs []ma.Multiaddr, cap Capability) []scoredAddr {
	filtered := dedupIPv6(filterAddrs(addrs, cap))
	out := make([]scoredAddr, 0, len(filtered))
	for i, a := range filtered {
		relay := isCircuitRelay(a)
		timeout := directTimeout
		specific := false
		if relay {
			timeout = relayTimeout
			// A circuit address names a specific relay when a /p2p
			// component precedes its /p2p-circuit component.
			s := a.String()
			if i := strings.Index(s, "/p2p-circuit"); i >= 0 {
				specific = strings.Contains(s[:i], "/p2p/")
			}
		}
		out = append(out, scoredAddr{
			addr:    a,
			rank:    rankAddr(a, cap, specific),
			timeout: timeout,
			order:   i,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].rank != out[j].rank {
			return out[i].rank < out[j].rank
		}
		return out[i].order < out[j].order
	})
	return out
}
