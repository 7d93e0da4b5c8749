package peer

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// AddrInfo is a PeerId plus a set of Multiaddresses, per spec.md §3.
type AddrInfo struct {
	ID    ID
	Addrs []ma.Multiaddr
}

var ErrInvalidAddr = errors.New("peer: invalid p2p multiaddr")

// AddrInfoFromP2pAddr splits a /.../p2p/<id> multiaddr into an AddrInfo
// containing just that one address (with the /p2p suffix stripped), or the
// zero AddrInfo{ID: id} if m is bare /p2p/<id>.
func AddrInfoFromP2pAddr(m ma.Multiaddr) (*AddrInfo, error) {
	if m == nil {
		return nil, ErrInvalidAddr
	}
	transport, p2ppart := ma.SplitLast(m)
	if p2ppart == nil {
		p2ppart = transport
		transport = nil
	}
	raw, err := p2ppart.ValueForProtocol(ma.P_P2P)
	if err != nil {
		return nil, fmt.Errorf("%w: missing /p2p component", ErrInvalidAddr)
	}
	id, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddr, err)
	}

	info := &AddrInfo{ID: id}
	if transport != nil {
		info.Addrs = []ma.Multiaddr{transport}
	}
	return info, nil
}

// AddrInfosFromP2pAddrs groups a set of /.../p2p/<id> multiaddrs by peer id.
func AddrInfosFromP2pAddrs(addrs ...ma.Multiaddr) ([]AddrInfo, error) {
	byID := make(map[ID][]ma.Multiaddr)
	order := make([]ID, 0)
	for _, m := range addrs {
		info, err := AddrInfoFromP2pAddr(m)
		if err != nil {
			return nil, err
		}
		if _, ok := byID[info.ID]; !ok {
			order = append(order, info.ID)
		}
		byID[info.ID] = append(byID[info.ID], info.Addrs...)
	}
	out := make([]AddrInfo, 0, len(order))
	for _, id := range order {
		out = append(out, AddrInfo{ID: id, Addrs: byID[id]})
	}
	return out, nil
}

// P2pAddrs renders each of ai's addresses with the /p2p/<id> suffix appended.
func (ai AddrInfo) P2pAddrs() ([]ma.Multiaddr, error) {
	p2ppart, err := ma.NewComponent("p2p", ai.ID.String())
	if err != nil {
		return nil, err
	}
	out := make([]ma.Multiaddr, 0, len(ai.Addrs))
	for _, a := range ai.Addrs {
		out = append(out, a.Encapsulate(p2ppart))
	}
	return out, nil
}

func (ai AddrInfo) String() string {
	return fmt.Sprintf("{%s: %s}", ai.ID, ai.Addrs)
}
