package natreachability

import (
	"net"
	"testing"

	"github.com/student-p2p/swarmkit/core/event"

	"github.com/stretchr/testify/require"
)

func TestCompareMappedAddrs(t *testing.T) {
	a := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 1000}
	same := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 1000}
	diffIP := &net.UDPAddr{IP: net.ParseIP("5.6.7.8"), Port: 1000}
	diffPort := &net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 2000}

	require.Equal(t, MappingEndpointIndependent, compareMappedAddrs(a, same))
	require.Equal(t, MappingAddressDependent, compareMappedAddrs(a, diffIP))
	require.Equal(t, MappingAddressAndPortDependent, compareMappedAddrs(a, diffPort))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		mapping   MappingBehavior
		filtering FilteringBehavior
		reachable bool
		wantType  event.NATDeviceType
		wantStrat TraversalStrategy
	}{
		{"unreachable", MappingUnknown, FilteringUnknown, false, event.NATDeviceTypeBlocked, StrategyRelayOnly},
		{"symmetric", MappingAddressAndPortDependent, FilteringAddressAndPortDependent, true, event.NATDeviceTypeSymmetric, StrategyRelayOnly},
		{"full cone", MappingEndpointIndependent, FilteringEndpointIndependent, true, event.NATDeviceTypeFullCone, StrategyDirect},
		{"restricted cone", MappingEndpointIndependent, FilteringAddressDependent, true, event.NATDeviceTypeRestrictedCone, StrategyHolePunch},
		{"port restricted", MappingEndpointIndependent, FilteringAddressAndPortDependent, true, event.NATDeviceTypePortRestricted, StrategyHolePunch},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gotType, gotStrat := classify(c.mapping, c.filtering, c.reachable)
			require.Equal(t, c.wantType, gotType)
			require.Equal(t, c.wantStrat, gotStrat)
		})
	}
}

func TestServerHealthScoreClamping(t *testing.T) {
	s := &serverHealth{addr: "stun.example.com:3478", score: 95}
	s.recordSuccess()
	require.Equal(t, 100, s.score)

	s.score = 15
	s.recordFailure()
	require.Equal(t, 0, s.score)
}

func TestBestServersOrdersByScoreDescending(t *testing.T) {
	tr := &Tracker{
		servers: []*serverHealth{
			{addr: "a", score: 10},
			{addr: "b", score: 90},
			{addr: "c", score: 50},
		},
	}
	best := tr.bestServers(2)
	require.Equal(t, []string{"b", "c"}, best)
}
