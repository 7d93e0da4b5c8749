// Package rcmgr implements the resource scope tree described in
// spec.md §3/§4.6: hierarchical reservations for memory, streams,
// connections and file descriptors.
package rcmgr

import (
	"github.com/pbnjay/memory"
)

// Priority is accepted by ReserveMemory but is neither stored nor consulted
// in admission control (no component in SPEC_FULL uses priority-based
// preemption).
type Priority uint8

const (
	PriorityLow Priority = 100
	PriorityDefault Priority = 128
	PriorityHigh Priority = 200
)

// Limit bounds a single resource scope's resource usage.
type Limit struct {
	Memory       int64
	StreamsIn    int
	StreamsOut   int
	StreamsTotal int
	ConnsIn      int
	ConnsOut     int
	ConnsTotal   int
	FD           int
}

// Unlimited is a sentinel memory value meaning "no cap" (the system scope
// default, before auto-scaling).
const Unlimited int64 = -1

func (l Limit) memoryLimit() int64 {
	if l.Memory == 0 {
		return Unlimited
	}
	return l.Memory
}

// LimitConfig holds one Limit per scope kind; DefaultLimits builds one
// scaled from total system memory the way the teacher's
// rcmgr.NewDefaultLimiterFromMemory does.
type LimitConfig struct {
	System    Limit
	Transient Limit
	Service   Limit
	Protocol  Limit
	Peer      Limit
	Conn      Limit
	Stream    Limit
}

// DefaultLimits scales System.Memory off total physical RAM (via
// github.com/pbnjay/memory), falling back to a conservative 1GiB default
// when total RAM can't be determined (memory.TotalMemory() == 0 on some
// platforms/containers).
func DefaultLimits() LimitConfig {
	total := memory.TotalMemory()
	sysMem := int64(total) / 4
	if sysMem <= 0 {
		sysMem = 1 << 30
	}
	return LimitConfig{
		System: Limit{
			Memory: sysMem, StreamsIn: 4096, StreamsOut: 4096, StreamsTotal: 8192,
			ConnsIn: 1024, ConnsOut: 1024, ConnsTotal: 2048, FD: 1024,
		},
		Transient: Limit{
			Memory: sysMem / 8, StreamsIn: 512, StreamsOut: 512, StreamsTotal: 1024,
			ConnsIn: 256, ConnsOut: 256, ConnsTotal: 512, FD: 256,
		},
		Service:  Limit{Memory: sysMem / 4, StreamsIn: 2048, StreamsOut: 2048, StreamsTotal: 4096},
		Protocol: Limit{Memory: sysMem / 4, StreamsIn: 2048, StreamsOut: 2048, StreamsTotal: 4096},
		Peer:     Limit{Memory: sysMem / 16, StreamsIn: 256, StreamsOut: 256, StreamsTotal: 512, ConnsIn: 8, ConnsOut: 8, ConnsTotal: 16, FD: 16},
		Conn:     Limit{Memory: 16 << 20, FD: 1},
		Stream:   Limit{Memory: 16 << 20},
	}
}
