package rcmgr

import (
	"errors"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("rcmgr")

// ErrResourceLimitExceeded and ErrScopeClosed are the two failure modes
// named in spec.md §4.6/§7.
var (
	ErrResourceLimitExceeded = errors.New("rcmgr: resource limit exceeded")
	ErrScopeClosed           = errors.New("rcmgr: scope is closed")
)

// Stat snapshots a scope's current counters.
type Stat struct {
	Memory       int64
	NumStreamsIn, NumStreamsOut int
	NumConnsIn, NumConnsOut     int
	NumFD        int
}

// Direction distinguishes inbound/outbound usage without importing
// core/network (which this package is a dependency of, transitively,
// through upgrader wiring).
type Direction int

const (
	DirInbound Direction = iota
	DirOutbound
)

// scope is a node in the resource-accounting DAG described in spec.md §4.6.
// Multiple parents model e.g. a connection scope being a child of both
// `transient` and a peer scope simultaneously.
type scope struct {
	mu      sync.Mutex
	name    string
	limit   Limit
	parents []*scope

	memory int64
	streamsIn, streamsOut int
	connsIn, connsOut     int
	fd      int

	refs int
	closed bool
}

func newScope(name string, limit Limit, parents ...*scope) *scope {
	return &scope{name: name, limit: limit, parents: parents}
}

// lockChain appends s after recursively appending all of its ancestors in a
// stable (parents-before-self, left-to-right) order; the reserve/add paths
// lock the resulting chain in that order, per spec.md §5 "ancestor-first"
// locking discipline. Since scopes form a DAG (not just chains), a node can
// be reached via more than one path; `seen` keeps it in the chain only once.
func lockChain(s *scope, seen map[*scope]bool, chain *[]*scope) {
	if s == nil || seen[s] {
		return
	}
	seen[s] = true
	for _, p := range s.parents {
		lockChain(p, seen, chain)
	}
	*chain = append(*chain, s)
}

func (s *scope) ancestorChain() []*scope {
	var chain []*scope
	lockChain(s, make(map[*scope]bool), &chain)
	return chain
}

// ReserveMemory succeeds only if the reservation fits in this scope and all
// ancestors; on failure any partial reservation is rolled back atomically,
// per spec.md §4.6 / testable property 7 / scenario S5.
func (s *scope) ReserveMemory(size int64, prio Priority) error {
	chain := s.ancestorChain()
	for i, n := range chain {
		n.mu.Lock()
		if n.closed {
			for j := i; j >= 0; j-- {
				chain[j].mu.Unlock()
			}
			return fmt.Errorf("%s: %w", n.name, ErrScopeClosed)
		}
		if n.limit.memoryLimit() != Unlimited && n.memory+size > n.limit.memoryLimit() {
			// Roll back: nothing has been applied yet for this walk since
			// we only mutate after the whole chain is confirmed to fit
			// (see below); unlock everything acquired so far and bail.
			for j := i; j >= 0; j-- {
				chain[j].mu.Unlock()
			}
			log.Debugw("memory reservation rejected", "scope", n.name, "requested", size, "have", n.memory, "limit", n.limit.Memory)
			return fmt.Errorf("%s: %w", n.name, ErrResourceLimitExceeded)
		}
	}
	// Every ancestor (and self) has room: commit atomically.
	for _, n := range chain {
		n.memory += size
	}
	for _, n := range chain {
		n.mu.Unlock()
	}
	return nil
}

// ReleaseMemory never fails; underflow clamps to zero and is logged as a bug.
func (s *scope) ReleaseMemory(size int64) {
	for _, n := range s.ancestorChain() {
		n.mu.Lock()
		n.memory -= size
		if n.memory < 0 {
			log.Warnw("memory accounting underflow, clamping to zero", "scope", n.name)
			n.memory = 0
		}
		n.mu.Unlock()
	}
}

// AddStream checks per-direction and total stream limits plus propagates
// upward, per spec.md §4.6.
func (s *scope) AddStream(dir Direction) error {
	chain := s.ancestorChain()
	for i, n := range chain {
		n.mu.Lock()
		if n.closed {
			for j := i; j >= 0; j-- {
				chain[j].mu.Unlock()
			}
			return fmt.Errorf("%s: %w", n.name, ErrScopeClosed)
		}
		total := n.streamsIn + n.streamsOut
		var dirLimit, dirCount int
		if dir == DirInbound {
			dirLimit, dirCount = n.limit.StreamsIn, n.streamsIn
		} else {
			dirLimit, dirCount = n.limit.StreamsOut, n.streamsOut
		}
		if (dirLimit > 0 && dirCount+1 > dirLimit) || (n.limit.StreamsTotal > 0 && total+1 > n.limit.StreamsTotal) {
			for j := i; j >= 0; j-- {
				chain[j].mu.Unlock()
			}
			return fmt.Errorf("%s: %w", n.name, ErrResourceLimitExceeded)
		}
	}
	for _, n := range chain {
		if dir == DirInbound {
			n.streamsIn++
		} else {
			n.streamsOut++
		}
	}
	for _, n := range chain {
		n.mu.Unlock()
	}
	return nil
}

// RemoveStream never fails.
func (s *scope) RemoveStream(dir Direction) {
	for _, n := range s.ancestorChain() {
		n.mu.Lock()
		if dir == DirInbound {
			n.streamsIn = clampDec(n.streamsIn, n.name)
		} else {
			n.streamsOut = clampDec(n.streamsOut, n.name)
		}
		n.mu.Unlock()
	}
}

// AddConn checks per-direction/total connection limits and the FD limit.
func (s *scope) AddConn(dir Direction, usesFD bool) error {
	chain := s.ancestorChain()
	for i, n := range chain {
		n.mu.Lock()
		if n.closed {
			for j := i; j >= 0; j-- {
				chain[j].mu.Unlock()
			}
			return fmt.Errorf("%s: %w", n.name, ErrScopeClosed)
		}
		total := n.connsIn + n.connsOut
		var dirLimit, dirCount int
		if dir == DirInbound {
			dirLimit, dirCount = n.limit.ConnsIn, n.connsIn
		} else {
			dirLimit, dirCount = n.limit.ConnsOut, n.connsOut
		}
		fdOK := !usesFD || n.limit.FD == 0 || n.fd+1 <= n.limit.FD
		if (dirLimit > 0 && dirCount+1 > dirLimit) || (n.limit.ConnsTotal > 0 && total+1 > n.limit.ConnsTotal) || !fdOK {
			for j := i; j >= 0; j-- {
				chain[j].mu.Unlock()
			}
			return fmt.Errorf("%s: %w", n.name, ErrResourceLimitExceeded)
		}
	}
	for _, n := range chain {
		if dir == DirInbound {
			n.connsIn++
		} else {
			n.connsOut++
		}
		if usesFD {
			n.fd++
		}
	}
	for _, n := range chain {
		n.mu.Unlock()
	}
	return nil
}

// RemoveConn never fails.
func (s *scope) RemoveConn(dir Direction, usedFD bool) {
	for _, n := range s.ancestorChain() {
		n.mu.Lock()
		if dir == DirInbound {
			n.connsIn = clampDec(n.connsIn, n.name)
		} else {
			n.connsOut = clampDec(n.connsOut, n.name)
		}
		if usedFD {
			n.fd = clampDec(n.fd, n.name)
		}
		n.mu.Unlock()
	}
}

func clampDec(v int, name string) int {
	if v <= 0 {
		if v < 0 {
			log.Warnw("refcount underflow, clamping to zero", "scope", name)
		}
		return 0
	}
	return v - 1
}

// Stat returns a snapshot of this scope's own counters (not ancestors).
func (s *scope) Stat() Stat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stat{
		Memory: s.memory, NumStreamsIn: s.streamsIn, NumStreamsOut: s.streamsOut,
		NumConnsIn: s.connsIn, NumConnsOut: s.connsOut, NumFD: s.fd,
	}
}

// IsUnused reports no refs held and all counters zero, per spec.md §4.6.
func (s *scope) IsUnused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs == 0 && s.memory == 0 && s.streamsIn == 0 && s.streamsOut == 0 &&
		s.connsIn == 0 && s.connsOut == 0 && s.fd == 0
}

func (s *scope) incRef() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

func (s *scope) decRef() {
	s.mu.Lock()
	s.refs = clampDec(s.refs, s.name)
	s.mu.Unlock()
}

// Done marks the scope as completed; any further operation against it
// fails with ErrScopeClosed, per spec.md §4.6.
func (s *scope) Done() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
