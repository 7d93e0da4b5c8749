package connmgr

import (
	"errors"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/connmgr"
	"github.com/student-p2p/swarmkit/core/peer"
)

var ErrTagAlreadyRegistered = errors.New("connmgr: decaying tag already registered")

// decayingTagState tracks one registered tag's per-peer bookkeeping.
type decayingTagState struct {
	name     string
	interval time.Duration
	decayFn  connmgr.DecayFn
	bumpFn   connmgr.BumpFn

	mu     sync.Mutex
	values map[peer.ID]connmgr.DecayingValue

	mgr *BasicConnManager
}

// RegisterDecayingTag implements core/connmgr.Decayer: it runs a periodic
// tick on mgr's clock that applies decayFn to every tracked peer and
// writes the result back as a plain TagPeer value, per spec.md §4.12.
func (m *BasicConnManager) RegisterDecayingTag(name string, interval time.Duration, decayFn connmgr.DecayFn, bumpFn connmgr.BumpFn) (connmgr.DecayingTag, error) {
	m.mu.Lock()
	if m.decaying == nil {
		m.decaying = make(map[string]*decayingTagState)
	}
	if _, exists := m.decaying[name]; exists {
		m.mu.Unlock()
		return nil, ErrTagAlreadyRegistered
	}
	st := &decayingTagState{
		name:     name,
		interval: interval,
		decayFn:  decayFn,
		bumpFn:   bumpFn,
		values:   make(map[peer.ID]connmgr.DecayingValue),
		mgr:      m,
	}
	m.decaying[name] = st
	m.mu.Unlock()

	go st.run()
	return st, nil
}

func (st *decayingTagState) run() {
	t := st.mgr.clock.Ticker(st.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			st.tick()
		case <-st.mgr.closeCh:
			return
		}
	}
}

func (st *decayingTagState) tick() {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.mgr.clock.Now()
	for p, v := range st.values {
		next, remove := st.decayFn(v)
		if remove {
			delete(st.values, p)
			st.mgr.UntagPeer(p, st.name)
			continue
		}
		st.values[p] = connmgr.DecayingValue{Value: next, LastTick: now}
		st.mgr.TagPeer(p, st.name, next)
	}
}

func (st *decayingTagState) Name() string { return st.name }

func (st *decayingTagState) Bump(p peer.ID, delta int) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	cur := st.values[p]
	next := st.bumpFn(cur, delta)
	st.values[p] = connmgr.DecayingValue{Value: next, LastTick: st.mgr.clock.Now()}
	st.mgr.TagPeer(p, st.name, next)
	return nil
}

func (st *decayingTagState) Remove(p peer.ID) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.values, p)
	st.mgr.UntagPeer(p, st.name)
	return nil
}

var _ connmgr.Decayer = (*BasicConnManager)(nil)
