package pstoremem

import (
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/peer"
)

// ewmaSmoothing is the EWMA smoothing factor alpha from spec.md §4.4.
const ewmaSmoothing = 0.1

// memoryMetrics implements core/peerstore.Metrics: per-peer latency as an
// EWMA, per spec.md §4.4.
type memoryMetrics struct {
	mu      sync.RWMutex
	latency map[peer.ID]float64 // nanoseconds
}

func NewMetrics() *memoryMetrics {
	return &memoryMetrics{latency: make(map[peer.ID]float64)}
}

func (m *memoryMetrics) RecordLatency(p peer.ID, rtt time.Duration) {
	nanos := float64(rtt.Nanoseconds())
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.latency[p]; ok {
		m.latency[p] = ewmaSmoothing*nanos + (1-ewmaSmoothing)*cur
	} else {
		m.latency[p] = nanos
	}
}

func (m *memoryMetrics) LatencyEWMA(p peer.ID) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.latency[p])
}

func (m *memoryMetrics) RemovePeer(p peer.ID) {
	m.mu.Lock()
	delete(m.latency, p)
	m.mu.Unlock()
}
