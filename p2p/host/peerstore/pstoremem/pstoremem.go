package pstoremem

import (
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/peerstore"
	"github.com/student-p2p/swarmkit/core/record"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("peerstore")

// memoryMetadata implements core/peerstore.PeerMetadata as a plain
// per-peer key/value map, used to cache e.g. the identify agent version.
type memoryMetadata struct {
	mu   sync.RWMutex
	data map[peer.ID]map[string]interface{}
}

func newMemoryMetadata() *memoryMetadata {
	return &memoryMetadata{data: make(map[peer.ID]map[string]interface{})}
}

func (m *memoryMetadata) Get(p peer.ID, key string) (interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if vs, ok := m.data[p]; ok {
		if v, ok := vs[key]; ok {
			return v, nil
		}
	}
	return nil, peerstore.ErrNotFound
}

func (m *memoryMetadata) Put(p peer.ID, key string, val interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs, ok := m.data[p]
	if !ok {
		vs = make(map[string]interface{})
		m.data[p] = vs
	}
	vs[key] = val
	return nil
}

func (m *memoryMetadata) RemovePeer(p peer.ID) {
	m.mu.Lock()
	delete(m.data, p)
	m.mu.Unlock()
}

// pstoremem is the composed in-memory Peerstore, per spec.md §3/§4.4.
type pstoremem struct {
	*memoryAddrBook
	*memoryKeyBook
	*memoryProtoBook
	*memoryMetrics
	*memoryMetadata

	recordsMu sync.RWMutex
	records   map[peer.ID]*record.Envelope
}

// NewPeerstore builds the default in-memory Peerstore, with a TTL sweeper
// driven by cl (use clock.New() in production, a mock clock in tests).
func NewPeerstore(cl clock.Clock, sweepInterval time.Duration) peerstore.Peerstore {
	return &pstoremem{
		memoryAddrBook:  NewAddrBook(cl, sweepInterval),
		memoryKeyBook:   NewKeyBook(),
		memoryProtoBook: NewProtoBook(),
		memoryMetrics:   NewMetrics(),
		memoryMetadata:  newMemoryMetadata(),
		records:         make(map[peer.ID]*record.Envelope),
	}
}

func (ps *pstoremem) Close() error {
	return ps.memoryAddrBook.Close()
}

// RemovePeer disambiguates the RemovePeer method promoted from both
// memoryMetrics and memoryMetadata, clearing a peer's entries from each.
func (ps *pstoremem) RemovePeer(p peer.ID) {
	ps.memoryMetrics.RemovePeer(p)
	ps.memoryMetadata.RemovePeer(p)
}

func (ps *pstoremem) PeerInfo(p peer.ID) peer.AddrInfo {
	return peer.AddrInfo{ID: p, Addrs: ps.Addrs(p)}
}

func (ps *pstoremem) Peers() peer.Set {
	set := peer.NewSet()
	for _, p := range ps.PeersWithAddrs() {
		set.Add(p)
	}
	for _, p := range ps.PeersWithKeys() {
		set.Add(p)
	}
	return set
}

// ConsumePeerRecord stores env under the peer ID its PeerRecord carries,
// only if the record's seq is strictly greater than any existing record's
// seq, per spec.md §3 invariant 4 / testable property 4 / scenario S4. The
// envelope's signature is not re-checked here.
func (ps *pstoremem) ConsumePeerRecord(env *record.Envelope, ttl time.Duration) (bool, error) {
	rec, ok := env.Record().(*record.PeerRecord)
	if !ok {
		return false, nil
	}

	ps.recordsMu.Lock()
	existing, hasExisting := ps.records[rec.PeerID]
	if hasExisting {
		existingRec := existing.Record().(*record.PeerRecord)
		if existingRec.Seq > rec.Seq {
			ps.recordsMu.Unlock()
			log.Debugw("rejecting stale peer record", "peer", rec.PeerID, "seq", rec.Seq, "have", existingRec.Seq)
			return false, nil
		}
		if existingRec.Seq == rec.Seq {
			ps.recordsMu.Unlock()
			return false, nil
		}
	}
	ps.records[rec.PeerID] = env
	ps.recordsMu.Unlock()

	ps.SetAddrs(rec.PeerID, rec.Addrs, ttl)
	return true, nil
}

func (ps *pstoremem) GetPeerRecord(p peer.ID) *record.Envelope {
	ps.recordsMu.RLock()
	defer ps.recordsMu.RUnlock()
	return ps.records[p]
}
