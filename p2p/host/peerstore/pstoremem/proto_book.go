package pstoremem

import (
	"sync"

	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/protocol"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryProtoBook implements core/peerstore.ProtoBook, per spec.md §4.4. A
// bounded LRU cache fronts GetProtocols; SupportsProtocols reads the
// protocol map directly.
type memoryProtoBook struct {
	mu    sync.RWMutex
	protos map[peer.ID]map[protocol.ID]struct{}

	supportCache *lru.Cache[string, []protocol.ID]
}

func NewProtoBook() *memoryProtoBook {
	cache, _ := lru.New[string, []protocol.ID](256)
	return &memoryProtoBook{
		protos:       make(map[peer.ID]map[protocol.ID]struct{}),
		supportCache: cache,
	}
}

func (pb *memoryProtoBook) invalidate(p peer.ID) {
	pb.supportCache.Remove(string(p))
}

func (pb *memoryProtoBook) GetProtocols(p peer.ID) ([]protocol.ID, error) {
	if cached, ok := pb.supportCache.Get(string(p)); ok {
		return cached, nil
	}
	pb.mu.RLock()
	m := pb.protos[p]
	out := make([]protocol.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	pb.mu.RUnlock()
	pb.supportCache.Add(string(p), out)
	return out, nil
}

func (pb *memoryProtoBook) AddProtocols(p peer.ID, protos ...protocol.ID) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	m, ok := pb.protos[p]
	if !ok {
		m = make(map[protocol.ID]struct{})
		pb.protos[p] = m
	}
	for _, id := range protos {
		m[id] = struct{}{}
	}
	pb.invalidate(p)
	return nil
}

func (pb *memoryProtoBook) SetProtocols(p peer.ID, protos ...protocol.ID) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	m := make(map[protocol.ID]struct{}, len(protos))
	for _, id := range protos {
		m[id] = struct{}{}
	}
	pb.protos[p] = m
	pb.invalidate(p)
	return nil
}

func (pb *memoryProtoBook) RemoveProtocols(p peer.ID, protos ...protocol.ID) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	m, ok := pb.protos[p]
	if !ok {
		return nil
	}
	for _, id := range protos {
		delete(m, id)
	}
	pb.invalidate(p)
	return nil
}

// SupportsProtocols returns the subset of protos that p is known to
// support, per spec.md §4.4.
func (pb *memoryProtoBook) SupportsProtocols(p peer.ID, protos ...protocol.ID) ([]protocol.ID, error) {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	m := pb.protos[p]
	out := make([]protocol.ID, 0, len(protos))
	for _, id := range protos {
		if _, ok := m[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// FirstSupportedProtocol returns the first of protos (in caller order) that
// p supports, or "" if none.
func (pb *memoryProtoBook) FirstSupportedProtocol(p peer.ID, protos ...protocol.ID) (protocol.ID, error) {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	m := pb.protos[p]
	for _, id := range protos {
		if _, ok := m[id]; ok {
			return id, nil
		}
	}
	return "", nil
}
