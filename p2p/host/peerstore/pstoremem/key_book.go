package pstoremem

import (
	"sync"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/peerstore"
)

type keyEntry struct {
	pub  crypto.PubKey
	priv crypto.PrivKey
}

// memoryKeyBook implements core/peerstore.KeyBook, per spec.md §4.4.
type memoryKeyBook struct {
	mu   sync.RWMutex
	keys map[peer.ID]*keyEntry
}

func NewKeyBook() *memoryKeyBook {
	return &memoryKeyBook{keys: make(map[peer.ID]*keyEntry)}
}

func (kb *memoryKeyBook) PubKey(p peer.ID) crypto.PubKey {
	kb.mu.RLock()
	e, ok := kb.keys[p]
	kb.mu.RUnlock()
	if ok && e.pub != nil {
		return e.pub
	}
	if pk, err := p.ExtractPublicKey(); err == nil {
		kb.mu.Lock()
		if kb.keys[p] == nil {
			kb.keys[p] = &keyEntry{}
		}
		kb.keys[p].pub = pk
		kb.mu.Unlock()
		return pk
	}
	return nil
}

// AddPubKey fails with ErrIdentityMismatch if p does not match pk, per
// spec.md §4.4/§4.2.
func (kb *memoryKeyBook) AddPubKey(p peer.ID, pk crypto.PubKey) error {
	if !p.MatchesPublicKey(pk) {
		return peerstore.ErrIdentityMismatch
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	e, ok := kb.keys[p]
	if !ok {
		e = &keyEntry{}
		kb.keys[p] = e
	}
	e.pub = pk
	return nil
}

func (kb *memoryKeyBook) PrivKey(p peer.ID) crypto.PrivKey {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	e, ok := kb.keys[p]
	if !ok {
		return nil
	}
	return e.priv
}

// AddPrivKey fails with ErrIdentityMismatch if p does not match sk, per
// spec.md §4.2 ("peer_id.matches_private_key(sk) must hold").
func (kb *memoryKeyBook) AddPrivKey(p peer.ID, sk crypto.PrivKey) error {
	if !p.MatchesPrivateKey(sk) {
		return peerstore.ErrIdentityMismatch
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	e, ok := kb.keys[p]
	if !ok {
		e = &keyEntry{}
		kb.keys[p] = e
	}
	e.priv = sk
	if e.pub == nil {
		e.pub = sk.GetPublic()
	}
	return nil
}

func (kb *memoryKeyBook) PeersWithKeys() []peer.ID {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make([]peer.ID, 0, len(kb.keys))
	for p := range kb.keys {
		out = append(out, p)
	}
	return out
}
