package protocol

import "sync"

// HandlerFunc processes a stream once a protocol.ID has been negotiated on
// it. It is declared generically here (as `any`) because core/protocol
// cannot import core/network without creating an import cycle (network
// depends on protocol.ID); p2p/host/basic instantiates Switch with
// network.StreamHandler.
type HandlerFunc = any

// HandlerWithID pairs a protocol ID with the handler matched for it, for
// callers that used a predicate match and need to know which concrete ID
// the peer offered.
type HandlerWithID struct {
	Protocol ID
	Handler  HandlerFunc
}

// MatchFunc decides whether a predicate-registered handler accepts a given
// candidate protocol ID.
type MatchFunc func(ID) bool

type predicateEntry struct {
	id      ID
	match   MatchFunc
	handler HandlerFunc
}

// Switch is the protocol router described in spec.md §4.11: exact matches
// win, otherwise the first matching predicate (in registration order) wins.
// Safe for concurrent use.
type Switch struct {
	mu         sync.RWMutex
	exact      map[ID]HandlerFunc
	predicates []predicateEntry
}

// NewSwitch constructs an empty Switch.
func NewSwitch() *Switch {
	return &Switch{exact: make(map[ID]HandlerFunc)}
}

// AddHandler registers an exact-match handler for id.
func (s *Switch) AddHandler(id ID, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exact[id] = handler
}

// AddHandlerWithFunc registers a predicate handler: match is evaluated
// against each inbound candidate that has no exact match, in registration
// order, and the first match wins.
func (s *Switch) AddHandlerWithFunc(id ID, match MatchFunc, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predicates = append(s.predicates, predicateEntry{id: id, match: match, handler: handler})
}

// RemoveHandler removes both the exact-match entry and any predicate
// entries registered under id.
func (s *Switch) RemoveHandler(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.exact, id)
	filtered := s.predicates[:0]
	for _, p := range s.predicates {
		if p.id != id {
			filtered = append(filtered, p)
		}
	}
	s.predicates = filtered
}

// Protocols enumerates exact-match ids only, per spec.md §4.11.
func (s *Switch) Protocols() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ID, 0, len(s.exact))
	for id := range s.exact {
		out = append(out, id)
	}
	return out
}

// Match resolves a candidate protocol ID to a handler: exact match first,
// then the first matching predicate in registration order.
func (s *Switch) Match(id ID) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.exact[id]; ok {
		return h, true
	}
	for _, p := range s.predicates {
		if p.match(id) {
			return p.handler, true
		}
	}
	return nil, false
}
