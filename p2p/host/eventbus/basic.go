// Package eventbus implements the typed pub/sub event.Bus described in
// spec.md §4.5: subscribers receive a lazy sequence of events of their
// subscribed type(s); emitters with the Stateful option replay the last
// event to new subscribers before any subsequent new event.
package eventbus

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/student-p2p/swarmkit/core/event"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("eventbus")

const defaultBufferSize = 16

// Bus is the concrete event.Bus implementation.
type Bus struct {
	mu           sync.RWMutex
	nodes        map[reflect.Type]*node
	wildcardSubs []*subscription
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{nodes: make(map[reflect.Type]*node)}
}

// node holds all state for a single event type: the live subscriber
// mailboxes and, for stateful emitters, the last emitted value.
type node struct {
	mu          sync.Mutex
	typ         reflect.Type
	subscribers map[*subscription]struct{}
	wildcard    bool

	stateful    bool
	lastEmitted atomic.Value // holds the last emitted event (interface{})
	hasEmitted  int32
}

func (b *Bus) nodeFor(typ reflect.Type) *node {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[typ]
	if !ok {
		n = &node{typ: typ, subscribers: make(map[*subscription]struct{})}
		b.nodes[typ] = n
	}
	return n
}

// subscription is a single subscriber's mailbox.
type subscription struct {
	bus     *Bus
	name    string
	out     chan interface{}
	nodes   []*node
	closeMu sync.Mutex
	closed  bool
}

func (s *subscription) Out() <-chan interface{} { return s.out }
func (s *subscription) Name() string            { return s.name }

// Close is idempotent, per spec.md §4.5.
func (s *subscription) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, n := range s.nodes {
		n.mu.Lock()
		delete(n.subscribers, s)
		n.mu.Unlock()
	}
	close(s.out)
	log.Debugw("closed subscription", "name", s.name)
	return nil
}

type subSettings struct {
	buffer int
	name   string
}

// BufSize sets the subscription's mailbox buffer size. Default 16.
func BufSize(n int) event.SubscriptionOpt {
	return func(s interface{}) error {
		s.(*subSettings).buffer = n
		return nil
	}
}

// Name tags a subscription for logging/debugging.
func Name(name string) event.SubscriptionOpt {
	return func(s interface{}) error {
		s.(*subSettings).name = name
		return nil
	}
}

type emitSettings struct {
	stateful bool
}

// Stateful marks an Emitter as stateful: it remembers the last event so new
// subscribers receive it immediately, per spec.md §4.5.
func Stateful() event.EmitterOpt {
	return func(s interface{}) error {
		s.(*emitSettings).stateful = true
		return nil
	}
}

// Subscribe implements event.Bus. eventType is either a single event value
// (e.g. EvtFoo{}), a []interface{} of such values, or event.WildcardSubscription.
func (b *Bus) Subscribe(eventType interface{}, opts ...event.SubscriptionOpt) (event.Subscription, error) {
	settings := subSettings{buffer: defaultBufferSize}
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}

	types, wildcard, err := resolveTypes(eventType)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		bus:  b,
		name: settings.name,
		out:  make(chan interface{}, settings.buffer),
	}

	if wildcard {
		// A wildcard subscription observes a dedicated pseudo-node so it
		// does not need to track every concrete type ever registered.
		n := b.nodeFor(reflect.TypeOf(wildcardMarker{}))
		n.mu.Lock()
		n.wildcard = true
		n.subscribers[sub] = struct{}{}
		n.mu.Unlock()
		sub.nodes = append(sub.nodes, n)
		b.mu.Lock()
		b.wildcardSubs = append(b.wildcardSubs, sub)
		b.mu.Unlock()
		return sub, nil
	}

	for _, t := range types {
		n := b.nodeFor(t)
		n.mu.Lock()
		n.subscribers[sub] = struct{}{}
		// The replay send happens while n.mu is still held, not after
		// release: Emit also snapshots n.subscribers under n.mu before
		// sending, so holding the lock across this send serializes us
		// against a concurrent Emit that registers after we do — it will
		// block on n.mu until our replay has already gone out, preserving
		// "new subscriber observes the latest event before any later one".
		if n.stateful && atomic.LoadInt32(&n.hasEmitted) == 1 {
			sub.out <- n.lastEmitted.Load()
		}
		n.mu.Unlock()
		sub.nodes = append(sub.nodes, n)
	}
	return sub, nil
}

type wildcardMarker struct{}

func resolveTypes(eventType interface{}) (types []reflect.Type, wildcard bool, err error) {
	if eventType == event.WildcardSubscription {
		return nil, true, nil
	}
	switch v := eventType.(type) {
	case []interface{}:
		for _, e := range v {
			types = append(types, reflect.TypeOf(e))
		}
		return types, false, nil
	default:
		return []reflect.Type{reflect.TypeOf(eventType)}, false, nil
	}
}

// Emitter implements event.Emitter for a single event type.
type Emitter struct {
	node   *node
	typ    reflect.Type
	bus    *Bus
	closed int32
}

// Emitter implements event.Bus.Emitter.
func (b *Bus) Emitter(eventType interface{}, opts ...event.EmitterOpt) (event.Emitter, error) {
	settings := emitSettings{}
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}
	typ := reflect.TypeOf(eventType)
	n := b.nodeFor(typ)
	n.mu.Lock()
	n.stateful = n.stateful || settings.stateful
	n.mu.Unlock()
	return &Emitter{node: n, typ: typ, bus: b}, nil
}

func (e *Emitter) Emit(evt interface{}) error {
	if atomic.LoadInt32(&e.closed) == 1 {
		return fmt.Errorf("eventbus: emit on closed emitter for %s", e.typ)
	}
	if reflect.TypeOf(evt) != e.typ {
		return fmt.Errorf("eventbus: emitted type %T does not match emitter type %s", evt, e.typ)
	}

	e.node.mu.Lock()
	if e.node.stateful {
		e.node.lastEmitted.Store(evt)
		atomic.StoreInt32(&e.node.hasEmitted, 1)
	}
	subs := make([]*subscription, 0, len(e.node.subscribers))
	for s := range e.node.subscribers {
		subs = append(subs, s)
	}
	e.node.mu.Unlock()

	for _, s := range subs {
		// Per spec.md §5: an emitter blocks when any non-lossy subscriber's
		// mailbox is full, applying backpressure to this Emit call.
		s.out <- evt
	}

	e.bus.mu.RLock()
	wildcardSubs := append([]*subscription(nil), e.bus.wildcardSubs...)
	e.bus.mu.RUnlock()
	for _, s := range wildcardSubs {
		s.out <- evt
	}

	return nil
}

func (e *Emitter) Close() error {
	atomic.StoreInt32(&e.closed, 1)
	return nil
}
