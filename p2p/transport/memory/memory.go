// Package memory implements an in-process reference Transport used by
// host/swarm tests in lieu of a real socket, per spec.md §4.7's mention of
// a minimal transport sufficient to exercise the upgrade pipeline and dial
// orchestration without a network.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/student-p2p/swarmkit/core/network"
	"github.com/student-p2p/swarmkit/core/peer"
	"github.com/student-p2p/swarmkit/core/transport"

	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("transport-memory")

// protoMemoryCode is the multiaddr protocol code for "/memory/<id>"
// addresses (upstream multiaddr reserves 777 for exactly this purpose, for
// libp2p's own in-process transport test helper). The value is a decimal
// listener id, encoded/decoded via the transcoder below.
const protoMemoryCode = 777

var memoryTranscoder = ma.NewTranscoderFromFunctions(
	func(s string) ([]byte, error) {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("transport-memory: invalid address %q: %w", s, err)
		}
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[7-i] = byte(n)
			n >>= 8
		}
		return b, nil
	},
	func(b []byte) (string, error) {
		if len(b) != 8 {
			return "", fmt.Errorf("transport-memory: expected 8 bytes, got %d", len(b))
		}
		var n uint64
		for _, by := range b {
			n = n<<8 | uint64(by)
		}
		return strconv.FormatUint(n, 10), nil
	},
	nil,
)

func init() {
	if p := ma.ProtocolWithCode(protoMemoryCode); p.Code != 0 {
		return // already registered by the multiaddr build in use
	}
	_ = ma.AddProtocol(ma.Protocol{
		Name:       "memory",
		Code:       protoMemoryCode,
		VCode:      ma.CodeToVarint(protoMemoryCode),
		Size:       64,
		Transcoder: memoryTranscoder,
	})
}

var idCounter int64

// registry maps a bound "/memory/<id>" address to the listener accepting
// on it, process-wide (this transport only ever connects peers within the
// same process, by design).
var registry sync.Map // map[string]*Listener

// Transport is the in-memory reference transport.
type Transport struct{}

// New constructs a memory Transport.
func New() *Transport { return &Transport{} }

func (t *Transport) Protocols() []int { return []int{protoMemoryCode} }

func (t *Transport) Proxy() bool { return false }

func (t *Transport) CanDial(raddr ma.Multiaddr) bool {
	_, err := raddr.ValueForProtocol(protoMemoryCode)
	return err == nil
}

// Dial connects to a previously-Listen'd address within this process.
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr, p peer.ID) (transport.CapableConn, error) {
	v, err := raddr.ValueForProtocol(protoMemoryCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnreachable, raddr)
	}
	l, ok := registry.Load(v)
	if !ok {
		return nil, fmt.Errorf("%w: no listener on %s", transport.ErrUnreachable, raddr)
	}
	listener := l.(*Listener)
	c1, c2 := newPipePair(raddr, listener.laddr)
	select {
	case listener.accept <- c2:
	case <-listener.closed:
		return nil, transport.ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c1, nil
}

// Listen binds a fresh "/memory/<id>" address if laddr doesn't already name
// one, registering it in the process-wide registry.
func (t *Transport) Listen(laddr ma.Multiaddr) (transport.Listener, error) {
	var v string
	var err error
	if laddr != nil {
		v, err = laddr.ValueForProtocol(protoMemoryCode)
	}
	if laddr == nil || err != nil || v == "" {
		id := atomic.AddInt64(&idCounter, 1)
		laddr, _ = ma.NewMultiaddr(fmt.Sprintf("/memory/%d", id))
		v, _ = laddr.ValueForProtocol(protoMemoryCode)
	}
	if _, exists := registry.Load(v); exists {
		return nil, fmt.Errorf("transport-memory: address %s already in use", laddr)
	}
	l := &Listener{
		laddr:  laddr,
		accept: make(chan *Conn, 16),
		closed: make(chan struct{}),
	}
	registry.Store(v, l)
	log.Debugw("listening", "addr", laddr)
	return l, nil
}

// Listener accepts in-process connections dialed against its bound
// "/memory/<id>" address.
type Listener struct {
	laddr  ma.Multiaddr
	accept chan *Conn
	closed chan struct{}
	once   sync.Once
}

func (l *Listener) Accept() (transport.CapableConn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.closed:
		return nil, transport.ErrListenerClosed
	}
}

func (l *Listener) Multiaddr() ma.Multiaddr { return l.laddr }

func (l *Listener) Close() error {
	l.once.Do(func() {
		close(l.closed)
		if v, err := l.laddr.ValueForProtocol(protoMemoryCode); err == nil {
			registry.Delete(v)
		}
	})
	return nil
}

// Conn is a CapableConn backed by an in-process net.Pipe-style duplex
// stream: a raw, unauthenticated, unmultiplexed byte channel, exactly the
// shape p2p/net/upgrader expects a transport.CapableConn to have before
// the security handshake and muxer run.
type Conn struct {
	pipeConn
	laddr, raddr ma.Multiaddr
}

func newPipePair(dialerAddr, listenerAddr ma.Multiaddr) (*Conn, *Conn) {
	a, b := newPipe()
	return &Conn{pipeConn: a, laddr: dialerAddr, raddr: listenerAddr},
		&Conn{pipeConn: b, laddr: listenerAddr, raddr: dialerAddr}
}

func (c *Conn) LocalMultiaddr() ma.Multiaddr  { return c.laddr }
func (c *Conn) RemoteMultiaddr() ma.Multiaddr { return c.raddr }

var _ transport.CapableConn = (*Conn)(nil)
var _ network.ConnMultiaddrs = (*Conn)(nil)
