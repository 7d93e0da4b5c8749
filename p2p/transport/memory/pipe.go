package memory

import (
	"net"
	"sync/atomic"
)

// pipeConn wraps a net.Pipe() half with an IsClosed flag, since net.Conn
// itself exposes no way to query closedness (needed to satisfy
// transport.CapableConn).
type pipeConn struct {
	net.Conn
	closed *atomic.Bool
}

func newPipe() (pipeConn, pipeConn) {
	c1, c2 := net.Pipe()
	return pipeConn{Conn: c1, closed: &atomic.Bool{}}, pipeConn{Conn: c2, closed: &atomic.Bool{}}
}

func (p pipeConn) Close() error {
	p.closed.Store(true)
	return p.Conn.Close()
}

func (p pipeConn) IsClosed() bool {
	return p.closed.Load()
}
