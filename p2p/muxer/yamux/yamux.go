// Package yamux adapts github.com/libp2p/go-yamux/v4 to core/network's
// MuxedConn/MuxedStream abstraction, per spec.md §4.9.
package yamux

import (
	"context"
	"io"
	"time"

	"github.com/student-p2p/swarmkit/core/network"

	"github.com/libp2p/go-yamux/v4"
)

// Transport implements the muxer-selection side of the upgrade pipeline:
// given an already-secured net.Conn, it opens a yamux.Session as either
// client or server.
type Transport struct {
	config *yamux.Config
}

// New builds a yamux Transport with the library's default session config.
func New() *Transport {
	return &Transport{config: yamux.DefaultConfig()}
}

func (t *Transport) NewConn(nc io.ReadWriteCloser, isServer bool) (network.MuxedConn, error) {
	rwc, ok := nc.(rwcAddr)
	if !ok {
		rwc = wrapRWC{nc}
	}
	var sess *yamux.Session
	var err error
	if isServer {
		sess, err = yamux.Server(rwc, t.config, nil)
	} else {
		sess, err = yamux.Client(rwc, t.config, nil)
	}
	if err != nil {
		return nil, err
	}
	return &muxedConn{sess: sess}, nil
}

// rwcAddr is satisfied by any net.Conn; yamux.Server/Client accept
// net.Conn (they need deadlines internally), so plain io.ReadWriteCloser
// values are wrapped to a no-op-deadline shim instead.
type rwcAddr interface {
	io.ReadWriteCloser
	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

type wrapRWC struct {
	io.ReadWriteCloser
}

func (wrapRWC) SetDeadline(time.Time) error      { return nil }
func (wrapRWC) SetReadDeadline(time.Time) error  { return nil }
func (wrapRWC) SetWriteDeadline(time.Time) error { return nil }

type muxedConn struct {
	sess *yamux.Session
}

func (c *muxedConn) Close() error { return c.sess.Close() }

func (c *muxedConn) IsClosed() bool { return c.sess.IsClosed() }

func (c *muxedConn) OpenStream(ctx context.Context) (network.MuxedStream, error) {
	s, err := c.sess.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	return &muxedStream{s: s}, nil
}

func (c *muxedConn) AcceptStream() (network.MuxedStream, error) {
	s, err := c.sess.AcceptStream()
	if err != nil {
		return nil, err
	}
	return &muxedStream{s: s}, nil
}

// muxedStream wraps a yamux.Stream.
type muxedStream struct {
	s *yamux.Stream
}

func (s *muxedStream) Read(p []byte) (int, error)  { return s.s.Read(p) }
func (s *muxedStream) Write(p []byte) (int, error) { return s.s.Write(p) }
func (s *muxedStream) Close() error                { return s.s.Close() }

// CloseWrite half-closes for writing by sending a yamux half-close frame.
func (s *muxedStream) CloseWrite() error { return s.s.CloseWrite() }

// CloseRead does nothing: the read side is not half-closed, so Read keeps
// returning data until the peer closes its side, after which it returns
// io.EOF.
func (s *muxedStream) CloseRead() error { return nil }

func (s *muxedStream) Reset() error { return s.s.Reset() }

func (s *muxedStream) SetDeadline(t time.Time) error      { return s.s.SetDeadline(t) }
func (s *muxedStream) SetReadDeadline(t time.Time) error  { return s.s.SetReadDeadline(t) }
func (s *muxedStream) SetWriteDeadline(t time.Time) error { return s.s.SetWriteDeadline(t) }
