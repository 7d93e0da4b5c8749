package noise

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	pool "github.com/libp2p/go-buffer-pool"
)

// maxFrameLen bounds a single length-prefixed Noise wire message (2-byte
// big-endian length prefix, per the Noise Protocol Framework's standard
// transport framing).
const maxFrameLen = 65535

// messageTransport reads/writes individual length-prefixed frames: the
// handshake messages, and afterwards each encrypted transport message
// that secureConn sends or receives.
type messageTransport struct {
	conn net.Conn
}

func (m *messageTransport) writeFrame(b []byte) error {
	if len(b) > maxFrameLen {
		return fmt.Errorf("noise: frame too large: %d", len(b))
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(b)))
	if _, err := m.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := m.conn.Write(b)
	return err
}

// readFrame pulls its buffer from pool so every post-handshake transport
// message (the hot path, one per Read on a connection carrying many
// small protocol messages) avoids a fresh heap allocation; callers must
// pool.Put the returned slice once they're done decrypting it.
func (m *messageTransport) readFrame() ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(m.conn, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(hdr[:])
	buf := pool.Get(int(n))
	if _, err := io.ReadFull(m.conn, buf); err != nil {
		pool.Put(buf)
		return nil, err
	}
	return buf, nil
}
