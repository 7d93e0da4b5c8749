package noise

import (
	"net"
	"sync"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/peer"

	"github.com/flynn/noise"
	pool "github.com/libp2p/go-buffer-pool"
)

// plaintextChunk bounds how much plaintext goes into a single encrypted
// frame, leaving room for the 16-byte ChaChaPoly tag under maxFrameLen.
const plaintextChunk = maxFrameLen - 16

// secureConn implements core/sec.SecureConn: a net.Conn whose Read/Write
// transparently decrypt/encrypt length-prefixed Noise transport messages.
type secureConn struct {
	net.Conn

	localID, remoteID peer.ID
	remoteKey         crypto.PubKey

	enc, dec *noise.CipherState

	readMu  sync.Mutex
	readBuf []byte

	writeMu sync.Mutex
}

func (c *secureConn) LocalPeer() peer.ID          { return c.localID }
func (c *secureConn) RemotePeer() peer.ID         { return c.remoteID }
func (c *secureConn) RemotePublicKey() crypto.PubKey { return c.remoteKey }

func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	total := 0
	mt := &messageTransport{conn: c.Conn}
	for len(p) > 0 {
		n := len(p)
		if n > plaintextChunk {
			n = plaintextChunk
		}
		ciphertext, err := c.enc.Encrypt(nil, nil, p[:n])
		if err != nil {
			return total, err
		}
		if err := mt.writeFrame(ciphertext); err != nil {
			return total, err
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.readBuf) == 0 {
		mt := &messageTransport{conn: c.Conn}
		ciphertext, err := mt.readFrame()
		if err != nil {
			return 0, err
		}
		plaintext, err := c.dec.Decrypt(nil, nil, ciphertext)
		pool.Put(ciphertext)
		if err != nil {
			return 0, err
		}
		c.readBuf = plaintext
	}
	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}
