// Package pb holds the wire-compatible codec for the Noise handshake
// payload exchanged as early data during the XX pattern: the initiator's
// and responder's libp2p identity key and a signature binding it to the
// ephemeral Noise static key, plus optional extension bytes.
//
// As elsewhere in this module, this is a hand-written varint/tag codec
// (see core/crypto/pb for the rationale) rather than protoc-gen-go output,
// since the Go toolchain cannot be invoked in this environment. The wire
// layout matches the three-field NoiseHandshakePayload message used by
// libp2p's noise security transport.
package pb

import (
	"errors"

	"github.com/multiformats/go-varint"
)

const (
	fieldIdentityKey = 1
	fieldIdentitySig = 2
	fieldData        = 3

	wireBytes = 2
)

// NoiseHandshakePayload is the early-data message carried inside the Noise
// XX handshake.
type NoiseHandshakePayload struct {
	IdentityKey []byte
	IdentitySig []byte
	Data        []byte
}

func (m *NoiseHandshakePayload) Marshal() []byte {
	var buf []byte
	if len(m.IdentityKey) > 0 {
		buf = appendField(buf, fieldIdentityKey, m.IdentityKey)
	}
	if len(m.IdentitySig) > 0 {
		buf = appendField(buf, fieldIdentitySig, m.IdentitySig)
	}
	if len(m.Data) > 0 {
		buf = appendField(buf, fieldData, m.Data)
	}
	return buf
}

func appendField(prefix []byte, field int, data []byte) []byte {
	tag := uint64(field)<<3 | wireBytes
	out := append(prefix, varint.ToUvarint(tag)...)
	out = append(out, varint.ToUvarint(uint64(len(data)))...)
	out = append(out, data...)
	return out
}

func (m *NoiseHandshakePayload) Unmarshal(data []byte) error {
	for len(data) > 0 {
		tag, n, err := varint.FromUvarint(data)
		if err != nil {
			return err
		}
		data = data[n:]
		field := int(tag >> 3)
		wire := tag & 0x7
		if wire != wireBytes {
			return errors.New("pb: unsupported wire type in NoiseHandshakePayload")
		}
		l, n, err := varint.FromUvarint(data)
		if err != nil {
			return err
		}
		data = data[n:]
		if uint64(len(data)) < l {
			return errors.New("pb: truncated NoiseHandshakePayload field")
		}
		val := data[:l]
		data = data[l:]
		switch field {
		case fieldIdentityKey:
			m.IdentityKey = append([]byte(nil), val...)
		case fieldIdentitySig:
			m.IdentitySig = append([]byte(nil), val...)
		case fieldData:
			m.Data = append([]byte(nil), val...)
		}
	}
	return nil
}
