// Package pb holds the wire-level encoding for the identify protocol's
// Identify message (core/crypto/pb, which also carries the envelope and
// PeerRecord messages, uses the same approach, for the same reason — see
// that package's comment). Field
// numbers match the real identify.proto schema so the bytes stay
// tag/varint/length-delimited-compatible with a protoc-generated
// implementation of it.
package pb

import (
	"bytes"
	"errors"

	varint "github.com/multiformats/go-varint"
)

const (
	wireVarint = 0
	wireBytes  = 2
)

func tag(field int, wt int) uint64 { return uint64(field)<<3 | uint64(wt) }

func appendTagVarint(buf *bytes.Buffer, field int, v uint64) {
	buf.Write(varint.ToUvarint(tag(field, wireVarint)))
	buf.Write(varint.ToUvarint(v))
}

func appendTagBytes(buf *bytes.Buffer, field int, v []byte) {
	buf.Write(varint.ToUvarint(tag(field, wireBytes)))
	buf.Write(varint.ToUvarint(uint64(len(v))))
	buf.Write(v)
}

type wireField struct {
	num int
	wt  int
	u64 uint64
	buf []byte
}

var ErrMalformedMessage = errors.New("pb: malformed message")

func decodeFields(data []byte) ([]wireField, error) {
	var out []wireField
	for len(data) > 0 {
		key, n, err := varint.FromUvarint(data)
		if err != nil {
			return nil, ErrMalformedMessage
		}
		data = data[n:]
		num := int(key >> 3)
		wt := int(key & 0x7)
		switch wt {
		case wireVarint:
			v, n, err := varint.FromUvarint(data)
			if err != nil {
				return nil, ErrMalformedMessage
			}
			data = data[n:]
			out = append(out, wireField{num: num, wt: wt, u64: v})
		case wireBytes:
			l, n, err := varint.FromUvarint(data)
			if err != nil {
				return nil, ErrMalformedMessage
			}
			data = data[n:]
			if uint64(len(data)) < l {
				return nil, ErrMalformedMessage
			}
			out = append(out, wireField{num: num, wt: wt, buf: data[:l]})
			data = data[l:]
		default:
			return nil, ErrMalformedMessage
		}
	}
	return out, nil
}

// Identify mirrors the wire schema spec.md §6 names: "{public_key,
// listen_addrs, protocols, observed_addr, protocol_version, agent_version,
// signed_peer_record}", all fields optional. Field numbers match upstream
// identify.proto.
type Identify struct {
	PublicKey        []byte
	ListenAddrs      [][]byte
	Protocols        []string
	ObservedAddr     []byte
	ProtocolVersion  *string
	AgentVersion     *string
	SignedPeerRecord []byte
}

func (m *Identify) GetProtocolVersion() string {
	if m == nil || m.ProtocolVersion == nil {
		return ""
	}
	return *m.ProtocolVersion
}

func (m *Identify) GetAgentVersion() string {
	if m == nil || m.AgentVersion == nil {
		return ""
	}
	return *m.AgentVersion
}

func (m *Identify) GetObservedAddr() []byte {
	if m == nil {
		return nil
	}
	return m.ObservedAddr
}

func (m *Identify) GetListenAddrs() [][]byte {
	if m == nil {
		return nil
	}
	return m.ListenAddrs
}

func (m *Identify) Marshal() []byte {
	var buf bytes.Buffer
	if len(m.PublicKey) > 0 {
		appendTagBytes(&buf, 1, m.PublicKey)
	}
	for _, a := range m.ListenAddrs {
		appendTagBytes(&buf, 2, a)
	}
	for _, p := range m.Protocols {
		appendTagBytes(&buf, 3, []byte(p))
	}
	if len(m.ObservedAddr) > 0 {
		appendTagBytes(&buf, 4, m.ObservedAddr)
	}
	if m.ProtocolVersion != nil {
		appendTagBytes(&buf, 5, []byte(*m.ProtocolVersion))
	}
	if m.AgentVersion != nil {
		appendTagBytes(&buf, 6, []byte(*m.AgentVersion))
	}
	if len(m.SignedPeerRecord) > 0 {
		appendTagBytes(&buf, 8, m.SignedPeerRecord)
	}
	return buf.Bytes()
}

func (m *Identify) Unmarshal(data []byte) error {
	fields, err := decodeFields(data)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.num {
		case 1:
			m.PublicKey = f.buf
		case 2:
			m.ListenAddrs = append(m.ListenAddrs, f.buf)
		case 3:
			m.Protocols = append(m.Protocols, string(f.buf))
		case 4:
			m.ObservedAddr = f.buf
		case 5:
			s := string(f.buf)
			m.ProtocolVersion = &s
		case 6:
			s := string(f.buf)
			m.AgentVersion = &s
		case 8:
			m.SignedPeerRecord = f.buf
		}
	}
	return nil
}

// Merge appends src's repeated fields onto m and overwrites m's singular
// fields with src's whenever src sets them, matching proto.Merge's
// semantics for the subset of field kinds this schema uses. Used by
// readAllIDMessages to reassemble an Identify message that arrived split
// across the legacy/signed-record two-message form.
func Merge(dst, src *Identify) {
	if len(src.PublicKey) > 0 {
		dst.PublicKey = src.PublicKey
	}
	dst.ListenAddrs = append(dst.ListenAddrs, src.ListenAddrs...)
	dst.Protocols = append(dst.Protocols, src.Protocols...)
	if len(src.ObservedAddr) > 0 {
		dst.ObservedAddr = src.ObservedAddr
	}
	if src.ProtocolVersion != nil {
		dst.ProtocolVersion = src.ProtocolVersion
	}
	if src.AgentVersion != nil {
		dst.AgentVersion = src.AgentVersion
	}
	if len(src.SignedPeerRecord) > 0 {
		dst.SignedPeerRecord = src.SignedPeerRecord
	}
}
