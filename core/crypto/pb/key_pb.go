// Package pb holds the wire-level encodings for core/crypto and core/record.
//
// These are hand-written protobuf-wire-compatible codecs rather than
// protoc-gen-go output: the schemas are small and stable (see spec.md §6),
// and this tree is built without running the Go toolchain (so `go generate`
// can't invoke protoc here). The wire bytes follow standard proto3 field
// encoding (tag = field<<3|wiretype, varint and length-delimited fields via
// multiformats/go-varint), so they remain byte-compatible with a real
// protoc-generated implementation of the same .proto schema.
package pb

import (
	"bytes"
	"errors"

	varint "github.com/multiformats/go-varint"
)

// wire types used below.
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

// field is a single decoded protobuf field.
type field struct {
	num int
	wt  int
	u64 uint64
	buf []byte
}

// ErrMalformedMessage is returned for any field-framing failure.
var ErrMalformedMessage = errors.New("pb: malformed message")

func decodeFields(data []byte) ([]field, error) {
	var out []field
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
			out = append(out, field{num: num, wt: wt, u64: v})
		case wireBytes:
			l, n, err := varint.FromUvarint(data)
			if err != nil {
				return nil, ErrMalformedMessage
			}
			data = data[n:]
			if uint64(len(data)) < l {
				return nil, ErrMalformedMessage
			}
			out = append(out, field{num: num, wt: wt, buf: data[:l]})
			data = data[l:]
		default:
			return nil, ErrMalformedMessage
		}
	}
	return out, nil
}

// PublicKey is the protobuf-tagged {type, data} envelope for PubKey/PrivKey,
// per spec.md §6 "Crypto key envelope".
type PublicKey struct {
	Type int32
	Data []byte
}

func (k *PublicKey) Marshal() []byte {
	var buf bytes.Buffer
	appendTagVarint(&buf, 1, uint64(k.Type))
	appendTagBytes(&buf, 2, k.Data)
	return buf.Bytes()
}

func (k *PublicKey) Unmarshal(data []byte) error {
	fields, err := decodeFields(data)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.num {
		case 1:
			k.Type = int32(f.u64)
		case 2:
			k.Data = f.buf
		}
	}
	return nil
}

// PrivateKey mirrors PublicKey; the two are wire-identical in this schema.
type PrivateKey struct {
	Type int32
	Data []byte
}

func (k *PrivateKey) Marshal() []byte {
	var buf bytes.Buffer
	appendTagVarint(&buf, 1, uint64(k.Type))
	appendTagBytes(&buf, 2, k.Data)
	return buf.Bytes()
}

func (k *PrivateKey) Unmarshal(data []byte) error {
	fields, err := decodeFields(data)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.num {
		case 1:
			k.Type = int32(f.u64)
		case 2:
			k.Data = f.buf
		}
	}
	return nil
}

// Envelope is the signed-envelope wire schema from spec.md §6.
type Envelope struct {
	PublicKey   []byte
	PayloadType []byte
	Payload     []byte
	Signature   []byte
}

func (e *Envelope) Marshal() []byte {
	var buf bytes.Buffer
	appendTagBytes(&buf, 1, e.PublicKey)
	appendTagBytes(&buf, 2, e.PayloadType)
	appendTagBytes(&buf, 3, e.Payload)
	appendTagBytes(&buf, 5, e.Signature)
	return buf.Bytes()
}

func (e *Envelope) Unmarshal(data []byte) error {
	fields, err := decodeFields(data)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.num {
		case 1:
			e.PublicKey = f.buf
		case 2:
			e.PayloadType = f.buf
		case 3:
			e.Payload = f.buf
		case 5:
			e.Signature = f.buf
		}
	}
	return nil
}

// PeerRecord is the wire schema described in spec.md §4.3 / §6.
type PeerRecord struct {
	PeerId    []byte
	Seq       uint64
	Addresses [][]byte
}

func (r *PeerRecord) Marshal() []byte {
	var buf bytes.Buffer
	appendTagBytes(&buf, 1, r.PeerId)
	appendTagVarint(&buf, 2, r.Seq)
	for _, a := range r.Addresses {
		var entry bytes.Buffer
		appendTagBytes(&entry, 1, a)
		appendTagBytes(&buf, 3, entry.Bytes())
	}
	return buf.Bytes()
}

func (r *PeerRecord) Unmarshal(data []byte) error {
	fields, err := decodeFields(data)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.num {
		case 1:
			r.PeerId = f.buf
		case 2:
			r.Seq = f.u64
		case 3:
			inner, err := decodeFields(f.buf)
			if err != nil {
				return err
			}
			for _, inf := range inner {
				if inf.num == 1 {
					r.Addresses = append(r.Addresses, inf.buf)
				}
			}
		}
	}
	return nil
}
