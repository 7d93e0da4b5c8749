// Package record implements signed envelopes and the PeerRecord payload
// carried inside them, per spec.md §4.3/§6.
package record

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/student-p2p/swarmkit/core/crypto"
	"github.com/student-p2p/swarmkit/core/crypto/pb"

	varint "github.com/multiformats/go-varint"
)

var (
	ErrInvalidSignature = errors.New("record: invalid signature")
	ErrWrongDomain       = errors.New("record: envelope opened with the wrong domain")
	ErrPayloadTypeMismatch = errors.New("record: envelope payload type does not match record type")
)

// Record is any payload type that can be sealed into an Envelope. Codec
// implementations register themselves under a payload-type tag via
// RegisterType so Consume can dispatch to the correct Unmarshal.
type Record interface {
	// MarshalRecord serializes the payload (not the enclosing envelope).
	MarshalRecord() ([]byte, error)
	// Domain is the domain string the envelope signature must be opened with.
	Domain() string
	// Codec is the payload-type tag identifying this record's wire schema.
	Codec() []byte
}

// Envelope is {public-key, payload-type-tag, payload, signature} per
// spec.md §3/§6. The signature covers
// varint-prefixed(domain) || varint-prefixed(type) || varint-prefixed(payload).
type Envelope struct {
	PublicKey   crypto.PubKey
	PayloadType []byte
	RawPayload  []byte
	Signature   []byte

	cached Record
}

// TypeUnmarshaler constructs a Record of a single registered payload type
// from raw bytes.
type TypeUnmarshaler func([]byte) (Record, error)

var typeRegistry = make(map[string]TypeUnmarshaler)

// RegisterType associates a payload-type tag with an unmarshaler so Consume
// can produce a typed Record. Called from package init in record
// implementations (e.g. core/record's own PeerRecord).
func RegisterType(payloadType []byte, unmarshal TypeUnmarshaler) {
	typeRegistry[string(payloadType)] = unmarshal
}

func signaturePayload(domain string, payloadType, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write(varint.ToUvarint(uint64(len(domain))))
	buf.WriteString(domain)
	buf.Write(varint.ToUvarint(uint64(len(payloadType))))
	buf.Write(payloadType)
	buf.Write(varint.ToUvarint(uint64(len(payload))))
	buf.Write(payload)
	return buf.Bytes()
}

// Seal produces an Envelope whose signature covers the length-prefixed
// domain, payload-type and payload, per spec.md §4.3.
func Seal(rec Record, privateKey crypto.PrivKey) (*Envelope, error) {
	payload, err := rec.MarshalRecord()
	if err != nil {
		return nil, fmt.Errorf("record: failed to marshal record payload: %w", err)
	}
	payloadType := rec.Codec()
	toSign := signaturePayload(rec.Domain(), payloadType, payload)
	sig, err := privateKey.Sign(toSign)
	if err != nil {
		return nil, fmt.Errorf("record: failed to sign envelope: %w", err)
	}
	return &Envelope{
		PublicKey:   privateKey.GetPublic(),
		PayloadType: payloadType,
		RawPayload:  payload,
		Signature:   sig,
		cached:      rec,
	}, nil
}

// Marshal serializes the envelope to its protobuf-compatible wire form.
func (e *Envelope) Marshal() ([]byte, error) {
	keyBytes, err := crypto.MarshalPublicKey(e.PublicKey)
	if err != nil {
		return nil, err
	}
	pmes := pb.Envelope{
		PublicKey:   keyBytes,
		PayloadType: e.PayloadType,
		Payload:     e.RawPayload,
		Signature:   e.Signature,
	}
	return pmes.Marshal(), nil
}

// Equal reports whether two envelopes carry the same fields.
func (e *Envelope) Equal(other *Envelope) bool {
	if other == nil {
		return false
	}
	return e.PublicKey.Equals(other.PublicKey) &&
		bytes.Equal(e.PayloadType, other.PayloadType) &&
		bytes.Equal(e.RawPayload, other.RawPayload) &&
		bytes.Equal(e.Signature, other.Signature)
}

// ConsumeEnvelope parses, verifies, and type-checks a wire-encoded envelope,
// per spec.md §4.3: fails with ErrInvalidSignature or ErrWrongDomain.
// The caller supplies the domain it expects; ErrWrongDomain is returned
// when the decoded record's own Domain() disagrees with it.
func ConsumeEnvelope(data []byte, domain string) (*Envelope, Record, error) {
	var pmes pb.Envelope
	if err := pmes.Unmarshal(data); err != nil {
		return nil, nil, fmt.Errorf("record: failed to unmarshal envelope: %w", err)
	}
	pk, err := crypto.UnmarshalPublicKey(pmes.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("record: failed to unmarshal envelope public key: %w", err)
	}
	e := &Envelope{
		PublicKey:   pk,
		PayloadType: pmes.PayloadType,
		RawPayload:  pmes.Payload,
		Signature:   pmes.Signature,
	}

	// Resolve the record's own declared domain before touching the
	// signature: a caller asking to open an envelope against the wrong
	// domain should get ErrWrongDomain even if, cryptographically, the
	// mismatch would also fail signature verification.
	unmarshal, found := typeRegistry[string(e.PayloadType)]
	if !found {
		return nil, nil, fmt.Errorf("record: no registered unmarshaler for payload type %x", e.PayloadType)
	}
	rec, err := unmarshal(e.RawPayload)
	if err != nil {
		return nil, nil, fmt.Errorf("record: failed to unmarshal record payload: %w", err)
	}
	if rec.Domain() != domain {
		return nil, nil, ErrWrongDomain
	}

	toVerify := signaturePayload(domain, e.PayloadType, e.RawPayload)
	ok, err := pk.Verify(toVerify, e.Signature)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	if !ok {
		return nil, nil, ErrInvalidSignature
	}

	e.cached = rec
	return e, rec, nil
}

// Record returns the typed payload decoded during ConsumeEnvelope, if any.
func (e *Envelope) Record() Record { return e.cached }
