package record

import (
	"fmt"
	"sync"
	"time"

	"github.com/student-p2p/swarmkit/core/crypto/pb"
	"github.com/student-p2p/swarmkit/core/peer"

	ma "github.com/multiformats/go-multiaddr"
)

// PeerRecordDomain is the domain string signed PeerRecord envelopes are
// sealed/opened with, per spec.md §6.
const PeerRecordDomain = "libp2p-peer-record"

// PeerRecordPayloadType is the payload-type tag for PeerRecord envelopes,
// per spec.md §6: 0x03 0x01.
var PeerRecordPayloadType = []byte{0x03, 0x01}

func init() {
	RegisterType(PeerRecordPayloadType, func(b []byte) (Record, error) {
		rec := &PeerRecord{}
		if err := rec.UnmarshalRecord(b); err != nil {
			return nil, err
		}
		return rec, nil
	})
}

// PeerRecord is {PeerId, addresses, monotonically increasing seq}, per
// spec.md §3/§4.3.
type PeerRecord struct {
	PeerID peer.ID
	Addrs  []ma.Multiaddr
	Seq    uint64
}

func (r *PeerRecord) Domain() string { return PeerRecordDomain }
func (r *PeerRecord) Codec() []byte  { return PeerRecordPayloadType }

func (r *PeerRecord) MarshalRecord() ([]byte, error) {
	addrBytes := make([][]byte, 0, len(r.Addrs))
	for _, a := range r.Addrs {
		addrBytes = append(addrBytes, a.Bytes())
	}
	pmes := pb.PeerRecord{
		PeerId:    []byte(r.PeerID),
		Seq:       r.Seq,
		Addresses: addrBytes,
	}
	return pmes.Marshal(), nil
}

func (r *PeerRecord) UnmarshalRecord(data []byte) error {
	var pmes pb.PeerRecord
	if err := pmes.Unmarshal(data); err != nil {
		return err
	}
	r.PeerID = peer.ID(pmes.PeerId)
	r.Seq = pmes.Seq
	r.Addrs = make([]ma.Multiaddr, 0, len(pmes.Addresses))
	for _, ab := range pmes.Addresses {
		a, err := ma.NewMultiaddrBytes(ab)
		if err != nil {
			return fmt.Errorf("record: invalid address in peer record: %w", err)
		}
		r.Addrs = append(r.Addrs, a)
	}
	return nil
}

// seqClock generates a process-wide monotonic sequence number from
// wall-clock milliseconds, incrementing on exact tie (spec.md §4.3, Open
// Question resolution in SPEC_FULL.md §9).
var seqClock struct {
	mu   sync.Mutex
	last uint64
}

// NextSeq returns the next sequence number for a PeerRecord emitted by this
// process: never less than, and strictly greater than, the previous value
// this process returned.
func NextSeq() uint64 {
	seqClock.mu.Lock()
	defer seqClock.mu.Unlock()
	now := uint64(time.Now().UnixMilli())
	if now <= seqClock.last {
		now = seqClock.last + 1
	}
	seqClock.last = now
	return now
}

// NewPeerRecord builds a PeerRecord for id/addrs stamped with the next
// process-wide sequence number.
func NewPeerRecord(id peer.ID, addrs []ma.Multiaddr) *PeerRecord {
	return &PeerRecord{PeerID: id, Addrs: addrs, Seq: NextSeq()}
}
