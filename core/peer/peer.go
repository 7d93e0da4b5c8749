// Package peer defines the PeerId type: the canonical identifier derived
// from a public key, per spec.md §3/§4.2.
package peer

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/student-p2p/swarmkit/core/crypto"

	b58 "github.com/mr-tron/base58/base58"
	"github.com/multiformats/go-multihash"
)

// ID is a libp2p peer identity: the multihash of a public key's canonical
// marshaled bytes (identity hash for keys <= maxInlineKeyLength, sha2-256
// otherwise), matching existing libp2p practice (spec.md §4.2).
type ID string

const maxInlineKeyLength = 42

var (
	ErrEmptyPeerID      = errors.New("peer: empty peer ID")
	ErrNoPublicKey      = errors.New("peer: public key is not embedded in peer ID")
	ErrInvalidMultihash = errors.New("peer: invalid multihash")
)

// IDFromPublicKey derives a PeerId from a public key, per spec.md §4.2.
func IDFromPublicKey(pk crypto.PubKey) (ID, error) {
	b, err := crypto.MarshalPublicKey(pk)
	if err != nil {
		return "", err
	}
	var alg uint64 = multihash.SHA2_256
	if len(b) <= maxInlineKeyLength {
		alg = multihash.IDENTITY
	}
	hash, err := multihash.Sum(b, alg, -1)
	if err != nil {
		return "", err
	}
	return ID(hash), nil
}

// IDFromPrivateKey derives the PeerId of the given private key's public half.
func IDFromPrivateKey(sk crypto.PrivKey) (ID, error) {
	return IDFromPublicKey(sk.GetPublic())
}

// Validate reports whether p decodes to a well-formed multihash.
func (p ID) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPeerID
	}
	_, err := multihash.Cast([]byte(p))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMultihash, err)
	}
	return nil
}

// ExtractPublicKey returns the public key embedded in the ID itself, when
// the ID was derived from a small enough key to be identity-hashed.
// Returns ErrNoPublicKey otherwise.
func (p ID) ExtractPublicKey() (crypto.PubKey, error) {
	dm, err := multihash.Decode([]byte(p))
	if err != nil {
		return nil, err
	}
	if dm.Code != multihash.IDENTITY {
		return nil, ErrNoPublicKey
	}
	return crypto.UnmarshalPublicKey(dm.Digest)
}

// MatchesPublicKey reports whether p was derived from pk.
func (p ID) MatchesPublicKey(pk crypto.PubKey) bool {
	other, err := IDFromPublicKey(pk)
	if err != nil {
		return false
	}
	return other == p
}

// MatchesPrivateKey reports whether p was derived from sk's public half.
func (p ID) MatchesPrivateKey(sk crypto.PrivKey) bool {
	return p.MatchesPublicKey(sk.GetPublic())
}

// String returns the base58-btc encoded legacy textual form.
func (p ID) String() string {
	return b58.Encode([]byte(p))
}

// ShortString renders a short human-friendly form, e.g. for logs.
func (p ID) ShortString() string {
	s := p.String()
	if len(s) <= 10 {
		return s
	}
	return fmt.Sprintf("%s*%s", s[:2], s[len(s)-6:])
}

// Decode parses the base58-btc legacy textual form back into an ID.
func Decode(s string) (ID, error) {
	b, err := b58.Decode(s)
	if err != nil {
		return "", err
	}
	id := ID(b)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// HexString renders the raw multihash bytes as a hex string, handy for
// logging alongside other systems that don't understand base58.
func (p ID) HexString() string { return hex.EncodeToString([]byte(p)) }
