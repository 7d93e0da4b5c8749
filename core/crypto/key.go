// Package crypto defines the key types used to derive and authenticate peer
// identities: generation, (un)marshaling and signing/verification for the
// four supported algorithms.
package crypto

import (
	"crypto/rand"
	"errors"
	"io"
)

// KeyType enumerates the signature algorithms a PeerId can be derived from.
// The numeric values match the wire envelope in core/crypto/pb.
type KeyType int

const (
	RSA KeyType = iota
	Ed25519
	Secp256k1
	ECDSA
)

func (t KeyType) String() string {
	switch t {
	case RSA:
		return "RSA"
	case Ed25519:
		return "Ed25519"
	case Secp256k1:
		return "Secp256k1"
	case ECDSA:
		return "ECDSA"
	default:
		return "Unknown"
	}
}

var (
	ErrBadKeyType     = errors.New("crypto: invalid or unsupported key type")
	ErrRSAKeyTooSmall = errors.New("crypto: RSA keys must be >= 2048 bits")
	ErrRSAKeyTooBig   = errors.New("crypto: RSA keys must be <= 8192 bits")
	ErrNotRSAKey      = errors.New("crypto: not an RSA key")
)

// MinRSAKeyBits and MaxRSAKeyBits bound RSA key construction per spec §4.2.
const (
	MinRSAKeyBits = 2048
	MaxRSAKeyBits = 8192
)

// Key is the common surface of PubKey and PrivKey: comparable, and
// marshalable to the protobuf-tagged {type, data} envelope described in
// spec.md §6.
type Key interface {
	// Type returns the algorithm for this key.
	Type() KeyType
	// Raw returns the raw, non-envelope bytes for this key (algorithm specific).
	Raw() ([]byte, error)
	// Equals checks whether two keys are of the same type and hold the same key.
	Equals(Key) bool
}

// PubKey is a public key that can verify data signed with the corresponding PrivKey.
type PubKey interface {
	Key
	Verify(data []byte, sig []byte) (bool, error)
}

// PrivKey is a private key that can sign data and recover its public key.
type PrivKey interface {
	Key
	Sign([]byte) ([]byte, error)
	GetPublic() PubKey
}

// GenSharedKey generators are not part of the core surface; omitted (out of scope).

// GenerateKeyPair constructs a fresh PrivKey/PubKey pair of the given type.
// bits is only consulted for RSA.
func GenerateKeyPair(typ KeyType, bits int) (PrivKey, PubKey, error) {
	return GenerateKeyPairWithReader(typ, bits, rand.Reader)
}

func GenerateKeyPairWithReader(typ KeyType, bits int, src io.Reader) (PrivKey, PubKey, error) {
	switch typ {
	case RSA:
		return generateRSAKeyPair(bits, src)
	case Ed25519:
		return generateEd25519KeyPair(src)
	case Secp256k1:
		return generateSecp256k1KeyPair(src)
	case ECDSA:
		return generateECDSAKeyPair(src)
	default:
		return nil, nil, ErrBadKeyType
	}
}
