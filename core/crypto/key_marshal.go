package crypto

import (
	"github.com/student-p2p/swarmkit/core/crypto/pb"
)

// MarshalPublicKey wraps a PubKey in the protobuf-tagged envelope and
// serializes it, per spec.md §4.2/§6.
func MarshalPublicKey(k PubKey) ([]byte, error) {
	raw, err := k.Raw()
	if err != nil {
		return nil, err
	}
	pmes := pb.PublicKey{Type: int32(k.Type()), Data: raw}
	return pmes.Marshal(), nil
}

// UnmarshalPublicKey parses the protobuf-tagged envelope and dispatches to
// the algorithm-specific unmarshaler.
func UnmarshalPublicKey(data []byte) (PubKey, error) {
	var pmes pb.PublicKey
	if err := pmes.Unmarshal(data); err != nil {
		return nil, err
	}
	switch KeyType(pmes.Type) {
	case RSA:
		return unmarshalRsaPublicKey(pmes.Data)
	case Ed25519:
		return unmarshalEd25519PublicKey(pmes.Data)
	case Secp256k1:
		return unmarshalSecp256k1PublicKey(pmes.Data)
	case ECDSA:
		return unmarshalECDSAPublicKey(pmes.Data)
	default:
		return nil, ErrBadKeyType
	}
}

// MarshalPrivateKey wraps a PrivKey in the protobuf-tagged envelope.
func MarshalPrivateKey(k PrivKey) ([]byte, error) {
	raw, err := k.Raw()
	if err != nil {
		return nil, err
	}
	pmes := pb.PrivateKey{Type: int32(k.Type()), Data: raw}
	return pmes.Marshal(), nil
}

// UnmarshalPrivateKey parses the protobuf-tagged envelope and dispatches to
// the algorithm-specific unmarshaler.
func UnmarshalPrivateKey(data []byte) (PrivKey, error) {
	var pmes pb.PrivateKey
	if err := pmes.Unmarshal(data); err != nil {
		return nil, err
	}
	switch KeyType(pmes.Type) {
	case RSA:
		return unmarshalRsaPrivateKey(pmes.Data)
	case Ed25519:
		return unmarshalEd25519PrivateKey(pmes.Data)
	case Secp256k1:
		return unmarshalSecp256k1PrivateKey(pmes.Data)
	case ECDSA:
		return unmarshalECDSAPrivateKey(pmes.Data)
	default:
		return nil, ErrBadKeyType
	}
}

// KeyEqual is a convenience used by the KeyBook to compare keys regardless
// of concrete type.
func KeyEqual(a, b Key) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equals(b)
}
