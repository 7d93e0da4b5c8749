package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Secp256k1PrivateKey and Secp256k1PublicKey are the fourth KeyType named in
// the wire enum (spec.md §6): {RSA=0, Ed25519=1, Secp256k1=2, ECDSA=3}.
type Secp256k1PrivateKey struct {
	sk *secp256k1.PrivateKey
}

type Secp256k1PublicKey struct {
	pk *secp256k1.PublicKey
}

func generateSecp256k1KeyPair(src io.Reader) (PrivKey, PubKey, error) {
	var seed [32]byte
	if _, err := io.ReadFull(src, seed[:]); err != nil {
		return nil, nil, err
	}
	sk := secp256k1.PrivKeyFromBytes(seed[:])
	return &Secp256k1PrivateKey{sk: sk}, &Secp256k1PublicKey{pk: sk.PubKey()}, nil
}

func (k *Secp256k1PrivateKey) Type() KeyType { return Secp256k1 }

func (k *Secp256k1PrivateKey) Raw() ([]byte, error) {
	return k.sk.Serialize(), nil
}

func (k *Secp256k1PrivateKey) Equals(other Key) bool {
	o, ok := other.(*Secp256k1PrivateKey)
	if !ok {
		return false
	}
	return k.sk.Key.Equals(&o.sk.Key)
}

func (k *Secp256k1PrivateKey) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return ecdsa.Sign(k.sk, digest[:]).Serialize(), nil
}

func (k *Secp256k1PrivateKey) GetPublic() PubKey {
	return &Secp256k1PublicKey{pk: k.sk.PubKey()}
}

func (k *Secp256k1PublicKey) Type() KeyType { return Secp256k1 }

func (k *Secp256k1PublicKey) Raw() ([]byte, error) {
	return k.pk.SerializeCompressed(), nil
}

func (k *Secp256k1PublicKey) Equals(other Key) bool {
	o, ok := other.(*Secp256k1PublicKey)
	if !ok {
		return false
	}
	return k.pk.IsEqual(o.pk)
}

func (k *Secp256k1PublicKey) Verify(data, sigBytes []byte) (bool, error) {
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("crypto: malformed secp256k1 signature: %w", err)
	}
	digest := sha256.Sum256(data)
	return sig.Verify(digest[:], k.pk), nil
}

func unmarshalSecp256k1PrivateKey(data []byte) (PrivKey, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("crypto: expected secp256k1 private key of size 32, got %d", len(data))
	}
	sk := secp256k1.PrivKeyFromBytes(data)
	return &Secp256k1PrivateKey{sk: sk}, nil
}

func unmarshalSecp256k1PublicKey(data []byte) (PubKey, error) {
	pk, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, fmt.Errorf("crypto: malformed secp256k1 public key: %w", err)
	}
	return &Secp256k1PublicKey{pk: pk}, nil
}
