package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
)

type Ed25519PrivateKey struct {
	sk ed25519.PrivateKey
}

type Ed25519PublicKey struct {
	pk ed25519.PublicKey
}

func generateEd25519KeyPair(src io.Reader) (PrivKey, PubKey, error) {
	pub, priv, err := ed25519.GenerateKey(src)
	if err != nil {
		return nil, nil, err
	}
	return &Ed25519PrivateKey{sk: priv}, &Ed25519PublicKey{pk: pub}, nil
}

func (k *Ed25519PrivateKey) Type() KeyType { return Ed25519 }

func (k *Ed25519PrivateKey) Raw() ([]byte, error) {
	out := make([]byte, len(k.sk))
	copy(out, k.sk)
	return out, nil
}

func (k *Ed25519PrivateKey) Equals(other Key) bool {
	o, ok := other.(*Ed25519PrivateKey)
	if !ok {
		return false
	}
	return o.sk.Equal(k.sk)
}

func (k *Ed25519PrivateKey) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(k.sk, msg), nil
}

func (k *Ed25519PrivateKey) GetPublic() PubKey {
	return &Ed25519PublicKey{pk: k.sk.Public().(ed25519.PublicKey)}
}

func (k *Ed25519PublicKey) Type() KeyType { return Ed25519 }

func (k *Ed25519PublicKey) Raw() ([]byte, error) {
	out := make([]byte, len(k.pk))
	copy(out, k.pk)
	return out, nil
}

func (k *Ed25519PublicKey) Equals(other Key) bool {
	o, ok := other.(*Ed25519PublicKey)
	if !ok {
		return false
	}
	return o.pk.Equal(k.pk)
}

func (k *Ed25519PublicKey) Verify(data, sig []byte) (bool, error) {
	if len(sig) != ed25519.SignatureSize {
		return false, errors.New("crypto: bad ed25519 signature size")
	}
	return ed25519.Verify(k.pk, data, sig), nil
}

func unmarshalEd25519PublicKey(data []byte) (PubKey, error) {
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: expected ed25519 public key of size %d, got %d", ed25519.PublicKeySize, len(data))
	}
	return &Ed25519PublicKey{pk: ed25519.PublicKey(data)}, nil
}

func unmarshalEd25519PrivateKey(data []byte) (PrivKey, error) {
	switch len(data) {
	case ed25519.PrivateKeySize:
		return &Ed25519PrivateKey{sk: ed25519.PrivateKey(data)}, nil
	case ed25519.PrivateKeySize + ed25519.PublicKeySize:
		// historical go-libp2p encoding that appended the public key twice; trim it.
		return &Ed25519PrivateKey{sk: ed25519.PrivateKey(data[:ed25519.PrivateKeySize])}, nil
	default:
		return nil, fmt.Errorf("crypto: expected ed25519 private key of size %d, got %d", ed25519.PrivateKeySize, len(data))
	}
}
