package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"io"
)

// ECDSA keys use the P-256 curve, per spec.md §4.2 data model.

type EcdsaPrivateKey struct {
	sk *ecdsa.PrivateKey
}

type EcdsaPublicKey struct {
	pk *ecdsa.PublicKey
}

func generateECDSAKeyPair(src io.Reader) (PrivKey, PubKey, error) {
	sk, err := ecdsa.GenerateKey(elliptic.P256(), src)
	if err != nil {
		return nil, nil, err
	}
	return &EcdsaPrivateKey{sk: sk}, &EcdsaPublicKey{pk: &sk.PublicKey}, nil
}

// Raw/Unmarshal for ECDSA private keys use PKCS#8 DER, resolving the Open
// Question in spec.md §9 to match current go-libp2p (core/crypto/ecdsa.go).
func (k *EcdsaPrivateKey) Type() KeyType { return ECDSA }

func (k *EcdsaPrivateKey) Raw() ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(k.sk)
}

func (k *EcdsaPrivateKey) Equals(other Key) bool {
	o, ok := other.(*EcdsaPrivateKey)
	if !ok {
		return false
	}
	return k.sk.Equal(o.sk)
}

func (k *EcdsaPrivateKey) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return ecdsa.SignASN1(rand.Reader, k.sk, digest[:])
}

func (k *EcdsaPrivateKey) GetPublic() PubKey {
	return &EcdsaPublicKey{pk: &k.sk.PublicKey}
}

func (k *EcdsaPublicKey) Type() KeyType { return ECDSA }

func (k *EcdsaPublicKey) Raw() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(k.pk)
}

func (k *EcdsaPublicKey) Equals(other Key) bool {
	o, ok := other.(*EcdsaPublicKey)
	if !ok {
		return false
	}
	return k.pk.Equal(o.pk)
}

func (k *EcdsaPublicKey) Verify(data, sig []byte) (bool, error) {
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(k.pk, digest[:], sig), nil
}

func unmarshalECDSAPrivateKey(data []byte) (PrivKey, error) {
	sk, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		return nil, err
	}
	esk, ok := sk.(*ecdsa.PrivateKey)
	if !ok {
		return nil, ErrBadKeyType
	}
	return &EcdsaPrivateKey{sk: esk}, nil
}

func unmarshalECDSAPublicKey(data []byte) (PubKey, error) {
	pk, err := x509.ParsePKIXPublicKey(data)
	if err != nil {
		return nil, err
	}
	epk, ok := pk.(*ecdsa.PublicKey)
	if !ok {
		return nil, ErrBadKeyType
	}
	return &EcdsaPublicKey{pk: epk}, nil
}
