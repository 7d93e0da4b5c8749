package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"io"
)

type RsaPrivateKey struct {
	sk *rsa.PrivateKey
}

type RsaPublicKey struct {
	pk *rsa.PublicKey
}

func generateRSAKeyPair(bits int, src io.Reader) (PrivKey, PubKey, error) {
	if bits < MinRSAKeyBits {
		return nil, nil, ErrRSAKeyTooSmall
	}
	if bits > MaxRSAKeyBits {
		return nil, nil, ErrRSAKeyTooBig
	}
	sk, err := rsa.GenerateKey(src, bits)
	if err != nil {
		return nil, nil, err
	}
	return &RsaPrivateKey{sk: sk}, &RsaPublicKey{pk: &sk.PublicKey}, nil
}

func (k *RsaPrivateKey) Type() KeyType { return RSA }

func (k *RsaPrivateKey) Raw() ([]byte, error) {
	return x509.MarshalPKCS1PrivateKey(k.sk), nil
}

func (k *RsaPrivateKey) Equals(other Key) bool {
	o, ok := other.(*RsaPrivateKey)
	if !ok {
		return false
	}
	return k.sk.Equal(o.sk)
}

func (k *RsaPrivateKey) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return rsa.SignPKCS1v15(rand.Reader, k.sk, crypto.SHA256, digest[:])
}

func (k *RsaPrivateKey) GetPublic() PubKey {
	return &RsaPublicKey{pk: &k.sk.PublicKey}
}

func (k *RsaPublicKey) Type() KeyType { return RSA }

func (k *RsaPublicKey) Raw() ([]byte, error) {
	return x509.MarshalPKCS1PublicKey(k.pk), nil
}

func (k *RsaPublicKey) Equals(other Key) bool {
	o, ok := other.(*RsaPublicKey)
	if !ok {
		return false
	}
	return k.pk.Equal(o.pk)
}

func (k *RsaPublicKey) Verify(data, sig []byte) (bool, error) {
	digest := sha256.Sum256(data)
	err := rsa.VerifyPKCS1v15(k.pk, crypto.SHA256, digest[:], sig)
	return err == nil, nil
}

func unmarshalRsaPrivateKey(data []byte) (PrivKey, error) {
	sk, err := x509.ParsePKCS1PrivateKey(data)
	if err != nil {
		return nil, err
	}
	if sk.N.BitLen() < MinRSAKeyBits {
		return nil, ErrRSAKeyTooSmall
	}
	if sk.N.BitLen() > MaxRSAKeyBits {
		return nil, ErrRSAKeyTooBig
	}
	return &RsaPrivateKey{sk: sk}, nil
}

func unmarshalRsaPublicKey(data []byte) (PubKey, error) {
	pk, err := x509.ParsePKCS1PublicKey(data)
	if err != nil {
		return nil, err
	}
	if pk.N.BitLen() < MinRSAKeyBits {
		return nil, ErrRSAKeyTooSmall
	}
	if pk.N.BitLen() > MaxRSAKeyBits {
		return nil, ErrRSAKeyTooBig
	}
	return &RsaPublicKey{pk: pk}, nil
}
