package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	for _, typ := range []KeyType{RSA, Ed25519, Secp256k1, ECDSA} {
		typ := typ
		t.Run(typ.String(), func(t *testing.T) {
			bits := 0
			if typ == RSA {
				bits = MinRSAKeyBits
			}
			sk, pk, err := GenerateKeyPair(typ, bits)
			require.NoError(t, err)

			msg := []byte("hello libp2p!")
			sig, err := sk.Sign(msg)
			require.NoError(t, err)

			ok, err := pk.Verify(msg, sig)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = pk.Verify([]byte("tampered"), sig)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestKeyMarshalRoundTrip(t *testing.T) {
	for _, typ := range []KeyType{RSA, Ed25519, Secp256k1, ECDSA} {
		typ := typ
		t.Run(typ.String(), func(t *testing.T) {
			bits := 0
			if typ == RSA {
				bits = MinRSAKeyBits
			}
			sk, pk, err := GenerateKeyPair(typ, bits)
			require.NoError(t, err)

			skBytes, err := MarshalPrivateKey(sk)
			require.NoError(t, err)
			sk2, err := UnmarshalPrivateKey(skBytes)
			require.NoError(t, err)
			require.True(t, sk.Equals(sk2))

			pkBytes, err := MarshalPublicKey(pk)
			require.NoError(t, err)
			pk2, err := UnmarshalPublicKey(pkBytes)
			require.NoError(t, err)
			require.True(t, pk.Equals(pk2))
		})
	}
}

func TestRSAKeySizeBounds(t *testing.T) {
	_, _, err := GenerateKeyPair(RSA, 1024)
	require.ErrorIs(t, err, ErrRSAKeyTooSmall)

	_, _, err = GenerateKeyPair(RSA, 16384)
	require.ErrorIs(t, err, ErrRSAKeyTooBig)
}
