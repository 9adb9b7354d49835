package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKey()
	require.NoError(t, err)

	data := []byte("transfer 10 KMAC")
	sig, err := Sign(priv, data)
	require.NoError(t, err)
	assert.Len(t, sig, SignatureSize)
	assert.True(t, Verify(pub, sig, data))
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	priv, pub, err := GenerateKey()
	require.NoError(t, err)

	sig, err := Sign(priv, []byte("original"))
	require.NoError(t, err)
	assert.False(t, Verify(pub, sig, []byte("tampered")))
}

func TestKeySerializationRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKey()
	require.NoError(t, err)

	privB := PrivateKeyToBytes(priv)
	pubB := PublicKeyToBytes(pub)
	assert.Len(t, privB, PrivateKeySize)
	assert.Len(t, pubB, PublicKeySize)

	priv2, err := BytesToPrivateKey(privB)
	require.NoError(t, err)
	pub2, err := BytesToPublicKey(pubB)
	require.NoError(t, err)

	sig, err := Sign(priv2, []byte("x"))
	require.NoError(t, err)
	assert.True(t, Verify(pub2, sig, []byte("x")))
	assert.Equal(t, pubB, PublicKeyToBytes(priv.Public()))
	_ = pub2
}

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("abc"))
	b := Hash([]byte("abc"))
	assert.Equal(t, a, b)
	c := Hash([]byte("abd"))
	assert.NotEqual(t, a, c)
}
