package node

import (
	"path/filepath"
	"testing"

	"github.com/kma-coin/kmacoin/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeystoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.key")

	priv, pub, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, SaveKeystore(path, "hunter2", priv))

	loaded, err := LoadKeystore(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, crypto.PublicKeyToBytes(pub), crypto.PublicKeyToBytes(loaded.Public()))
}

func TestKeystoreRejectsWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.key")

	priv, _, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, SaveKeystore(path, "correct", priv))

	_, err = LoadKeystore(path, "wrong")
	assert.Error(t, err)
}

func TestLoadOrCreateKeystoreCreatesOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.key")

	first, err := LoadOrCreateKeystore(path, "pass")
	require.NoError(t, err)

	second, err := LoadOrCreateKeystore(path, "pass")
	require.NoError(t, err)
	assert.Equal(t, crypto.PrivateKeyToBytes(first), crypto.PrivateKeyToBytes(second))
}
