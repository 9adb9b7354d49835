package node

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureNameFillsBlank(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.EnsureName())
	assert.NotEmpty(t, cfg.Name)
}

func TestEnsureNamePreservesExisting(t *testing.T) {
	cfg := Config{Name: "miner-1"}
	require.NoError(t, cfg.EnsureName())
	assert.Equal(t, "miner-1", cfg.Name)
}

func TestDumpAndLoadConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kmacoin.toml")
	cfg := DefaultConfig
	cfg.Name = "node-a"
	cfg.ListenAddr = ":40000"
	cfg.MinerModule = "lazy"
	cfg.InitialPeers = []string{"10.0.0.1:30900", "10.0.0.2:30900"}

	require.NoError(t, DumpConfig(path, &cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, loaded.Name)
	assert.Equal(t, cfg.ListenAddr, loaded.ListenAddr)
	assert.Equal(t, cfg.MinerModule, loaded.MinerModule)
	assert.Equal(t, cfg.InitialPeers, loaded.InitialPeers)
}

func TestBlockDirAndKeystoreDirNestUnderDataDir(t *testing.T) {
	cfg := Config{DataDir: "/tmp/kma"}
	assert.Equal(t, "/tmp/kma/blocks", cfg.BlockDir())
	assert.Equal(t, "/tmp/kma/keystore", cfg.KeystoreDir())
}
