package node

import (
	"testing"

	"github.com/kma-coin/kmacoin/crypto"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock(t *testing.T) *objects.Block {
	t.Helper()
	_, pub, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := &objects.Transaction{Outputs: []*objects.Coin{{Value: 10, Owner: crypto.PublicKeyToBytes(pub)}}}
	return &objects.Block{
		PrevID:       crypto.Hash([]byte("prev")),
		Timestamp:    123,
		Transactions: []*objects.Transaction{tx},
	}
}

func TestStoreAndLoadBlockRoundTrip(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir()}
	blk := testBlock(t)

	require.NoError(t, StoreBlock(cfg, 1, blk))

	loaded, err := LoadBlock(cfg, blk.ID())
	require.NoError(t, err)
	assert.Equal(t, blk.ID(), loaded.ID())
}

func TestResumeIndexAccumulatesAcrossStores(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir()}
	a := testBlock(t)
	b := testBlock(t)

	require.NoError(t, StoreBlock(cfg, 1, a))
	require.NoError(t, StoreBlock(cfg, 2, b))

	entries, err := LoadResumeIndex(cfg)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Height)
	assert.Equal(t, a.ID(), entries[0].ID)
	assert.Equal(t, 2, entries[1].Height)
	assert.Equal(t, b.ID(), entries[1].ID)
}

func TestLoadResumeIndexEmptyWhenNoData(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir()}
	entries, err := LoadResumeIndex(cfg)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
