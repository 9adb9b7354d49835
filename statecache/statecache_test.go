package statecache

import (
	"testing"

	"github.com/kma-coin/kmacoin/crypto"
	"github.com/kma-coin/kmacoin/state"
	"github.com/stretchr/testify/assert"
)

func TestStateCacheAddGet(t *testing.T) {
	sc := New(2)
	id := crypto.Hash([]byte("block-1"))
	es := state.Genesis()

	_, ok := sc.Get(id)
	assert.False(t, ok)

	sc.Add(id, es)
	got, ok := sc.Get(id)
	assert.True(t, ok)
	assert.Same(t, es, got)
}

func TestStateCacheEvictsAtCapacity(t *testing.T) {
	sc := New(1)
	id1 := crypto.Hash([]byte("block-1"))
	id2 := crypto.Hash([]byte("block-2"))

	sc.Add(id1, state.Genesis())
	sc.Add(id2, state.Genesis())

	_, ok := sc.Get(id1)
	assert.False(t, ok)
	_, ok = sc.Get(id2)
	assert.True(t, ok)
	assert.Equal(t, 1, sc.Len())
}
