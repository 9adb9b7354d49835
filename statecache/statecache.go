// Package statecache wraps hashicorp/golang-lru to cache recently derived
// ExtendedStates by block ID, the way the teacher's `common/cache.go`
// wraps the same library for its own recency caches. Node.AddBlock fills
// it, and Node.GetState consults it before falling back to the block
// tree's own per-branch state.
package statecache

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/state"
)

// DefaultCapacity is the number of ExtendedStates retained at once,
// matching the original reference's STATE_CACHE_SIZE.
const DefaultCapacity = 5

// StateCache is an LRU cache from block ID to the ExtendedState resulting
// from having applied that block.
type StateCache struct {
	lru *lru.Cache
}

// New returns a StateCache holding at most capacity entries.
func New(capacity int) *StateCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New(capacity)
	if err != nil {
		// Only returns an error for a non-positive size, already guarded above.
		panic(err)
	}
	return &StateCache{lru: c}
}

// Get returns the cached ExtendedState for id, if present.
func (sc *StateCache) Get(id common.Hash) (*state.ExtendedState, bool) {
	v, ok := sc.lru.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*state.ExtendedState), true
}

// Add inserts or refreshes the cached entry for id.
func (sc *StateCache) Add(id common.Hash, st *state.ExtendedState) {
	sc.lru.Add(id, st)
}

// Remove evicts id, if present.
func (sc *StateCache) Remove(id common.Hash) {
	sc.lru.Remove(id)
}

// Len reports the number of entries currently cached.
func (sc *StateCache) Len() int {
	return sc.lru.Len()
}
