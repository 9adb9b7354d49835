// Package pool implements the small bounded dedup caches node workers use
// to avoid reprocessing or rebroadcasting the same object twice: seen
// transaction IDs, seen block IDs, recently contacted addresses and
// issued tokens, mirroring `atnode/structures/pool.py`'s RecentSet.
package pool

import (
	"container/list"
	"sync"

	"github.com/kma-coin/kmacoin/common"
)

// RecentSet is a fixed-capacity FIFO set: once full, adding a new member
// evicts the oldest. Membership tests and inserts are O(1).
type RecentSet struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[common.Hash]*list.Element
}

// NewRecentSet returns an empty RecentSet holding at most capacity
// members.
func NewRecentSet(capacity int) *RecentSet {
	return &RecentSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[common.Hash]*list.Element),
	}
}

// Contains reports whether id is currently tracked.
func (r *RecentSet) Contains(id common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[id]
	return ok
}

// Add inserts id if not already present, evicting the oldest member if
// the set is at capacity. Returns true if id was newly added, false if it
// was already a member (the caller's usual cue to drop a duplicate
// object instead of reprocessing it).
func (r *RecentSet) Add(id common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[id]; ok {
		return false
	}
	if r.capacity > 0 && r.order.Len() >= r.capacity {
		oldest := r.order.Front()
		if oldest != nil {
			r.order.Remove(oldest)
			delete(r.index, oldest.Value.(common.Hash))
		}
	}
	elem := r.order.PushBack(id)
	r.index[id] = elem
	return true
}

// Len reports the number of tracked members.
func (r *RecentSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
