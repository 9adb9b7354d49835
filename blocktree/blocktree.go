// Package blocktree maintains every known chain branch rooted at genesis,
// mirroring the original reference's `atnode/structures/blocktree.py`:
// a tree of BlockBranch nodes, each carrying the ExtendedState that
// results from applying its block, with an address index for O(depth)
// lookup by block ID and a longest-chain rule that swaps the active tip
// whenever a heavier branch appears.
package blocktree

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/state"
)

// ErrUnknownParent is returned by AddBlock when no branch for the
// block's PrevID is known yet — an orphan a BranchBuilder should retry
// once its parent arrives.
var ErrUnknownParent = errors.New("blocktree: unknown parent block")

// BlockBranch is one node in the tree: the block ID it represents (or
// common.NullHash for the genesis sentinel), the ledger state that
// results from having applied every block from genesis to here, and its
// known children.
type BlockBranch struct {
	ID       common.Hash
	State    *state.ExtendedState
	Children []*BlockBranch
}

// BlockTree tracks every branch built from blocks received so far and the
// address (child-index path from genesis) of the current longest chain.
type BlockTree struct {
	mu        sync.RWMutex
	root      *BlockBranch
	addresses map[common.Hash][]int
	tipPath   []int
}

// New returns a BlockTree rooted at genesis.
func New(genesis *state.ExtendedState) *BlockTree {
	root := &BlockBranch{ID: common.NullHash, State: genesis}
	return &BlockTree{
		root:      root,
		addresses: map[common.Hash][]int{common.NullHash: {}},
		tipPath:   []int{},
	}
}

// branchAt walks path from root and returns the branch it names.
func (bt *BlockTree) branchAt(path []int) *BlockBranch {
	b := bt.root
	for _, idx := range path {
		b = b.Children[idx]
	}
	return b
}

// GetPath returns the address of the branch representing id, if known.
func (bt *BlockTree) GetPath(id common.Hash) ([]int, bool) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	p, ok := bt.addresses[id]
	if !ok {
		return nil, false
	}
	return append([]int(nil), p...), true
}

// Head returns the branch at the current longest-chain tip.
func (bt *BlockTree) Head() *BlockBranch {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return bt.branchAt(bt.tipPath)
}

// TipState returns the ExtendedState at the current longest-chain tip,
// the state every new block is validated against by default.
func (bt *BlockTree) TipState() *state.ExtendedState {
	return bt.Head().State
}

// Has reports whether a branch for the given block ID is already known.
func (bt *BlockTree) Has(id common.Hash) bool {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	_, ok := bt.addresses[id]
	return ok
}

// AddBlock attaches block as a child of the branch named by block.PrevID,
// validating it against that parent's state. If the resulting branch is
// now longer than the current tip, the tip swaps to it (a reorg), mirroring
// the original reference's branch-swap rule: ties keep the existing tip.
//
// Returns the new branch's resulting ExtendedState, or an error if the
// parent is unknown or the block fails validation.
func (bt *BlockTree) AddBlock(block *objects.Block) (*state.ExtendedState, error) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	parentPath, ok := bt.addresses[block.PrevID]
	if !ok {
		return nil, ErrUnknownParent
	}
	parent := bt.branchAt(parentPath)

	id := block.ID()
	if _, exists := bt.addresses[id]; exists {
		return nil, fmt.Errorf("blocktree: block %s already known", id)
	}

	next, err := parent.State.ProcessBlock(block)
	if err != nil {
		return nil, err
	}

	branch := &BlockBranch{ID: id, State: next}
	parent.Children = append(parent.Children, branch)
	childPath := append(append([]int(nil), parentPath...), len(parent.Children)-1)
	bt.addresses[id] = childPath

	if next.Height > bt.branchAt(bt.tipPath).State.Height {
		bt.tipPath = childPath
	}
	return next, nil
}

// Traverse walks every branch in the tree depth-first, calling fn with
// each branch's ID and resulting state. Used by persistence and debug
// tooling to walk the full known chain set, not just the active tip.
func (bt *BlockTree) Traverse(fn func(id common.Hash, st *state.ExtendedState)) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	var walk func(b *BlockBranch)
	walk = func(b *BlockBranch) {
		fn(b.ID, b.State)
		for _, c := range b.Children {
			walk(c)
		}
	}
	walk(bt.root)
}

// StateAt returns the ExtendedState resulting from the block with the
// given ID, if that block is known anywhere in the tree (not only on the
// active tip).
func (bt *BlockTree) StateAt(id common.Hash) (*state.ExtendedState, bool) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	path, ok := bt.addresses[id]
	if !ok {
		return nil, false
	}
	return bt.branchAt(path).State, true
}

// Height reports the depth of the current longest chain.
func (bt *BlockTree) Height() int {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return bt.branchAt(bt.tipPath).State.Height
}
