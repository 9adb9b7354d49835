package work

import (
	"context"

	"github.com/kma-coin/kmacoin/node"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/p2p"
	"github.com/kma-coin/kmacoin/wire"
)

// maxAncestorWalk bounds how many REQ_BLOCK hops BranchBuilder will make
// pulling ancestors backward for a single orphan, guarding against an
// unbounded walk if a confused peer keeps citing unknown parents.
const maxAncestorWalk = 64

// BranchBuilder drains n.OrphanQueue, resolving each orphan by walking
// backward through its originating peer: REQ_BLOCK pulls the missing
// parent, and if that parent is itself unknown, REQ_BLOCK pulls its
// parent in turn, until the chain reaches a block the tree already knows
// or the peer connection breaks. Once the walk bottoms out, every pulled
// block is replayed forward onto the tree in order. Mirrors
// `atnode/workers/branchbuilder.py`'s orphan resolution, adapted to
// actively pull the missing ancestor rather than wait for it to arrive
// unprompted.
func BranchBuilder(ctx context.Context, n *node.Node) {
	for {
		item, ok := n.OrphanQueue.Get()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		env := item.(*p2p.Envelope)
		blk, ok := env.Payload.(*objects.Block)
		if !ok {
			continue
		}
		resolveOrphan(n, env.From, blk)
	}
}

// resolveOrphan attaches blk, pulling ancestors from origin one at a time
// as each newly revealed parent turns out to be unknown too. A broken
// link — origin gone, or a REQ_BLOCK that comes back empty — drops the
// whole chain; nothing in it has been added to the tree yet.
func resolveOrphan(n *node.Node, origin node.PeerHandle, blk *objects.Block) {
	chain := []*objects.Block{blk}
	cur := blk
	for i := 0; i < maxAncestorWalk && !n.Tree.Has(cur.PrevID); i++ {
		if origin == nil {
			wlog.Debug("orphan has no originating peer to pull its parent from", "id", cur.ID().Hex())
			return
		}
		parent, err := origin.RequestBlock(cur.PrevID)
		if err != nil || parent == nil {
			wlog.Debug("ancestor pull failed, dropping orphan chain", "id", cur.ID().Hex())
			return
		}
		chain = append(chain, parent)
		cur = parent
	}

	for i := len(chain) - 1; i >= 0; i-- {
		next, err := n.AddBlock(chain[i])
		if err != nil {
			wlog.Debug("rejecting pulled ancestor", "id", chain[i].ID().Hex(), "err", err.Error())
			return
		}
		if err := node.StoreBlock(n.Config, next.Height, chain[i]); err != nil {
			wlog.Warn("persisting pulled ancestor failed", "id", chain[i].ID().Hex(), "err", err.Error())
		}
		n.ValidObjectQueue.Put(&p2p.Envelope{Type: wire.MsgBlock, From: origin, Payload: chain[i]})
	}
}
