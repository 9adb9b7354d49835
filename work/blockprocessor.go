package work

import (
	"context"
	"errors"

	"github.com/kma-coin/kmacoin/blocktree"
	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/node"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/p2p"
	"github.com/kma-coin/kmacoin/wire"
)

// BlockProcessor drains n.BlockQueue: validating freshly received blocks,
// queuing orphans for BranchBuilder to retry, answering sync requests
// from peers, and forwarding successfully-added blocks to
// n.ValidObjectQueue for Broadcaster to relay onward. Mirrors
// `atnode/workers/blockprocessor.py`.
func BlockProcessor(ctx context.Context, n *node.Node) {
	for {
		item, ok := n.BlockQueue.Get()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		env := item.(*p2p.Envelope)
		switch env.Type {
		case wire.MsgBlock:
			handleNewBlock(n, env)
		case wire.MsgReqBlocks:
			handleReqBlocks(n, env)
		case wire.MsgBlocks:
			handleBlockList(n, env)
		default:
			wlog.Debug("block processor ignoring message", "type", int(env.Type))
		}
	}
}

func handleNewBlock(n *node.Node, env *p2p.Envelope) {
	blk, ok := env.Payload.(*objects.Block)
	if !ok {
		return
	}
	next, err := n.AddBlock(blk)
	if err != nil {
		if errors.Is(err, blocktree.ErrUnknownParent) {
			n.OrphanQueue.Put(&p2p.Envelope{Type: wire.MsgBlock, From: env.From, Payload: blk})
		} else {
			wlog.Debug("rejecting invalid block", "err", err.Error())
		}
		return
	}
	if err := node.StoreBlock(n.Config, next.Height, blk); err != nil {
		wlog.Warn("persisting received block failed", "id", blk.ID().Hex(), "err", err.Error())
	}
	n.ValidObjectQueue.Put(&p2p.Envelope{Type: wire.MsgBlock, From: env.From, Payload: blk})
}

func handleReqBlocks(n *node.Node, env *p2p.Envelope) {
	after, ok := env.Payload.(common.Hash)
	if !ok {
		return
	}
	startState, found := n.GetState(after)
	if !found {
		return
	}

	entries, err := node.LoadResumeIndex(n.Config)
	if err != nil {
		wlog.Warn("loading resume index for sync reply failed", "err", err.Error())
		return
	}

	var blocks []*objects.Block
	for _, e := range entries {
		if e.Height <= startState.Height {
			continue
		}
		blk, err := node.LoadBlock(n.Config, e.ID)
		if err != nil {
			wlog.Warn("loading stored block for sync reply failed", "id", e.ID.Hex(), "err", err.Error())
			break
		}
		blocks = append(blocks, blk)
		if len(blocks) >= wire.MaxBlocksPerReply {
			break
		}
	}
	env.From.Send(wire.MsgBlocks, wire.EncodeBlockList(nil, blocks))
}

func handleBlockList(n *node.Node, env *p2p.Envelope) {
	blocks, ok := env.Payload.([]*objects.Block)
	if !ok {
		return
	}
	for _, blk := range blocks {
		next, err := n.AddBlock(blk)
		if err != nil {
			if errors.Is(err, blocktree.ErrUnknownParent) {
				n.OrphanQueue.Put(&p2p.Envelope{Type: wire.MsgBlock, From: env.From, Payload: blk})
			}
			continue
		}
		if err := node.StoreBlock(n.Config, next.Height, blk); err != nil {
			wlog.Warn("persisting synced block failed", "id", blk.ID().Hex(), "err", err.Error())
		}
		n.ValidObjectQueue.Put(&p2p.Envelope{Type: wire.MsgBlock, From: env.From, Payload: blk})
	}
}
