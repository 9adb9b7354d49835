package work

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/crypto"
	"github.com/kma-coin/kmacoin/node"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/p2p"
	"github.com/kma-coin/kmacoin/state"
	"github.com/kma-coin/kmacoin/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer stands in for a p2p.PeerLink in tests: it answers RequestBlock
// from a fixed table and records every id asked for, without opening any
// socket.
type fakePeer struct {
	addr   wire.Address
	blocks map[common.Hash]*objects.Block
	calls  []common.Hash
}

func (f *fakePeer) Send(wire.MsgType, []byte)                         {}
func (f *fakePeer) Inform(wire.MsgType, []byte, wire.MsgType, []byte) {}
func (f *fakePeer) PeerAddress() wire.Address                         { return f.addr }

func (f *fakePeer) RequestBlock(id common.Hash) (*objects.Block, error) {
	f.calls = append(f.calls, id)
	blk, ok := f.blocks[id]
	if !ok {
		return nil, errors.New("fakePeer: no such block")
	}
	return blk, nil
}

func newTestNode(t *testing.T) *node.Node {
	t.Helper()
	priv, _, err := crypto.GenerateKey()
	require.NoError(t, err)
	cfg := &node.Config{DataDir: t.TempDir(), MinPeers: 1, MaxPeers: 4}
	return node.New(cfg, priv)
}

func mineBlockLocal(t *testing.T, es *state.ExtendedState, owner []byte) *objects.Block {
	t.Helper()
	tx := &objects.Transaction{Outputs: []*objects.Coin{{Value: es.Reward, Owner: owner}}}
	for nonce := uint64(0); nonce < 1<<20; nonce++ {
		blk := &objects.Block{
			PrevID:       es.TipID,
			Timestamp:    es.TipTimestamp + 1,
			Nonce:        nonce,
			Transactions: []*objects.Transaction{tx},
		}
		if blk.MeetsThreshold(es.Threshold) {
			return blk
		}
	}
	t.Fatal("failed to find a qualifying nonce in test bound")
	return nil
}

// buildOrphanChain mines length blocks atop n's current tip without
// attaching any of them to n's tree, simulating each step's resulting
// state locally so the next block in the chain validates against it.
func buildOrphanChain(t *testing.T, n *node.Node, owner []byte, length int) []*objects.Block {
	t.Helper()
	es := n.GetLatestState()
	blocks := make([]*objects.Block, 0, length)
	for i := 0; i < length; i++ {
		blk := mineBlockLocal(t, es, owner)
		next, err := es.ProcessBlock(blk)
		require.NoError(t, err)
		es = next
		blocks = append(blocks, blk)
	}
	return blocks
}

func waitForValidObject(t *testing.T, n *node.Node, wantID common.Hash) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		item, ok := n.ValidObjectQueue.TryGet()
		if ok {
			env := item.(*p2p.Envelope)
			if blk, ok := env.Payload.(*objects.Block); ok && blk.ID() == wantID {
				return
			}
			continue
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for block %s on the valid object queue", wantID.Hex())
}

func TestBranchBuilderPullsSingleMissingParent(t *testing.T) {
	n := newTestNode(t)
	_, pub, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PublicKeyToBytes(pub)

	chain := buildOrphanChain(t, n, owner, 2)
	parent, child := chain[0], chain[1]

	peer := &fakePeer{blocks: map[common.Hash]*objects.Block{parent.ID(): parent}}
	n.OrphanQueue.Put(&p2p.Envelope{Type: wire.MsgBlock, From: peer, Payload: child})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go BranchBuilder(ctx, n)

	waitForValidObject(t, n, child.ID())
	assert.Equal(t, []common.Hash{parent.ID()}, peer.calls)

	_, ok := n.GetState(parent.ID())
	assert.True(t, ok)
	_, ok = n.GetState(child.ID())
	assert.True(t, ok)
}

func TestBranchBuilderWalksMultipleAncestors(t *testing.T) {
	n := newTestNode(t)
	_, pub, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PublicKeyToBytes(pub)

	chain := buildOrphanChain(t, n, owner, 3)
	grandparent, parent, child := chain[0], chain[1], chain[2]

	peer := &fakePeer{blocks: map[common.Hash]*objects.Block{
		parent.ID():      parent,
		grandparent.ID(): grandparent,
	}}
	n.OrphanQueue.Put(&p2p.Envelope{Type: wire.MsgBlock, From: peer, Payload: child})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go BranchBuilder(ctx, n)

	waitForValidObject(t, n, child.ID())

	_, ok := n.GetState(grandparent.ID())
	assert.True(t, ok)
	_, ok = n.GetState(parent.ID())
	assert.True(t, ok)
	_, ok = n.GetState(child.ID())
	assert.True(t, ok)
}

func TestBranchBuilderDropsChainOnBrokenLink(t *testing.T) {
	n := newTestNode(t)
	_, pub, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PublicKeyToBytes(pub)

	chain := buildOrphanChain(t, n, owner, 2)
	child := chain[1]

	peer := &fakePeer{blocks: map[common.Hash]*objects.Block{}}
	n.OrphanQueue.Put(&p2p.Envelope{Type: wire.MsgBlock, From: peer, Payload: child})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go BranchBuilder(ctx, n)

	time.Sleep(100 * time.Millisecond)
	_, ok := n.GetState(child.ID())
	assert.False(t, ok, "an orphan whose ancestor pull fails must not be attached")
}

func TestBranchBuilderDropsOrphanWithNoOrigin(t *testing.T) {
	n := newTestNode(t)
	_, pub, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PublicKeyToBytes(pub)

	chain := buildOrphanChain(t, n, owner, 2)
	child := chain[1]

	n.OrphanQueue.Put(&p2p.Envelope{Type: wire.MsgBlock, From: nil, Payload: child})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go BranchBuilder(ctx, n)

	time.Sleep(100 * time.Millisecond)
	_, ok := n.GetState(child.ID())
	assert.False(t, ok, "an orphan with no originating peer has nowhere to pull its parent from")
}
