package work

import (
	"context"
	"sync"
	"time"

	"github.com/kma-coin/kmacoin/crypto"
	"github.com/kma-coin/kmacoin/node"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/p2p"
	"github.com/kma-coin/kmacoin/state"
	"github.com/kma-coin/kmacoin/wire"
)

// Miner produces candidate blocks against a given ExtendedState. Mine
// should return promptly (within a bounded number of hash attempts) so
// the mining loop can refresh against a new tip if one arrives mid-search,
// the same cadence `atnode/workers/miners/lazyminer.py`'s bounded-attempt
// loop gives the original reference.
type Miner interface {
	Name() string
	Mine(st *state.ExtendedState, txs []*objects.Transaction) (*objects.Block, bool)
}

// Factory builds a fresh Miner parameterized by hashRate, the hashes/sec
// a node's MinerModule config should target.
type Factory func(hashRate int) Miner

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// RegisterMinerFactory adds a named Miner constructor to the pluggable
// registry, so a node config can select among several mining strategies
// (reference lazy miner, a GPU-backed one, a test stub) by name rather
// than the launcher hardcoding a single implementation.
func RegisterMinerFactory(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// NewMiner constructs a previously registered Miner by name, paced at
// hashRate hashes/second.
func NewMiner(name string, hashRate int) (Miner, bool) {
	registryMu.Lock()
	f, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, false
	}
	return f(hashRate), true
}

func init() {
	RegisterMinerFactory("lazy", func(hashRate int) Miner {
		return &LazyMiner{AttemptsPerRound: 1 << 18, HashRate: hashRate}
	})
}

// LazyMiner is the reference mining strategy: scan nonces sequentially up
// to AttemptsPerRound, giving up (returning ok=false) if none qualifies
// so the caller can refresh state and try again. Mirrors
// `atnode/workers/miners/lazyminer.py`'s bounded scan.
//
// HashRate, if positive, paces the scan to roughly that many attempts per
// second via an adaptive sleep: each attempt's budget is
// 1/HashRate seconds, and any time the previous attempt ran under budget
// is added to the next sleep, the same feedback loop the reference miner
// uses so a slow machine doesn't silently mine faster than its configured
// rate (or a fast one, slower).
type LazyMiner struct {
	AttemptsPerRound uint64
	HashRate         int
}

func (m *LazyMiner) Name() string { return "lazy" }

func (m *LazyMiner) Mine(st *state.ExtendedState, txs []*objects.Transaction) (*objects.Block, bool) {
	ts := time.Now().Unix()
	var budget time.Duration
	if m.HashRate > 0 {
		budget = time.Second / time.Duration(m.HashRate)
	}
	var sleep time.Duration
	for nonce := uint64(0); nonce < m.AttemptsPerRound; nonce++ {
		attemptStart := time.Now()
		blk := &objects.Block{
			PrevID:       st.TipID,
			Timestamp:    ts,
			Nonce:        nonce,
			Transactions: txs,
		}
		if blk.MeetsThreshold(st.Threshold) {
			return blk, true
		}
		if budget > 0 {
			if sleep > 0 {
				time.Sleep(sleep)
			}
			actual := time.Since(attemptStart)
			sleep += budget - actual
			if sleep < 0 {
				sleep = 0
			}
		}
	}
	return nil, false
}

// Mine runs the node's configured miner (LazyMiner by default) in a loop:
// each round it drains any pending transactions off n.TxQueue into the
// candidate block, attempts to mine against the current tip, and on
// success feeds the result through the same path a received block would
// take (AddBlock, then broadcast), so a locally mined block and a
// network-received one are indistinguishable downstream. Mirrors
// `atnode/workers/miners` driving loop in the original reference's
// NodeLauncher.
func Mine(ctx context.Context, n *node.Node, m Miner) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tip := n.GetLatestState()
		accepted, totalFees := packTransactions(n, tip)
		reward := buildReward(n, tip.Reward+totalFees)
		txs := append([]*objects.Transaction{reward}, accepted...)

		found, ok := m.Mine(tip, txs)
		if !ok {
			requeuePending(n, accepted)
			continue
		}

		next, err := n.AddBlock(found)
		if err != nil {
			wlog.Debug("locally mined block rejected", "err", err.Error())
			requeuePending(n, accepted)
			continue
		}
		if err := node.StoreBlock(n.Config, next.Height, found); err != nil {
			wlog.Warn("persisting mined block failed", "id", found.ID().Hex(), "err", err.Error())
		}
		wlog.Info("mined block", "id", found.ID().Hex(), "height", next.Height)
		n.ValidObjectQueue.Put(&p2p.Envelope{Type: wire.MsgBlock, Payload: found})
	}
}

// buildReward returns the finalized reward transaction paying total
// (the base reward plus every packed transaction's fee) to the node's
// own key.
func buildReward(n *node.Node, total uint64) *objects.Transaction {
	return &objects.Transaction{
		Outputs: []*objects.Coin{
			{Value: total, Owner: crypto.PublicKeyToBytes(n.PubKey)},
		},
	}
}

// packTransactions drains n.TxQueue non-blockingly, tentatively applying
// each transaction against tip's ledger to confirm it is still spendable
// and collect its fee, up to objects.MaxTransactions - 1 (leaving room
// for the reward transaction itself). Transactions that no longer apply
// (a double-spend against something already mined, say) are silently
// dropped rather than requeued, mirroring the reference miner's
// `process_transaction` discard-on-failure behavior.
func packTransactions(n *node.Node, tip *state.ExtendedState) ([]*objects.Transaction, uint64) {
	ledger := tip.Ledger
	var accepted []*objects.Transaction
	var totalFees uint64
	for len(accepted) < objects.MaxTransactions-1 {
		item, ok := n.TxQueue.TryGet()
		if !ok {
			break
		}
		env, ok := item.(*p2p.Envelope)
		if !ok {
			continue
		}
		tx, ok := env.Payload.(*objects.Transaction)
		if !ok {
			continue
		}
		next, fee, err := ledger.ProcessTransactionFee(tx, true)
		if err != nil {
			continue
		}
		ledger = next
		totalFees += uint64(fee)
		accepted = append(accepted, tx)
	}
	return accepted, totalFees
}

// requeuePending puts transactions a failed mining attempt picked up back
// onto the queue so the next round can retry them, the same "aborted
// non-reward transactions" recovery the reference miner performs when its
// in-progress block is discarded.
func requeuePending(n *node.Node, txs []*objects.Transaction) {
	for _, tx := range txs {
		n.TxQueue.Put(&p2p.Envelope{Type: wire.MsgTransaction, Payload: tx})
	}
}
