package state

import (
	"math/big"
	"time"

	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/params"
)

// ExtendedState pairs a UTXO State with the chain-tip bookkeeping needed
// to validate the next block: which block it follows, the current
// proof-of-work threshold, and the current mining reward. It is the unit
// of work a BlockTree branch carries forward one block at a time,
// mirroring the original reference's `objects/xstate.py`.
type ExtendedState struct {
	Ledger       *State
	Height       int
	TipID        common.Hash
	TipTimestamp int64
	Threshold    common.Hash
	Reward       uint64

	// LastThresholdUpdate is the timestamp of the block that most
	// recently triggered a retarget, the baseline ProcessBlock measures
	// the observed inter-block interval against.
	LastThresholdUpdate int64
}

// Genesis returns the extended state a fresh node starts from: an empty
// ledger, height zero, the initial threshold and reward from params.
func Genesis() *ExtendedState {
	return &ExtendedState{
		Ledger:              NewState(),
		Height:              0,
		TipID:               common.NullHash,
		TipTimestamp:        0,
		Threshold:           params.InitThreshold,
		Reward:              params.InitReward,
		LastThresholdUpdate: 0,
	}
}

// Clone returns a copy of es safe to advance independently, since Ledger
// itself is copy-on-write at the State layer.
func (es *ExtendedState) Clone() *ExtendedState {
	cp := *es
	return &cp
}

// ProcessBlock validates block against es and, if valid, returns the
// resulting ExtendedState. On any validation failure the ledger is left
// exactly as es found it (every mutation happens against a clone, never
// es.Ledger itself), mirroring the original reference's
// snapshot-then-restore discipline in `objects/xstate.py`.
//
// block.Transactions[0] is treated as the reward transaction: it must
// carry no inputs, and its total output must equal es.Reward plus the
// sum of every other transaction's fee (input value minus output value).
// Every subsequent transaction is processed with balance checking
// enabled, so none may spend more than it provides.
func (es *ExtendedState) ProcessBlock(block *objects.Block) (*ExtendedState, error) {
	if block.PrevID != es.TipID {
		return nil, ErrInvalidPrevID
	}
	if block.Timestamp < es.TipTimestamp {
		return nil, ErrInvalidTimestamp
	}
	if block.Timestamp > time.Now().Unix() {
		return nil, ErrInvalidTimestamp
	}
	if !block.MeetsThreshold(es.Threshold) {
		return nil, ErrInvalidPoW
	}
	if len(block.Transactions) > objects.MaxTransactions {
		return nil, ErrInvalidTxCount
	}

	ledger := es.Ledger
	var totalFees int64
	if len(block.Transactions) > 0 {
		reward := block.Transactions[0]
		if len(reward.Inputs) != 0 {
			return nil, ErrInvalidReward
		}
		next, _, err := ledger.ProcessTransactionFee(reward, false)
		if err != nil {
			return nil, &TxError{Index: 0, Err: err}
		}
		ledger = next

		for i, tx := range block.Transactions[1:] {
			var fee int64
			var err error
			ledger, fee, err = ledger.ProcessTransactionFee(tx, true)
			if err != nil {
				return nil, &TxError{Index: i + 1, Err: err}
			}
			totalFees += fee
		}

		if reward.TotalOutput() != es.Reward+uint64(totalFees) {
			return nil, ErrUnbalancedReward
		}
	}

	next := es.Clone()
	next.Ledger = ledger
	next.Height = es.Height + 1
	next.TipID = block.ID()
	next.TipTimestamp = block.Timestamp
	next.Reward = rewardAt(next.Height)
	next.Threshold = es.Threshold
	next.LastThresholdUpdate = es.LastThresholdUpdate
	switch {
	case next.Height == 1:
		next.LastThresholdUpdate = block.Timestamp
	case next.Height%params.ThresholdUpdateInterval == 1:
		observed := block.Timestamp - es.LastThresholdUpdate
		next.Threshold = retarget(es.Threshold, observed)
		next.LastThresholdUpdate = block.Timestamp
	}
	return next, nil
}

// rewardAt returns the mining reward for the block at the given height,
// halving every RewardUpdateInterval blocks. Reward never drops below
// zero since integer division floors at 0 once halved past InitReward's
// precision.
func rewardAt(height int) uint64 {
	halvings := height / params.RewardUpdateInterval
	reward := uint64(params.InitReward)
	for i := 0; i < halvings && reward > 0; i++ {
		reward /= 2
	}
	return reward
}

// retarget scales current by observed/expected, where expected is the
// number of seconds ThresholdUpdateInterval blocks should have taken at
// BlockInterval seconds apart. A longer-than-expected observed interval
// (mining was too slow) raises the threshold, making the next interval
// easier; a shorter one lowers it. observed is clamped to at least one
// second so a pathological same-second run of blocks can't zero the
// threshold out.
func retarget(current common.Hash, observed int64) common.Hash {
	if observed < 1 {
		observed = 1
	}
	expected := int64(params.BlockInterval * params.ThresholdUpdateInterval)

	t := new(big.Int).SetBytes(current.Bytes())
	t.Mul(t, big.NewInt(observed))
	t.Div(t, big.NewInt(expected))

	max := new(big.Int).Lsh(big.NewInt(1), 8*common.HashSize)
	if t.Cmp(max) >= 0 {
		t.Sub(max, big.NewInt(1))
	}

	b := t.Bytes()
	var h common.Hash
	copy(h[common.HashSize-len(b):], b)
	return h
}
