package state

import (
	"testing"

	"github.com/kma-coin/kmacoin/crypto"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coinbaseTx(t *testing.T, reward uint64, owner []byte) *objects.Transaction {
	t.Helper()
	return &objects.Transaction{Outputs: []*objects.Coin{{Value: reward, Owner: owner}}}
}

func TestGenesisDefaults(t *testing.T) {
	es := Genesis()
	assert.Equal(t, 0, es.Height)
	assert.Equal(t, uint64(params.InitReward), es.Reward)
	assert.Equal(t, params.InitThreshold, es.Threshold)
}

func TestProcessBlockAcceptsValidCoinbaseOnlyBlock(t *testing.T) {
	_, pub, err := crypto.GenerateKey()
	require.NoError(t, err)
	es := Genesis()

	var blk *objects.Block
	for nonce := uint64(0); nonce < 1<<20; nonce++ {
		blk = &objects.Block{
			PrevID:       es.TipID,
			Timestamp:    1,
			Nonce:        nonce,
			Transactions: []*objects.Transaction{coinbaseTx(t, es.Reward, crypto.PublicKeyToBytes(pub))},
		}
		if blk.MeetsThreshold(es.Threshold) {
			break
		}
	}
	require.True(t, blk.MeetsThreshold(es.Threshold), "failed to find a qualifying nonce in test bound")

	next, err := es.ProcessBlock(blk)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Height)
	assert.Equal(t, blk.ID(), next.TipID)
	assert.Equal(t, 1, next.Ledger.Len())
}

func TestProcessBlockRejectsWrongPrevID(t *testing.T) {
	_, pub, err := crypto.GenerateKey()
	require.NoError(t, err)
	es := Genesis()

	blk := &objects.Block{
		PrevID:       crypto.Hash([]byte("not-the-tip")),
		Timestamp:    1,
		Transactions: []*objects.Transaction{coinbaseTx(t, es.Reward, crypto.PublicKeyToBytes(pub))},
	}
	_, err = es.ProcessBlock(blk)
	assert.ErrorIs(t, err, ErrInvalidPrevID)
}

func TestProcessBlockRejectsBadReward(t *testing.T) {
	_, pub, err := crypto.GenerateKey()
	require.NoError(t, err)
	es := Genesis()

	var blk *objects.Block
	for nonce := uint64(0); nonce < 1<<20; nonce++ {
		blk = &objects.Block{
			PrevID:       es.TipID,
			Timestamp:    1,
			Nonce:        nonce,
			Transactions: []*objects.Transaction{coinbaseTx(t, es.Reward+1, crypto.PublicKeyToBytes(pub))},
		}
		if blk.MeetsThreshold(es.Threshold) {
			break
		}
	}
	require.True(t, blk.MeetsThreshold(es.Threshold), "failed to find a qualifying nonce in test bound")

	_, err = es.ProcessBlock(blk)
	assert.ErrorIs(t, err, ErrUnbalancedReward)
}

func TestProcessBlockCollectsFeesIntoReward(t *testing.T) {
	privA, pubA, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, pubB, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, pubMiner, err := crypto.GenerateKey()
	require.NoError(t, err)

	es := Genesis()
	coin := &objects.Coin{Value: 100, Owner: crypto.PublicKeyToBytes(pubA)}
	coinRef := objects.Input{TxID: crypto.Hash([]byte("premine")), Seq: 0}
	es.Ledger.AddCoin(coinRef, coin)

	transfer := &objects.Transaction{
		Inputs:  []objects.Input{coinRef},
		Outputs: []*objects.Coin{{Value: 90, Owner: crypto.PublicKeyToBytes(pubB)}},
	}
	require.NoError(t, transfer.Sign(privA))

	reward := coinbaseTx(t, es.Reward+10, crypto.PublicKeyToBytes(pubMiner))

	var blk *objects.Block
	for nonce := uint64(0); nonce < 1<<20; nonce++ {
		blk = &objects.Block{
			PrevID:       es.TipID,
			Timestamp:    1,
			Nonce:        nonce,
			Transactions: []*objects.Transaction{reward, transfer},
		}
		if blk.MeetsThreshold(es.Threshold) {
			break
		}
	}
	require.True(t, blk.MeetsThreshold(es.Threshold), "failed to find a qualifying nonce in test bound")

	next, err := es.ProcessBlock(blk)
	require.NoError(t, err)
	assert.True(t, next.Ledger.Has(objects.Input{TxID: reward.ID(), Seq: 0}))
	assert.True(t, next.Ledger.Has(objects.Input{TxID: transfer.ID(), Seq: 0}))
	assert.False(t, next.Ledger.Has(coinRef))
}

func TestThresholdRetargetsAfterInterval(t *testing.T) {
	es := Genesis()
	es.Height = params.ThresholdUpdateInterval
	es.LastThresholdUpdate = 1000
	es.TipTimestamp = 1000

	observed := int64(params.BlockInterval * params.ThresholdUpdateInterval * 2)

	var block *objects.Block
	for nonce := uint64(0); nonce < 1<<20; nonce++ {
		block = &objects.Block{
			PrevID:    es.TipID,
			Timestamp: es.TipTimestamp + observed,
			Nonce:     nonce,
		}
		if block.MeetsThreshold(es.Threshold) {
			break
		}
	}
	require.True(t, block.MeetsThreshold(es.Threshold), "failed to find a qualifying nonce in test bound")

	next, err := es.ProcessBlock(block)
	require.NoError(t, err)
	assert.Equal(t, es.Height+1, next.Height)
	assert.NotEqual(t, es.Threshold, next.Threshold)
	assert.Equal(t, block.Timestamp, next.LastThresholdUpdate)
}

func TestRewardHalving(t *testing.T) {
	assert.Equal(t, uint64(params.InitReward), rewardAt(0))
	assert.Equal(t, uint64(params.InitReward)/2, rewardAt(params.RewardUpdateInterval))
	assert.Equal(t, uint64(params.InitReward)/4, rewardAt(params.RewardUpdateInterval*2))
}
