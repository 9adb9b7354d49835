package state

import (
	"testing"

	"github.com/kma-coin/kmacoin/crypto"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mintCoin builds a single-output transaction minting value to owner and
// returns both the coin and the (tx id, seq) reference a State keys it
// under.
func mintCoin(t *testing.T, value uint64, owner []byte) (objects.Input, *objects.Coin) {
	t.Helper()
	tx := &objects.Transaction{Outputs: []*objects.Coin{{Value: value, Owner: owner}}}
	return objects.Input{TxID: tx.ID(), Seq: 0}, tx.Outputs[0]
}

func TestProcessTransactionSpendsAndBalances(t *testing.T) {
	privA, pubA, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, pubB, err := crypto.GenerateKey()
	require.NoError(t, err)

	ref, coin := mintCoin(t, 100, crypto.PublicKeyToBytes(pubA))
	s := NewState()
	s.AddCoin(ref, coin)

	tx := &objects.Transaction{
		Inputs:  []objects.Input{ref},
		Outputs: []*objects.Coin{{Value: 100, Owner: crypto.PublicKeyToBytes(pubB)}},
	}
	require.NoError(t, tx.Sign(privA))

	next, err := s.ProcessTransaction(tx)
	require.NoError(t, err)
	assert.False(t, next.Has(ref))
	assert.True(t, next.Has(objects.Input{TxID: tx.ID(), Seq: 0}))
	assert.True(t, s.Has(ref), "original state must be untouched")
}

func TestProcessTransactionRejectsUnknownInput(t *testing.T) {
	priv, _, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := NewState()

	tx := &objects.Transaction{
		Inputs: []objects.Input{{TxID: crypto.Hash([]byte("ghost")), Seq: 0}},
	}
	require.NoError(t, tx.Sign(priv))

	_, err = s.ProcessTransaction(tx)
	assert.ErrorIs(t, err, ErrCoinNotFound)
}

func TestProcessTransactionRejectsUnbalanced(t *testing.T) {
	privA, pubA, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, pubB, err := crypto.GenerateKey()
	require.NoError(t, err)

	ref, coin := mintCoin(t, 100, crypto.PublicKeyToBytes(pubA))
	s := NewState()
	s.AddCoin(ref, coin)

	tx := &objects.Transaction{
		Inputs:  []objects.Input{ref},
		Outputs: []*objects.Coin{{Value: 150, Owner: crypto.PublicKeyToBytes(pubB)}},
	}
	require.NoError(t, tx.Sign(privA))

	_, err = s.ProcessTransaction(tx)
	assert.ErrorIs(t, err, ErrUnbalanced)
}

func TestProcessTransactionFeeAllowsPositiveFee(t *testing.T) {
	privA, pubA, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, pubB, err := crypto.GenerateKey()
	require.NoError(t, err)

	ref, coin := mintCoin(t, 100, crypto.PublicKeyToBytes(pubA))
	s := NewState()
	s.AddCoin(ref, coin)

	tx := &objects.Transaction{
		Inputs:  []objects.Input{ref},
		Outputs: []*objects.Coin{{Value: 80, Owner: crypto.PublicKeyToBytes(pubB)}},
	}
	require.NoError(t, tx.Sign(privA))

	next, fee, err := s.ProcessTransactionFee(tx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(20), fee)
	assert.True(t, next.Has(objects.Input{TxID: tx.ID(), Seq: 0}))
}

func TestProcessTransactionRejectsDuplicateInput(t *testing.T) {
	privA, pubA, err := crypto.GenerateKey()
	require.NoError(t, err)

	ref, coin := mintCoin(t, 100, crypto.PublicKeyToBytes(pubA))
	s := NewState()
	s.AddCoin(ref, coin)

	tx := &objects.Transaction{
		Inputs:  []objects.Input{ref, ref},
		Outputs: []*objects.Coin{{Value: 100, Owner: crypto.PublicKeyToBytes(pubA)}},
	}
	require.NoError(t, tx.Sign(privA))

	_, err = s.ProcessTransaction(tx)
	assert.ErrorIs(t, err, ErrDuplicateCoin)
}

func TestProcessTransactionRejectsInvalidSignature(t *testing.T) {
	_, pubA, err := crypto.GenerateKey()
	require.NoError(t, err)
	wrongPriv, _, err := crypto.GenerateKey()
	require.NoError(t, err)

	ref, coin := mintCoin(t, 10, crypto.PublicKeyToBytes(pubA))
	s := NewState()
	s.AddCoin(ref, coin)

	tx := &objects.Transaction{
		Inputs:  []objects.Input{ref},
		Outputs: []*objects.Coin{{Value: 10, Owner: crypto.PublicKeyToBytes(pubA)}},
	}
	require.NoError(t, tx.Sign(wrongPriv))

	_, err = s.ProcessTransaction(tx)
	assert.ErrorIs(t, err, ErrInvalidSig)
}

func TestProcessTransactionRejectsTooManySignatures(t *testing.T) {
	privA, pubA, err := crypto.GenerateKey()
	require.NoError(t, err)
	privB, _, err := crypto.GenerateKey()
	require.NoError(t, err)

	ref, coin := mintCoin(t, 10, crypto.PublicKeyToBytes(pubA))
	s := NewState()
	s.AddCoin(ref, coin)

	tx := &objects.Transaction{
		Inputs:  []objects.Input{ref},
		Outputs: []*objects.Coin{{Value: 10, Owner: crypto.PublicKeyToBytes(pubA)}},
	}
	require.NoError(t, tx.Sign(privA))
	// Bypass AddSignature's own guard to exercise ProcessTransactionFee's check.
	tx.Signatures = append(tx.Signatures, mustSign(t, privB, tx.SigningPayload()))

	_, err = s.ProcessTransaction(tx)
	assert.ErrorIs(t, err, ErrTooManySignatures)
}

func mustSign(t *testing.T, priv *crypto.PrivateKey, payload []byte) []byte {
	t.Helper()
	sig, err := crypto.Sign(priv, payload)
	require.NoError(t, err)
	return sig
}
