// Package state implements the UTXO ledger (State) and the
// proof-of-work-aware chain tip it's threaded through (ExtendedState),
// mirroring the original reference's `objects/state.py` and
// `objects/xstate.py`.
package state

import (
	"fmt"

	"github.com/kma-coin/kmacoin/crypto"
	"github.com/kma-coin/kmacoin/objects"
)

// State is a snapshot of every unspent coin, keyed by the
// (transaction ID, output index) pair that created it — a coin carries no
// identity of its own, only a position. It is immutable from the
// outside: ProcessTransaction returns a new State rather than mutating
// the receiver, so a BlockTree branch can hold many States derived from a
// common ancestor without them interfering.
type State struct {
	utxo map[objects.Input]*objects.Coin
}

// NewState returns an empty ledger.
func NewState() *State {
	return &State{utxo: make(map[objects.Input]*objects.Coin)}
}

// Clone returns a shallow copy of the ledger's coin set, cheap enough to
// call on every transaction since coins themselves are never mutated in
// place, only replaced.
func (s *State) Clone() *State {
	cp := make(map[objects.Input]*objects.Coin, len(s.utxo))
	for k, v := range s.utxo {
		cp[k] = v
	}
	return &State{utxo: cp}
}

// Has reports whether the coin at ref is currently unspent.
func (s *State) Has(ref objects.Input) bool {
	_, ok := s.utxo[ref]
	return ok
}

// Get returns the coin at ref, if unspent.
func (s *State) Get(ref objects.Input) (*objects.Coin, bool) {
	c, ok := s.utxo[ref]
	return c, ok
}

// Len reports the number of unspent coins.
func (s *State) Len() int { return len(s.utxo) }

// AddCoin inserts a coin at ref unconditionally. Used only to seed a
// fresh ledger (e.g. a premine) outside of normal transaction processing.
func (s *State) AddCoin(ref objects.Input, c *objects.Coin) {
	s.utxo[ref] = c
}

// ProcessTransaction validates tx against s with balance checking enabled
// and, if valid, returns the resulting State. A positive difference
// between input and output value (a fee) is accepted; it is the caller's
// responsibility to route that fee to the block's reward transaction.
func (s *State) ProcessTransaction(tx *objects.Transaction) (*State, error) {
	next, _, err := s.ProcessTransactionFee(tx, true)
	return next, err
}

// ProcessTransactionFee validates tx against s and, if valid, returns the
// resulting State plus the fee it collected (totalIn - totalOut). s
// itself is left untouched.
//
// A transaction is valid iff:
//   - it carries no more signatures than inputs,
//   - every input coin exists in the current utxo set, with no input
//     referenced twice,
//   - every distinct input owner has some unused signature in tx.Signatures
//     that verifies under that owner's key (greedy match-and-consume,
//     tolerating any signature ordering),
//   - no output coin already occupies its (tx id, seq) slot in the utxo
//     set,
//   - checkBalance is false, or total input value is at least total
//     output value (fee >= 0). checkBalance is disabled for a block's
//     reward transaction, which mints value rather than spending it.
func (s *State) ProcessTransactionFee(tx *objects.Transaction, checkBalance bool) (*State, int64, error) {
	if len(tx.Signatures) > len(tx.Inputs) {
		return nil, 0, ErrTooManySignatures
	}

	seen := make(map[objects.Input]bool, len(tx.Inputs))
	spent := make([]*objects.Coin, len(tx.Inputs))
	var totalIn uint64
	for i, ref := range tx.Inputs {
		if seen[ref] {
			return nil, 0, ErrDuplicateCoin
		}
		seen[ref] = true
		coin, ok := s.utxo[ref]
		if !ok {
			return nil, 0, ErrCoinNotFound
		}
		spent[i] = coin
		totalIn += coin.Value
	}

	distinctOwners := make(map[string]bool, len(spent))
	var owners [][]byte
	for _, coin := range spent {
		key := string(coin.Owner)
		if distinctOwners[key] {
			continue
		}
		distinctOwners[key] = true
		owners = append(owners, coin.Owner)
	}

	used := make([]bool, len(tx.Signatures))
	for _, ownerBytes := range owners {
		owner, err := crypto.BytesToPublicKey(ownerBytes)
		if err != nil {
			return nil, 0, fmt.Errorf("state: %w", err)
		}
		matched := false
		for i, sig := range tx.Signatures {
			if used[i] || sig == nil {
				continue
			}
			if crypto.Verify(owner, sig, tx.SigningPayload()) {
				used[i] = true
				matched = true
				break
			}
		}
		if !matched {
			return nil, 0, ErrInvalidSig
		}
	}

	txID := tx.ID()
	var totalOut uint64
	for i, out := range tx.Outputs {
		if s.Has(objects.Input{TxID: txID, Seq: uint8(i)}) {
			return nil, 0, ErrDuplicateCoin
		}
		totalOut += out.Value
	}

	fee := int64(totalIn) - int64(totalOut)
	if checkBalance && fee < 0 {
		return nil, 0, ErrUnbalanced
	}

	next := s.Clone()
	for _, ref := range tx.Inputs {
		delete(next.utxo, ref)
	}
	for i, out := range tx.Outputs {
		next.utxo[objects.Input{TxID: txID, Seq: uint8(i)}] = out
	}
	return next, fee, nil
}
