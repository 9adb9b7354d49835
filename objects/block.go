package objects

import (
	"encoding/binary"
	"fmt"

	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/crypto"
)

// MaxTransactions bounds a block's transaction count field to the range a
// 16-bit wire field can address, matching the original reference's
// TX_COUNT_FSZ=2.
const MaxTransactions = 0xFFFF

// Block is a timestamped, nonced batch of transactions chained onto a
// previous block by ID. Its own ID only qualifies as valid once
// Hash(block) falls below the state's current proof-of-work threshold.
type Block struct {
	PrevID       common.Hash
	Timestamp    int64
	Nonce        uint64
	Transactions []*Transaction
}

// ID is the Block's identity and proof-of-work digest: hash over the
// header fields and every transaction's own ID, not their full bodies,
// so re-hashing during mining doesn't require re-hashing transaction
// contents on every nonce attempt.
func (b *Block) ID() common.Hash {
	buf := make([]byte, 0, common.HashSize+8+8+len(b.Transactions)*common.HashSize)
	buf = append(buf, b.PrevID.Bytes()...)
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(b.Timestamp))
	buf = append(buf, ts...)
	nonce := make([]byte, 8)
	binary.BigEndian.PutUint64(nonce, b.Nonce)
	buf = append(buf, nonce...)
	for _, tx := range b.Transactions {
		txid := tx.ID()
		buf = append(buf, txid.Bytes()...)
	}
	return crypto.Hash(buf)
}

// MeetsThreshold reports whether the block's ID, interpreted as a
// big-endian integer, is strictly below threshold — the proof-of-work
// acceptance check applied by every peer, not just the miner that found it.
func (b *Block) MeetsThreshold(threshold common.Hash) bool {
	return b.ID().Less(threshold)
}

// TotalOutput sums every transaction's total output value. Not used for
// the reward check itself (that compares only the reward transaction's
// own output against height reward plus collected fees), but useful for
// a caller wanting the block's total minted-plus-transferred value.
func (b *Block) TotalOutput() uint64 {
	var total uint64
	for _, tx := range b.Transactions {
		total += tx.TotalOutput()
	}
	return total
}

// Encode appends the wire form of b to buf.
func (b *Block) Encode(buf []byte) []byte {
	if len(b.Transactions) > MaxTransactions {
		panic("objects: block exceeds wire limits")
	}
	buf = append(buf, b.PrevID.Bytes()...)
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(b.Timestamp))
	buf = append(buf, ts...)
	nonce := make([]byte, 8)
	binary.BigEndian.PutUint64(nonce, b.Nonce)
	buf = append(buf, nonce...)
	count := make([]byte, 2)
	binary.BigEndian.PutUint16(count, uint16(len(b.Transactions)))
	buf = append(buf, count...)
	for _, tx := range b.Transactions {
		body := tx.Encode(nil)
		bodyLen := make([]byte, 4)
		binary.BigEndian.PutUint32(bodyLen, uint32(len(body)))
		buf = append(buf, bodyLen...)
		buf = append(buf, body...)
	}
	return buf
}

// DecodeBlock reads a Block from the front of b, returning the remaining
// bytes.
func DecodeBlock(b []byte) (*Block, []byte, error) {
	need := common.HashSize + 8 + 8 + 2
	if len(b) < need {
		return nil, nil, fmt.Errorf("objects: short buffer decoding block header")
	}
	blk := &Block{}
	blk.PrevID = common.BytesToHash(b[:common.HashSize])
	b = b[common.HashSize:]
	blk.Timestamp = int64(binary.BigEndian.Uint64(b[:8]))
	b = b[8:]
	blk.Nonce = binary.BigEndian.Uint64(b[:8])
	b = b[8:]
	count := binary.BigEndian.Uint16(b[:2])
	b = b[2:]

	for i := 0; i < int(count); i++ {
		if len(b) < 4 {
			return nil, nil, fmt.Errorf("objects: short buffer decoding tx length %d", i)
		}
		bodyLen := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < bodyLen {
			return nil, nil, fmt.Errorf("objects: short buffer decoding tx body %d", i)
		}
		body := b[:bodyLen]
		b = b[bodyLen:]
		tx, rest, err := DecodeTransaction(body)
		if err != nil {
			return nil, nil, fmt.Errorf("objects: decoding tx %d: %w", i, err)
		}
		if len(rest) != 0 {
			return nil, nil, fmt.Errorf("objects: trailing bytes after tx %d", i)
		}
		blk.Transactions = append(blk.Transactions, tx)
	}
	return blk, b, nil
}
