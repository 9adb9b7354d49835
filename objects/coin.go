// Package objects defines the wire- and state-level value types of the
// system: Coin, Transaction and Block, each a byte-exact structure mirroring
// the original Python reference's `objects/coin.py`, `objects/transaction.py`
// and `objects/block.py`. Every serialized form is fixed-width or
// length-prefixed so a peer can frame it off the wire without a delimiter.
package objects

import (
	"encoding/binary"
	"fmt"

	"github.com/kma-coin/kmacoin/crypto"
)

// valueFieldSize is the width, in bytes, of a Coin's wire value field.
const valueFieldSize = 4

// MaxCoinValue is the largest value a Coin can hold. The wire value field
// is only 4 bytes wide, so the one value that would overflow it, 2^32, is
// represented on the wire as 0 and translated back on decode.
const MaxCoinValue = 1 << 32

// Coin is a single unspent transaction output: an amount owned by whoever
// holds the private key matching Owner. A coin carries no identity of its
// own; it's addressed purely by position, the (transaction ID, output
// index) pair of the transaction that created it.
type Coin struct {
	Owner []byte // crypto.PublicKeySize bytes
	Value uint64 // 0 < Value <= MaxCoinValue
}

// EncodedSize is the wire size of a serialized Coin.
func (c *Coin) EncodedSize() int {
	return crypto.PublicKeySize + valueFieldSize
}

// Encode appends the wire form of c to buf: owner, then a 4-byte
// big-endian value with MaxCoinValue folded down to 0, the only value
// that doesn't fit in the field.
func (c *Coin) Encode(buf []byte) []byte {
	if len(c.Owner) != crypto.PublicKeySize {
		panic("objects: coin owner has wrong size")
	}
	buf = append(buf, c.Owner...)
	v := c.Value
	if v == MaxCoinValue {
		v = 0
	}
	val := make([]byte, valueFieldSize)
	binary.BigEndian.PutUint32(val, uint32(v))
	return append(buf, val...)
}

// DecodeCoin reads a Coin from the front of b, returning the remaining
// unconsumed bytes.
func DecodeCoin(b []byte) (*Coin, []byte, error) {
	need := crypto.PublicKeySize + valueFieldSize
	if len(b) < need {
		return nil, nil, fmt.Errorf("objects: short buffer decoding coin: need %d, have %d", need, len(b))
	}
	c := &Coin{}
	c.Owner = append([]byte(nil), b[:crypto.PublicKeySize]...)
	b = b[crypto.PublicKeySize:]
	v := binary.BigEndian.Uint32(b[:valueFieldSize])
	b = b[valueFieldSize:]
	if v == 0 {
		c.Value = MaxCoinValue
	} else {
		c.Value = uint64(v)
	}
	return c, b, nil
}
