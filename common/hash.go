// Package common holds small value types shared by every other package in
// the node: the fixed-size hash type and a generic blocking FIFO queue.
package common

import (
	"encoding/hex"
)

// HashSize is the width, in bytes, of every object ID in the system. It
// matches the SHA-256 digest crypto.Hash returns as a Hash (that function
// would not compile otherwise); it is duplicated here (rather than
// imported) to keep this package dependency-free, the way the teacher
// keeps `common` free of its own `crypto` package.
const HashSize = 32

// Hash is a fixed-size object identifier (a transaction ID or a block ID).
// Comparisons between two Hash values are ordinary byte-lexicographic
// comparisons, which is exactly the "less than the threshold" comparison
// the proof-of-work rule needs.
type Hash [HashSize]byte

// NullHash is the sentinel predecessor of the genesis block.
var NullHash = Hash{}

// Hex returns the lowercase hex encoding of h.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer.
func (h Hash) String() string {
	return h.Hex()
}

// Less reports whether h is byte-lexicographically smaller than other. The
// proof-of-work check `H(block) < threshold` is exactly this comparison.
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// BytesToHash converts a byte slice into a Hash. Panics if b is not exactly
// HashSize bytes long; callers read a fixed number of bytes off the wire so
// this can never happen in practice.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) != HashSize {
		panic("common: BytesToHash: wrong length")
	}
	copy(h[:], b)
	return h
}
