// Package params collects the consensus-critical constants spec.md fixes
// in §6, the way the teacher's `params/protocol_params.go` collects
// go-ethereum/klaytn's consensus constants in one place.
package params

import (
	"math/big"
	"time"

	"github.com/kma-coin/kmacoin/common"
)

const (
	// BlockInterval is the targeted number of seconds between two blocks.
	BlockInterval = 5

	// InitReward is the mining reward paid by the first block.
	InitReward = 1000

	// RewardUpdateInterval is the number of blocks between two reward
	// halvings.
	RewardUpdateInterval = 100

	// ExpectedTotalHashrate is the hashrate (hashes/second) the initial
	// threshold is calibrated against.
	ExpectedTotalHashrate = 30

	// ThresholdUpdateInterval is the number of blocks between two
	// threshold retargets.
	ThresholdUpdateInterval = 20

	// MaxBlocks bounds a single REQ_BLOCKS response and the per-block
	// transaction count field's addressable range is handled in objects.
	MaxBlocks = 255

	// MaxAddrs bounds a single REQ_ADDR_LIST response.
	MaxAddrs = 255

	// TransactionIDPoolSize bounds the RecentSet tracking transaction IDs
	// already seen, so the same transaction isn't reprocessed twice as it
	// propagates.
	TransactionIDPoolSize = 20

	// BlockIDPoolSize bounds the RecentSet tracking block IDs already
	// seen.
	BlockIDPoolSize = 5

	// AddressPoolSize bounds the RecentSet tracking addresses recently
	// offered to peers.
	AddressPoolSize = 10

	// StateCacheSize bounds the LRU cache of recently derived
	// ExtendedStates.
	StateCacheSize = 5

	// DirDepth is the number of nested directory levels persisted block
	// files are sharded across, keeping any one directory's entry count
	// bounded as the chain grows.
	DirDepth = 2

	// TokenPoolSize bounds the pool of single-use handshake tokens a node
	// holds outstanding at once: a REQ_TOKEN issues one, a matching
	// REQ_SWAP_ROLES consumes it, and the oldest unclaimed token is
	// evicted once the pool is full.
	TokenPoolSize = 10
)

const (
	// ConnectionTimeout bounds how long a dial or handshake may take
	// before the connecting goroutine gives up.
	ConnectionTimeout = 10 * time.Second

	// PeerTimeout is how long a connected peer may stay silent before
	// it's treated as dead and dropped.
	PeerTimeout = 300 * time.Second
)

// InitThreshold is floor(2^(8*HashSize) / (BlockInterval *
// ExpectedTotalHashrate)), the proof-of-work target a freshly bootstrapped
// ExtendedState starts with.
var InitThreshold = computeInitThreshold()

func computeInitThreshold() common.Hash {
	max := new(big.Int).Lsh(big.NewInt(1), 8*common.HashSize)
	denom := big.NewInt(BlockInterval * ExpectedTotalHashrate)
	t := new(big.Int).Div(max, denom)

	b := t.Bytes()
	var h common.Hash
	copy(h[common.HashSize-len(b):], b)
	return h
}
