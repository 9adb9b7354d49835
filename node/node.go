// Package node implements the Node substrate every worker goroutine
// (server, client, miner, address processor, block processor, branch
// builder, broadcaster...) shares: the known-peer address book, the
// block tree, the dedup pools, and the work queues connecting them.
// Mirrors the original reference's `atnode/node.py`.
//
// node must never import p2p or work: both of those packages hold a
// *Node handle to drive their goroutines, so a reverse dependency here
// would create an import cycle. Anything that needs to reach into p2p or
// work belongs in cmd/kmacoinnode instead.
package node

import (
	"math/rand"
	"sync"

	"github.com/kma-coin/kmacoin/blocktree"
	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/crypto"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/params"
	"github.com/kma-coin/kmacoin/pool"
	"github.com/kma-coin/kmacoin/state"
	"github.com/kma-coin/kmacoin/statecache"
	"github.com/kma-coin/kmacoin/wire"
)

// Node is the shared substrate every worker goroutine operates on: the
// chain, the peer address book, the dedup pools and the inter-worker
// queues. It holds no network connections itself — that's p2p's job.
type Node struct {
	Config *Config
	Events EventSink

	Identity *crypto.PrivateKey
	PubKey   *crypto.PublicKey

	Tree       *blocktree.BlockTree
	StateCache *statecache.StateCache

	SeenTx    *pool.RecentSet
	SeenBlock *pool.RecentSet
	SeenAddr  *pool.RecentSet

	// TxQueue, BlockQueue and AddrQueue hold freshly received wire
	// objects awaiting validation by AddressProcessor/BlockProcessor.
	// ValidObjectQueue holds validated objects awaiting broadcast.
	// OrphanQueue holds blocks whose parent isn't known yet, retried as
	// BranchBuilder learns new branches. All five are typed as
	// *common.Queue of interface{} rather than a p2p envelope type, since
	// node cannot import p2p.
	TxQueue          *common.Queue
	BlockQueue       *common.Queue
	AddrQueue        *common.Queue
	ValidObjectQueue *common.Queue
	OrphanQueue      *common.Queue

	mu          sync.Mutex
	unconnected map[string]wire.Address
	connected   map[string]wire.Address
	handles     map[string]PeerHandle
	addrCond    *sync.Cond
	peerCond    *sync.Cond

	minPeers int
	maxPeers int

	// peerSlots is a counting semaphore with 2*maxPeers permits: every
	// peer pair uses two sockets (one per traffic direction), and each
	// socket acquires its own permit the moment it's accepted or dialed,
	// independent of whether the handshake that socket is part of ever
	// completes.
	peerSlots chan struct{}

	// tokens binds a handshake Token, minted in reply to a MsgReqToken,
	// to the socket that asked for it, so the sibling socket's
	// MsgReqSwapRoles can redeem it and recover that socket for pairing.
	tokens *pool.TokenPool
}

// New returns a freshly initialized Node: an empty chain rooted at
// genesis, empty pools, and peer bookkeeping sized from cfg.
func New(cfg *Config, identity *crypto.PrivateKey) *Node {
	n := &Node{
		Config:           cfg,
		Events:           NullSink{},
		Identity:         identity,
		PubKey:           identity.Public(),
		Tree:             blocktree.New(state.Genesis()),
		StateCache:       statecache.New(params.StateCacheSize),
		SeenTx:           pool.NewRecentSet(params.TransactionIDPoolSize),
		SeenBlock:        pool.NewRecentSet(params.BlockIDPoolSize),
		SeenAddr:         pool.NewRecentSet(params.AddressPoolSize),
		TxQueue:          common.NewQueue(),
		BlockQueue:       common.NewQueue(),
		AddrQueue:        common.NewQueue(),
		ValidObjectQueue: common.NewQueue(),
		OrphanQueue:      common.NewQueue(),
		unconnected:      make(map[string]wire.Address),
		connected:        make(map[string]wire.Address),
		handles:          make(map[string]PeerHandle),
		minPeers:         cfg.MinPeers,
		maxPeers:         cfg.MaxPeers,
		peerSlots:        make(chan struct{}, 2*cfg.MaxPeers),
		tokens:           pool.NewTokenPool(params.TokenPoolSize),
	}
	n.addrCond = sync.NewCond(&n.mu)
	n.peerCond = sync.NewCond(&n.mu)
	return n
}

// AddUnconnectedAddress records a as a candidate to dial, waking one
// goroutine blocked in PopRandomUnconnectedAddress. Returns false if a is
// already known (connected or unconnected).
func (n *Node) AddUnconnectedAddress(a wire.Address) bool {
	key := a.String()
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.unconnected[key]; ok {
		return false
	}
	if _, ok := n.connected[key]; ok {
		return false
	}
	n.unconnected[key] = a
	n.addrCond.Signal()
	return true
}

// PopRandomUnconnectedAddress blocks until an unconnected address is
// available, then removes and returns one at random, mirroring the
// original reference's preference for random peer selection over
// deterministic ordering, which would let a peer predict its neighbor's
// dial order.
func (n *Node) PopRandomUnconnectedAddress() wire.Address {
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.unconnected) == 0 {
		n.addrCond.Wait()
	}
	i, target := 0, rand.Intn(len(n.unconnected))
	var key string
	var addr wire.Address
	for k, v := range n.unconnected {
		if i == target {
			key, addr = k, v
			break
		}
		i++
	}
	delete(n.unconnected, key)
	return addr
}

// PeerHandle is the minimal surface a live peer connection exposes to the
// rest of the node: enough for a Broadcaster to push a message or
// announce an object without this package needing to import p2p (which
// itself imports node). p2p.PeerLink satisfies this interface.
type PeerHandle interface {
	// Send fires off a request or reply that carries its own answer
	// inline, with no separate permission round trip (MsgReqBlocks,
	// MsgReqAddrList, and their replies).
	Send(typ wire.MsgType, body []byte)

	// Inform announces an object by id and, only if the peer replies
	// ReplyProceed, follows with the full payload — the
	// MsgInfTransaction/MsgInfBlock two-phase broadcast.
	Inform(announceType wire.MsgType, id []byte, payloadType wire.MsgType, payload []byte)

	// RequestBlock pulls a single block by ID out of band, the active
	// ancestor walk BranchBuilder uses to resolve an orphan.
	RequestBlock(id common.Hash) (*objects.Block, error)

	PeerAddress() wire.Address
}

// AcquirePeerSlot blocks until a peer slot is free. A Listener or
// PeerAdder calls this once per socket it is about to open or accept,
// before any handshake traffic crosses that socket.
func (n *Node) AcquirePeerSlot() {
	n.peerSlots <- struct{}{}
}

// ReleasePeerSlot returns a previously acquired peer slot. Safe to call
// even if no slot is currently held; it is then a no-op.
func (n *Node) ReleasePeerSlot() {
	select {
	case <-n.peerSlots:
	default:
	}
}

// BindToken mints val to token in the handshake token pool, returning
// ok false if token is already bound (a rare collision the caller should
// retry with a freshly minted token). evicted is whatever value the pool
// bumped out to make room, if the pool was full, so the caller can
// release any resource it holds.
func (n *Node) BindToken(token wire.Token, val interface{}) (evicted interface{}, ok bool) {
	return n.tokens.Add(pool.Token(token), val)
}

// PopToken retrieves and removes the value bound to token, if any.
func (n *Node) PopToken(token wire.Token) (interface{}, bool) {
	return n.tokens.Pop(pool.Token(token))
}

// PublicAddress parses Config.PublicAddr into a dialable wire.Address,
// the address this node advertises to a peer during MsgReqSwapRoles.
// Returns the zero Address if none is configured or it fails to parse.
func (n *Node) PublicAddress() wire.Address {
	if n.Config.PublicAddr == "" {
		return wire.Address{}
	}
	addr, err := wire.ParseAddress(n.Config.PublicAddr)
	if err != nil {
		return wire.Address{}
	}
	return addr
}

// AddConnectedAddress moves a into the connected set and registers its
// handle. The peer slots backing a's two sockets are already held by the
// caller (acquired at accept/dial time, before the handshake began), so
// this only updates bookkeeping. Emits PeerConnectedEvent on success.
func (n *Node) AddConnectedAddress(a wire.Address, h PeerHandle) {
	n.mu.Lock()
	delete(n.unconnected, a.String())
	n.connected[a.String()] = a
	n.handles[a.String()] = h
	n.mu.Unlock()
	n.Events.Emit(PeerConnectedEvent{Address: a.String()})
}

// RemoveConnectedAddress drops a from the connected set and, if the
// connected count falls below MinPeers, wakes any goroutine waiting in
// WaitForPeerShortage (e.g. PeerAdder deciding whether to dial more). It
// does not touch peerSlots: each of a's two sockets releases its own slot
// independently when that socket closes.
func (n *Node) RemoveConnectedAddress(a wire.Address) {
	n.mu.Lock()
	delete(n.connected, a.String())
	delete(n.handles, a.String())
	short := len(n.connected) < n.minPeers
	n.mu.Unlock()
	if short {
		n.peerCond.Broadcast()
	}
	n.Events.Emit(PeerDisconnectedEvent{Address: a.String()})
}

// Peers returns a snapshot of every currently connected peer handle.
func (n *Node) Peers() []PeerHandle {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]PeerHandle, 0, len(n.handles))
	for _, h := range n.handles {
		out = append(out, h)
	}
	return out
}

// PeersExcept returns every connected peer handle other than origin, the
// set a Broadcaster relays a freshly validated object to.
func (n *Node) PeersExcept(origin PeerHandle) []PeerHandle {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]PeerHandle, 0, len(n.handles))
	for _, h := range n.handles {
		if origin != nil && h.PeerAddress() == origin.PeerAddress() {
			continue
		}
		out = append(out, h)
	}
	return out
}

// ConnectedCount reports the number of currently connected peers.
func (n *Node) ConnectedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.connected)
}

// WaitForPeerShortage blocks until the connected peer count is below
// MinPeers, the condition PeerAdder waits on before dialing more
// addresses.
func (n *Node) WaitForPeerShortage() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.connected) >= n.minPeers {
		n.peerCond.Wait()
	}
}

// ConnectedAddresses returns a snapshot of every currently connected
// address, used to answer a peer's MsgReqAddrList.
func (n *Node) ConnectedAddresses() []wire.Address {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]wire.Address, 0, len(n.connected))
	for _, a := range n.connected {
		out = append(out, a)
	}
	return out
}

// AddBlock validates and attaches block to the chain, updating the state
// cache and emitting a BlockAddedEvent on success.
func (n *Node) AddBlock(block *objects.Block) (*state.ExtendedState, error) {
	head := n.Tree.Head()
	next, err := n.Tree.AddBlock(block)
	if err != nil {
		return nil, err
	}
	id := block.ID()
	n.StateCache.Add(id, next)
	n.Events.Emit(BlockAddedEvent{
		BlockID:    id,
		Height:     next.Height,
		BecameHead: n.Tree.Head().ID != head.ID,
	})
	return next, nil
}

// GetLatestState returns the ExtendedState at the current chain tip.
func (n *Node) GetLatestState() *state.ExtendedState {
	return n.Tree.TipState()
}

// GetState returns the ExtendedState resulting from having applied the
// block with the given ID, consulting the state cache before falling
// back to a full tree lookup.
func (n *Node) GetState(id common.Hash) (*state.ExtendedState, bool) {
	if st, ok := n.StateCache.Get(id); ok {
		return st, true
	}
	st, ok := n.Tree.StateAt(id)
	if ok {
		n.StateCache.Add(id, st)
	}
	return st, ok
}
