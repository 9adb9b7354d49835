// Package p2p drives the actual network sockets: accepting and dialing
// connections, running the two-socket peer handshake, framing messages
// through wire, and feeding decoded objects into a node.Node's queues for
// the work package's processors to consume. Mirrors the original
// reference's `atnode/workers/server.py`, `client.py`, `listener.py` and
// `peeradder.py`.
//
// Every peer connection is two sockets, one per traffic direction: the
// inbound/server-role Handle reads the peer's requests and answers them,
// the outbound/client-role Handle carries this node's own requests to the
// peer. A PeerLink pairs the two once the handshake settles which socket
// plays which role. This mirrors the original reference's Server/Client
// thread pair holding a direct reference to each other (`self.partner`);
// Go's stricter aliasing rules make a PeerLink the cleaner way to express
// the same pairing.
package p2p

import (
	"net"
	"sync"

	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/node"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/wire"
)

// MsgCommand distinguishes what an OutgoingCommand asks a Handle's driver
// loop to do.
type MsgCommand int

const (
	// CmdSend writes a framed request/reply message that carries its own
	// answer inline (MsgReqBlocks, MsgReqAddrList and their replies).
	CmdSend MsgCommand = iota
	// CmdReply writes a single raw ReplyCode byte, answering MsgPing or an
	// MsgInf* announcement. (The MsgReqSwapRoles reply is written directly
	// by the handshake, before any driver loop runs.)
	CmdReply
	// CmdInform announces an object, blocks for the peer's ReplyCode, and
	// on ReplyProceed sends the full payload.
	CmdInform
	// CmdReqBlock requests a single block by ID and blocks for the
	// MsgBlock reply, delivering the result on a channel.
	CmdReqBlock
	// CmdClose terminates the driver loop.
	CmdClose
)

// OutgoingCommand is a request queued on a Handle's Out queue for its
// driver loop to carry out. Which fields are meaningful depends on Type.
type OutgoingCommand struct {
	Type MsgCommand

	Msg  wire.MsgType // CmdSend
	Body []byte       // CmdSend

	Reply wire.ReplyCode // CmdReply

	AnnounceType wire.MsgType // CmdInform
	AnnounceBody []byte       // CmdInform
	PayloadType  wire.MsgType // CmdInform
	Payload      []byte       // CmdInform

	BlockID common.Hash         // CmdReqBlock
	Result  chan *objects.Block // CmdReqBlock
}

// Handle is one socket's half of a peer connection: the queue its driver
// goroutine drains to the wire, and the bookkeeping to release that
// socket's peer slot exactly once when it closes. A Handle that has not
// yet been claimed by a MsgReqSwapRoles sits alone in the node's token
// pool with a nil Link.
type Handle struct {
	Conn    net.Conn
	Address wire.Address
	Out     *common.Queue // of *OutgoingCommand

	// Link is the PeerLink this Handle belongs to, set once the
	// handshake pairs it with its sibling socket.
	Link *PeerLink

	release func()

	closeOnce sync.Once
	closed    chan struct{}
}

// NewHandle wraps conn as a Handle addressed as addr. release is called
// exactly once, when the Handle closes, to give back the peer slot this
// socket acquired at accept/dial time; it may be nil.
func NewHandle(conn net.Conn, addr wire.Address, release func()) *Handle {
	return &Handle{
		Conn:    conn,
		Address: addr,
		Out:     common.NewQueue(),
		release: release,
		closed:  make(chan struct{}),
	}
}

// Send queues an outbound request/reply-bearing message.
func (h *Handle) Send(typ wire.MsgType, body []byte) {
	h.Out.Put(&OutgoingCommand{Type: CmdSend, Msg: typ, Body: body})
}

// Reply queues a single raw ReplyCode answer.
func (h *Handle) Reply(code wire.ReplyCode) {
	h.Out.Put(&OutgoingCommand{Type: CmdReply, Reply: code})
}

// Inform queues a two-phase announce: send the announcement, and only if
// the peer replies ReplyProceed, follow with the payload. Meaningful
// only on an outbound/client-role Handle, the socket this node uses to
// initiate its own requests.
func (h *Handle) Inform(announceType wire.MsgType, id []byte, payloadType wire.MsgType, payload []byte) {
	h.Out.Put(&OutgoingCommand{
		Type:         CmdInform,
		AnnounceType: announceType,
		AnnounceBody: id,
		PayloadType:  payloadType,
		Payload:      payload,
	})
}

// RequestBlock queues a MsgReqBlock for id and blocks until the driver
// loop delivers a decoded block or, on failure or a connection that dies
// mid-request, nil.
func (h *Handle) RequestBlock(id common.Hash) (*objects.Block, error) {
	result := make(chan *objects.Block, 1)
	h.Out.Put(&OutgoingCommand{Type: CmdReqBlock, BlockID: id, Result: result})
	blk := <-result
	if blk == nil {
		return nil, errBlockRequestFailed
	}
	return blk, nil
}

// Close requests the connection be torn down, releases this socket's
// peer slot and unblocks anything waiting on Done. Safe to call more
// than once.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.Out.Put(&OutgoingCommand{Type: CmdClose})
		close(h.closed)
		h.Conn.Close()
		if h.release != nil {
			h.release()
		}
	})
}

// Done returns a channel closed once this handle has been torn down.
func (h *Handle) Done() <-chan struct{} {
	return h.closed
}

// PeerAddress implements node.PeerHandle.
func (h *Handle) PeerAddress() wire.Address {
	return h.Address
}

// PeerLink pairs the two sockets that make up one peer connection: In is
// this node's inbound/server role, reading the peer's requests; Out is
// its outbound/client role, carrying this node's own requests to the
// peer. PeerLink implements node.PeerHandle, so the rest of the node
// addresses a peer without distinguishing which socket does what.
type PeerLink struct {
	In  *Handle
	Out *Handle

	n    *node.Node
	addr wire.Address

	teardown sync.Once
}

// NewPeerLink pairs in and out as the two sockets of one peer connection
// with n, addressed as addr.
func NewPeerLink(n *node.Node, addr wire.Address, in, out *Handle) *PeerLink {
	link := &PeerLink{In: in, Out: out, n: n, addr: addr}
	in.Link = link
	out.Link = link
	return link
}

// Send implements node.PeerHandle by answering on the inbound socket: a
// Send always carries a reply to something the peer asked us on that
// socket (MsgReqBlocks, MsgReqAddrList), so it must travel back on the
// same connection the request arrived on.
func (l *PeerLink) Send(typ wire.MsgType, body []byte) {
	l.In.Send(typ, body)
}

// Inform implements node.PeerHandle's two-phase announce-then-payload
// broadcast, carried out entirely on the outbound socket: an Inform is
// always something this node initiates, so it travels the connection
// this node uses to make its own requests.
func (l *PeerLink) Inform(announceType wire.MsgType, id []byte, payloadType wire.MsgType, payload []byte) {
	l.Out.Inform(announceType, id, payloadType, payload)
}

// RequestBlock implements node.PeerHandle by pulling a single block
// through the outbound socket.
func (l *PeerLink) RequestBlock(id common.Hash) (*objects.Block, error) {
	return l.Out.RequestBlock(id)
}

// PeerAddress implements node.PeerHandle.
func (l *PeerLink) PeerAddress() wire.Address {
	return l.addr
}

// Close tears down both sockets and deregisters the peer exactly once,
// regardless of which socket's failure triggered the teardown.
func (l *PeerLink) Close() {
	l.teardown.Do(func() {
		l.In.Close()
		l.Out.Close()
		l.n.RemoveConnectedAddress(l.addr)
	})
}

// Envelope wraps a decoded inbound message with the peer it arrived on
// and its decoded payload (an *objects.Transaction, *objects.Block,
// []*objects.Block, common.Hash or []wire.Address, depending on Type).
// This is the unit node's TxQueue/BlockQueue/AddrQueue/OrphanQueue
// actually carry, duck typed as interface{} on the Node side since node
// cannot import p2p.
type Envelope struct {
	Type    MsgType
	From    node.PeerHandle
	Payload interface{}
}

// MsgType aliases wire.MsgType so callers outside p2p don't need to
// import wire just to switch on an Envelope's kind.
type MsgType = wire.MsgType
