package p2p

import (
	"io"
	"net"

	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/log"
	"github.com/kma-coin/kmacoin/node"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/wire"
)

var clog = log.Root().New("module", "p2p")

// driveHandle is the only goroutine that ever writes to h.Conn, and, for
// CmdInform/CmdReqBlock, the only one that reads from it too — both
// commands write a request and synchronously read the single reply or
// payload message it provokes, exactly as the original reference's
// Client thread owns its one socket outright. Every worker that wants to
// talk on this socket queues a command on h.Out rather than touching
// h.Conn directly, so two goroutines never race on the same write.
func driveHandle(h *Handle) {
	defer drainPending(h)
	for {
		item, ok := h.Out.Get()
		if !ok {
			return
		}
		cmd := item.(*OutgoingCommand)
		switch cmd.Type {
		case CmdClose:
			return
		case CmdSend:
			if err := wire.WriteMessage(h.Conn, cmd.Msg, cmd.Body); err != nil {
				clog.Debug("send failed", "peer", h.Address.String(), "err", err.Error())
				return
			}
		case CmdReply:
			if err := wire.WriteReply(h.Conn, cmd.Reply); err != nil {
				clog.Debug("reply failed", "peer", h.Address.String(), "err", err.Error())
				return
			}
		case CmdInform:
			if !informOne(h, cmd) {
				return
			}
		case CmdReqBlock:
			blk, err := requestBlock(h.Conn, cmd.BlockID)
			if err != nil {
				clog.Debug("block request failed", "peer", h.Address.String(), "err", err.Error())
				cmd.Result <- nil
				return
			}
			cmd.Result <- blk
		}
	}
}

// informOne writes an announcement and blocks for the peer's ReplyCode.
// It sends the follow-up payload only if the peer proceeded and the
// command actually carries one — an address announcement carries the
// whole address up front and has no second phase. Returns false if the
// connection should be torn down.
func informOne(h *Handle, cmd *OutgoingCommand) bool {
	if err := wire.WriteMessage(h.Conn, cmd.AnnounceType, cmd.AnnounceBody); err != nil {
		clog.Debug("announce failed", "peer", h.Address.String(), "err", err.Error())
		return false
	}
	reply, err := wire.ReadReply(h.Conn, node.ConnectionTimeout)
	if err != nil {
		clog.Debug("reading announce reply failed", "peer", h.Address.String(), "err", err.Error())
		return false
	}
	if reply != wire.ReplyProceed || cmd.Payload == nil {
		return true
	}
	if err := wire.WriteMessage(h.Conn, cmd.PayloadType, cmd.Payload); err != nil {
		clog.Debug("payload send failed", "peer", h.Address.String(), "err", err.Error())
		return false
	}
	return true
}

// requestBlock writes a MsgReqBlock for id and reads back the MsgBlock
// reply. An empty body means the peer doesn't have the block; the caller
// treats that the same as a transport failure, the broken-link sentinel
// BranchBuilder checks for.
func requestBlock(conn net.Conn, id common.Hash) (*objects.Block, error) {
	if err := wire.WriteMessage(conn, wire.MsgReqBlock, wire.EncodeReqBlock(id)); err != nil {
		return nil, err
	}
	typ, body, err := wire.ReadMessageDeadline(conn, node.ConnectionTimeout)
	if err != nil {
		return nil, err
	}
	if typ != wire.MsgBlock {
		return nil, errUnexpectedHandshakeReply
	}
	if len(body) == 0 {
		return nil, nil
	}
	blk, _, err := objects.DecodeBlock(body)
	if err != nil {
		return nil, err
	}
	return blk, nil
}

// drainPending delivers a nil result to every CmdReqBlock still sitting
// in h.Out once its driver loop exits, so a BranchBuilder blocked on
// RequestBlock sees a broken link instead of hanging forever.
func drainPending(h *Handle) {
	for {
		item, ok := h.Out.TryGet()
		if !ok {
			return
		}
		cmd := item.(*OutgoingCommand)
		if cmd.Type == CmdReqBlock {
			cmd.Result <- nil
		}
	}
}

// serveRequests is the inbound read loop for h, the In/server-role socket
// of a peer connection: it decodes whatever the peer sends unsolicited
// and answers or queues it, for as long as the socket stays open. Mirrors
// the original reference's Server thread.
func serveRequests(n *node.Node, h *Handle) {
	defer h.Link.Close()
	for {
		typ, body, err := wire.ReadMessage(h.Conn)
		if err != nil {
			if err != io.EOF {
				clog.Debug("connection read failed", "peer", h.Address.String(), "err", err.Error())
			}
			return
		}
		if err := serveOne(n, h, typ, body); err != nil {
			clog.Warn("dropping malformed message", "peer", h.Address.String(), "type", int(typ), "err", err.Error())
		}
	}
}

// serveOne answers a single request arriving on h, queuing anything that
// needs validation onto the matching node queue for the work package's
// processors to pick up, with h.Link as the Envelope's origin so a later
// stage can reply or pull more data from the right peer.
func serveOne(n *node.Node, h *Handle, typ wire.MsgType, body []byte) error {
	switch typ {
	case wire.MsgPing:
		h.Reply(wire.ReplyPong)

	case wire.MsgInfAddr:
		addr, _, err := wire.DecodeAddress(body)
		if err != nil {
			h.Reply(wire.ReplyStop)
			return err
		}
		if n.AddUnconnectedAddress(addr) {
			h.Reply(wire.ReplyProceed)
		} else {
			h.Reply(wire.ReplyStop)
		}

	case wire.MsgInfTransaction:
		id, err := wire.DecodeAnnounceID(body)
		if err != nil {
			h.Reply(wire.ReplyStop)
			return err
		}
		if !n.SeenTx.Add(id) {
			h.Reply(wire.ReplyStop)
			return nil
		}
		h.Reply(wire.ReplyProceed)
		ptyp, pbody, err := wire.ReadMessage(h.Conn)
		if err != nil {
			return err
		}
		if ptyp != wire.MsgTransaction {
			return errUnexpectedHandshakeReply
		}
		tx, _, err := objects.DecodeTransaction(pbody)
		if err != nil {
			return err
		}
		n.TxQueue.Put(&Envelope{Type: wire.MsgTransaction, From: h.Link, Payload: tx})

	case wire.MsgInfBlock:
		id, err := wire.DecodeAnnounceID(body)
		if err != nil {
			h.Reply(wire.ReplyStop)
			return err
		}
		if !n.SeenBlock.Add(id) {
			h.Reply(wire.ReplyStop)
			return nil
		}
		h.Reply(wire.ReplyProceed)
		ptyp, pbody, err := wire.ReadMessage(h.Conn)
		if err != nil {
			return err
		}
		if ptyp != wire.MsgBlock {
			return errUnexpectedHandshakeReply
		}
		blk, _, err := objects.DecodeBlock(pbody)
		if err != nil {
			return err
		}
		n.BlockQueue.Put(&Envelope{Type: wire.MsgBlock, From: h.Link, Payload: blk})

	case wire.MsgReqBlock:
		id, err := wire.DecodeReqBlock(body)
		if err != nil {
			return err
		}
		blk, err := node.LoadBlock(n.Config, id)
		if err != nil {
			h.Send(wire.MsgBlock, nil)
			return nil
		}
		h.Send(wire.MsgBlock, blk.Encode(nil))

	case wire.MsgReqBlocks:
		after, err := wire.DecodeReqBlocks(body)
		if err != nil {
			return err
		}
		n.BlockQueue.Put(&Envelope{Type: typ, From: h.Link, Payload: after})

	case wire.MsgReqAddrList:
		n.AddrQueue.Put(&Envelope{Type: typ, From: h.Link})

	default:
		clog.Debug("unexpected message on inbound socket", "peer", h.Address.String(), "type", int(typ))
	}
	return nil
}

// Accept handles one freshly accepted socket: it's the first half of
// either direction of the two-socket handshake, distinguished by which
// request arrives first. Mirrors the original reference's Server
// accepting a connection and branching on the client's opening message.
func Accept(n *node.Node, conn net.Conn) {
	n.AcquirePeerSlot()
	addr := addressOf(conn.RemoteAddr())

	typ, body, err := wire.ReadMessageDeadline(conn, node.ConnectionTimeout)
	if err != nil {
		clog.Debug("handshake read failed", "peer", addr.String(), "err", err.Error())
		n.ReleasePeerSlot()
		conn.Close()
		return
	}

	switch typ {
	case wire.MsgReqToken:
		issueToken(n, conn, addr)
	case wire.MsgReqSwapRoles:
		handleSwapRoles(n, conn, addr, body)
	default:
		clog.Debug("unexpected first handshake message", "peer", addr.String(), "type", int(typ))
		n.ReleasePeerSlot()
		conn.Close()
	}
}

// issueToken answers a MsgReqToken: it mints a single-use Token, binds
// this socket to it in the node's token pool, and replies with the raw
// token. The socket is then left idle — no read or write loop runs on it
// — until a sibling socket redeems the token with MsgReqSwapRoles.
func issueToken(n *node.Node, conn net.Conn, addr wire.Address) {
	h := NewHandle(conn, addr, n.ReleasePeerSlot)

	const maxAttempts = 5
	var (
		token wire.Token
		ok    bool
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		t, err := wire.NewToken()
		if err != nil {
			clog.Debug("minting token failed", "peer", addr.String(), "err", err.Error())
			h.Close()
			return
		}
		evicted, added := n.BindToken(t, h)
		if stale, isHandle := evicted.(*Handle); isHandle && stale != nil {
			clog.Debug("evicting unclaimed handshake token", "peer", stale.Address.String())
			stale.Close()
		}
		if added {
			token, ok = t, true
			break
		}
	}
	if !ok {
		clog.Warn("could not mint a unique handshake token", "peer", addr.String())
		h.Close()
		return
	}

	if err := wire.WriteToken(conn, token); err != nil {
		clog.Debug("writing token reply failed", "peer", addr.String(), "err", err.Error())
		if v, popped := n.PopToken(token); popped {
			if stale, isHandle := v.(*Handle); isHandle {
				stale.Close()
			}
		}
	}
}

// handleSwapRoles answers a MsgReqSwapRoles: it redeems the token for the
// sibling socket issued it to, pairs that socket with this one as the
// two halves of a PeerLink, and brings both sockets' driver/read loops
// up.
func handleSwapRoles(n *node.Node, conn net.Conn, addr wire.Address, body []byte) {
	token, peerAddr, err := wire.DecodeSwapRoles(body)
	if err != nil {
		clog.Debug("malformed swap-roles body", "peer", addr.String(), "err", err.Error())
		wire.WriteReply(conn, wire.ReplyStop)
		n.ReleasePeerSlot()
		conn.Close()
		return
	}

	val, ok := n.PopToken(token)
	if !ok {
		clog.Debug(errUnknownToken.Error(), "peer", addr.String())
		wire.WriteReply(conn, wire.ReplyStop)
		n.ReleasePeerSlot()
		conn.Close()
		return
	}
	inHandle, ok := val.(*Handle)
	if !ok || inHandle == nil {
		clog.Debug(errUnknownToken.Error(), "peer", addr.String())
		wire.WriteReply(conn, wire.ReplyStop)
		n.ReleasePeerSlot()
		conn.Close()
		return
	}

	if err := wire.WriteReply(conn, wire.ReplyProceed); err != nil {
		clog.Debug("replying to swap-roles failed", "peer", addr.String(), "err", err.Error())
		inHandle.Close()
		n.ReleasePeerSlot()
		conn.Close()
		return
	}

	outHandle := NewHandle(conn, peerAddr, n.ReleasePeerSlot)
	link := NewPeerLink(n, peerAddr, inHandle, outHandle)
	n.AddConnectedAddress(peerAddr, link)

	go driveHandle(inHandle)
	go driveHandle(outHandle)
	go serveRequests(n, inHandle)
}

// DialPeer opens the two sockets one peer connection requires and runs
// the Client half of the handshake: REQ_TOKEN on the socket that becomes
// this node's outbound role, then REQ_SWAP_ROLES carrying that token and
// this node's own public address on the socket that becomes its inbound
// role. Mirrors the original reference's PeerAdder opening both sockets
// before handing them to a fresh Server/Client pair.
func DialPeer(n *node.Node, addr wire.Address) error {
	n.AcquirePeerSlot()
	n.AcquirePeerSlot()
	slots := 2
	releaseUnused := func() {
		for ; slots > 0; slots-- {
			n.ReleasePeerSlot()
		}
	}

	outConn, err := net.DialTimeout("tcp", addr.String(), node.ConnectionTimeout)
	if err != nil {
		releaseUnused()
		return err
	}
	if err := wire.WriteMessage(outConn, wire.MsgReqToken, nil); err != nil {
		outConn.Close()
		releaseUnused()
		return err
	}
	token, err := wire.ReadToken(outConn, node.ConnectionTimeout)
	if err != nil {
		outConn.Close()
		releaseUnused()
		return err
	}

	inConn, err := net.DialTimeout("tcp", addr.String(), node.ConnectionTimeout)
	if err != nil {
		outConn.Close()
		releaseUnused()
		return err
	}
	swapBody := wire.EncodeSwapRoles(token, n.PublicAddress())
	if err := wire.WriteMessage(inConn, wire.MsgReqSwapRoles, swapBody); err != nil {
		outConn.Close()
		inConn.Close()
		releaseUnused()
		return err
	}
	reply, err := wire.ReadReply(inConn, node.ConnectionTimeout)
	if err != nil {
		outConn.Close()
		inConn.Close()
		releaseUnused()
		return err
	}
	if reply != wire.ReplyProceed {
		outConn.Close()
		inConn.Close()
		releaseUnused()
		return errTokenRejected
	}

	inHandle := NewHandle(inConn, addr, n.ReleasePeerSlot)
	outHandle := NewHandle(outConn, addr, n.ReleasePeerSlot)
	slots = 0 // both permits now owned by the handles' own release funcs
	link := NewPeerLink(n, addr, inHandle, outHandle)
	n.AddConnectedAddress(addr, link)

	go driveHandle(inHandle)
	go driveHandle(outHandle)
	go serveRequests(n, inHandle)
	return nil
}

func addressOf(a net.Addr) wire.Address {
	tcp, ok := a.(*net.TCPAddr)
	if !ok {
		return wire.Address{}
	}
	port := uint16(tcp.Port)
	return wire.Address{IP: tcp.IP, Port: port}
}
