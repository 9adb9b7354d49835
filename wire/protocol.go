// Package wire implements the node-to-node byte protocol: message type
// codes, field widths and framing, mirroring the original reference's
// `network/protocol.py` and `network/kmasocket.py`. Every request message
// is a one-byte type code followed by a length-prefixed body; replies to
// an announcement and a handshake token are each their own fixed-width
// wire grammar, exactly as narrow as the thing they carry.
package wire

import (
	"crypto/rand"
	"fmt"
	"net"
	"strconv"

	"github.com/kma-coin/kmacoin/params"
)

// MsgType identifies the kind of message that follows on the wire.
//
// The first nine codes are byte-exact with the original reference's
// `network/protocol.py`: a peer from either implementation recognizes the
// same code for the same request. Codes above them (MsgTransaction and
// up) are this implementation's own extension, carrying the payloads
// those requests and announcements exchange once a reply has authorized
// them — the original reference leaves these implicit in its
// inform()/receive() call sequence rather than assigning them codes of
// their own.
type MsgType byte

const (
	// MsgPing carries no body; the reply is a single ReplyPong byte.
	MsgPing MsgType = 0x00
	// MsgReqToken asks the receiving socket to mint and return a
	// single-use Token, the first half of the two-socket peer handshake.
	MsgReqToken MsgType = 0x01
	// MsgReqSwapRoles carries a Token obtained from a sibling socket's
	// MsgReqToken plus the sender's own public Address, and asks the
	// receiver to pair this socket with the one that issued the token.
	// The reply is a single ReplyProceed or ReplyStop byte.
	MsgReqSwapRoles MsgType = 0x02
	// MsgInfAddr announces a candidate peer Address (the full address,
	// not a digest — cheap enough that splitting it into an
	// announce-then-transfer round trip buys nothing). The reply is a
	// single ReplyProceed or ReplyStop byte.
	MsgInfAddr MsgType = 0x03
	// MsgInfTransaction announces a transaction by ID ahead of sending
	// it, so a peer that has already seen it can reply ReplyStop instead
	// of receiving the full payload again. On ReplyProceed, the sender
	// follows with a MsgTransaction carrying the encoded transaction.
	MsgInfTransaction MsgType = 0x04
	// MsgInfBlock is MsgInfTransaction's counterpart for blocks; a
	// ReplyProceed is followed by a MsgBlock payload.
	MsgInfBlock MsgType = 0x05
	// MsgReqBlock requests a single block by ID, used to pull a missing
	// ancestor out of band from whichever peer announced the orphan that
	// named it. The reply is a MsgBlock payload.
	MsgReqBlock MsgType = 0x06
	// MsgReqBlocks requests up to MaxBlocksPerReply blocks following a
	// given block ID, used during initial sync and reorg catch-up. The
	// reply is a MsgBlocks payload.
	MsgReqBlocks MsgType = 0x07
	// MsgReqAddrList requests up to MaxAddrsPerReply known peer
	// addresses. The reply is a MsgAddrList payload.
	MsgReqAddrList MsgType = 0x08

	// MsgTransaction carries a single transaction: the payload that
	// follows a ReplyProceed to MsgInfTransaction.
	MsgTransaction MsgType = 0x11
	// MsgBlock carries a single block: the payload that follows a
	// ReplyProceed to MsgInfBlock, or answers a MsgReqBlock.
	MsgBlock MsgType = 0x12
	// MsgBlocks is the reply to MsgReqBlocks: zero or more blocks.
	MsgBlocks MsgType = 0x13
	// MsgAddrList is the reply to MsgReqAddrList.
	MsgAddrList MsgType = 0x14
)

// The handshake's Token reply (MsgReqToken's answer) travels unframed,
// raw TokenSize bytes with no type code or length prefix — see
// WriteToken/ReadToken in codec.go — since both sides already know
// exactly how many bytes are coming and a type byte would buy nothing.

// ReplyCode is the single raw byte a Server writes back in answer to a
// request that admits only two outcomes, rather than a full framed
// message — PING's pong, and every MsgReqSwapRoles/MsgInf* announce.
type ReplyCode byte

const (
	// ReplyProceed grants the sender permission to continue: accept the
	// swapped role, or send the announced payload. It doubles as PING's
	// pong, matching the original reference's single REP_PROCEED code
	// serving both purposes.
	ReplyProceed ReplyCode = 0x00
	// ReplyStop declines: the token was unknown or already claimed, or
	// the announced transaction/block/address has already been seen.
	ReplyStop ReplyCode = 0x01
	// ReplyPong is PING's reply, numerically identical to ReplyProceed.
	ReplyPong = ReplyProceed
)

// TokenSize is the width, in bytes, of a handshake Token.
const TokenSize = 4

// Token is a single-use value a Server mints in reply to MsgReqToken and
// binds to the socket that asked for it; a sibling socket redeems it with
// MsgReqSwapRoles to prove it belongs to the same peer.
type Token [TokenSize]byte

// NewToken mints a random Token.
func NewToken() (Token, error) {
	var t Token
	if _, err := rand.Read(t[:]); err != nil {
		return Token{}, err
	}
	return t, nil
}

// Bytes returns the token's wire form.
func (t Token) Bytes() []byte { return t[:] }

// BytesToToken parses a token from exactly TokenSize bytes.
func BytesToToken(b []byte) (Token, error) {
	var t Token
	if len(b) != TokenSize {
		return t, fmt.Errorf("wire: token must be %d bytes, got %d", TokenSize, len(b))
	}
	copy(t[:], b)
	return t, nil
}

// Address is a dialable peer endpoint, the unit exchanged by
// MsgReqAddrList/MsgAddrList and MsgReqSwapRoles, and stored in a Node's
// address pools.
type Address struct {
	IP   net.IP
	Port uint16
}

// String renders the address as host:port, suitable for net.Dial.
func (a Address) String() string {
	return net.JoinHostPort(a.IP.String(), itoa(int(a.Port)))
}

// ParseAddress resolves a "host:port" string (as found in a config
// file's InitialPeers list) into an Address, doing the DNS/IP lookup
// `net.ResolveIPAddr` would otherwise force every caller to repeat.
func ParseAddress(hostport string) (Address, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Address{}, err
	}
	ipAddr, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return Address{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("wire: invalid port %q: %w", portStr, err)
	}
	return Address{IP: ipAddr.IP, Port: uint16(port)}, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [6]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// MaxBlocksPerReply re-exports the consensus-level cap on a single
// MsgBlocks payload, so the framing limits that are semantically protocol
// concerns are named in the wire package itself.
const MaxBlocksPerReply = params.MaxBlocks

// MaxAddrsPerReply re-exports the cap on a single MsgAddrList payload.
const MaxAddrsPerReply = params.MaxAddrs
