package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/kma-coin/kmacoin/common"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/params"
)

// maxFrameSize bounds a single message body, guarding against a
// malicious or corrupt peer claiming an absurd length prefix and
// exhausting memory on read.
const maxFrameSize = 16 << 20

// WriteMessage frames a message as [type byte][4-byte big-endian
// length][body] and writes it to conn, resetting the write deadline to
// ConnectionTimeout first.
func WriteMessage(conn net.Conn, typ MsgType, body []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(params.ConnectionTimeout)); err != nil {
		return err
	}
	header := make([]byte, 5)
	header[0] = byte(typ)
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))
	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("wire: writing header: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := conn.Write(body); err != nil {
		return fmt.Errorf("wire: writing body: %w", err)
	}
	return nil
}

// ReadMessage blocks until a full framed message arrives on conn,
// resetting the read deadline to PeerTimeout first — a connected peer is
// allowed to stay silent between messages for much longer than the
// handshake itself is allowed to take. Use ReadMessageDeadline directly
// where a read should fail fast on ConnectionTimeout instead (the opening
// handshake message, a single-block request's reply).
func ReadMessage(conn net.Conn) (MsgType, []byte, error) {
	return ReadMessageDeadline(conn, params.PeerTimeout)
}

// ReadMessageDeadline is ReadMessage with an explicit read deadline,
// letting a caller in the middle of a handshake (which should fail fast)
// use a shorter budget than an already-established connection's normal
// per-message wait.
func ReadMessageDeadline(conn net.Conn, timeout time.Duration) (MsgType, []byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, nil, err
	}
	header := make([]byte, 5)
	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, nil, fmt.Errorf("wire: reading header: %w", err)
	}
	typ := MsgType(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("wire: frame of %d bytes exceeds limit", length)
	}
	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(conn, body); err != nil {
			return 0, nil, fmt.Errorf("wire: reading body: %w", err)
		}
	}
	return typ, body, nil
}

// EncodeAddress appends a.IP (always written as a 16-byte representation)
// and a.Port to buf.
func EncodeAddress(buf []byte, a Address) []byte {
	ip16 := a.IP.To16()
	if ip16 == nil {
		ip16 = make(net.IP, 16)
	}
	buf = append(buf, ip16...)
	port := make([]byte, 2)
	binary.BigEndian.PutUint16(port, a.Port)
	return append(buf, port...)
}

// DecodeAddress reads an Address from the front of b, returning the
// remaining bytes.
func DecodeAddress(b []byte) (Address, []byte, error) {
	if len(b) < 18 {
		return Address{}, nil, fmt.Errorf("wire: short buffer decoding address")
	}
	ip := net.IP(append([]byte(nil), b[:16]...))
	port := binary.BigEndian.Uint16(b[16:18])
	return Address{IP: ip, Port: port}, b[18:], nil
}

// EncodeAddressList appends a count byte followed by each address to buf.
// Panics if len(addrs) exceeds MaxAddrsPerReply, a programmer error, never
// a peer-controlled condition at encode time.
func EncodeAddressList(buf []byte, addrs []Address) []byte {
	if len(addrs) > MaxAddrsPerReply {
		panic("wire: address list exceeds MaxAddrsPerReply")
	}
	buf = append(buf, byte(len(addrs)))
	for _, a := range addrs {
		buf = EncodeAddress(buf, a)
	}
	return buf
}

// DecodeAddressList reads an address list from the front of b, returning
// the remaining bytes.
func DecodeAddressList(b []byte) ([]Address, []byte, error) {
	if len(b) < 1 {
		return nil, nil, fmt.Errorf("wire: short buffer decoding address list count")
	}
	count := int(b[0])
	b = b[1:]
	addrs := make([]Address, 0, count)
	for i := 0; i < count; i++ {
		var a Address
		var err error
		a, b, err = DecodeAddress(b)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: decoding address %d: %w", i, err)
		}
		addrs = append(addrs, a)
	}
	return addrs, b, nil
}

// EncodeReqBlocks encodes an MsgReqBlocks body: the block ID to start
// after.
func EncodeReqBlocks(after common.Hash) []byte {
	return append([]byte(nil), after.Bytes()...)
}

// DecodeReqBlocks reads the block ID an MsgReqBlocks body asks to start
// after.
func DecodeReqBlocks(b []byte) (common.Hash, error) {
	if len(b) != common.HashSize {
		return common.Hash{}, fmt.Errorf("wire: malformed req-blocks body")
	}
	return common.BytesToHash(b), nil
}

// EncodeReqBlock encodes an MsgReqBlock body: the single block ID
// requested.
func EncodeReqBlock(id common.Hash) []byte {
	return append([]byte(nil), id.Bytes()...)
}

// DecodeReqBlock reads the block ID an MsgReqBlock body names.
func DecodeReqBlock(b []byte) (common.Hash, error) {
	if len(b) != common.HashSize {
		return common.Hash{}, fmt.Errorf("wire: malformed req-block body")
	}
	return common.BytesToHash(b), nil
}

// EncodeAnnounceID encodes the id-only body of an MsgInfTransaction or
// MsgInfBlock announcement.
func EncodeAnnounceID(id common.Hash) []byte {
	return append([]byte(nil), id.Bytes()...)
}

// DecodeAnnounceID reads the ID named by an MsgInfTransaction or
// MsgInfBlock announcement.
func DecodeAnnounceID(b []byte) (common.Hash, error) {
	if len(b) != common.HashSize {
		return common.Hash{}, fmt.Errorf("wire: malformed announce body")
	}
	return common.BytesToHash(b), nil
}

// EncodeSwapRoles encodes an MsgReqSwapRoles body: the token obtained
// from the sibling socket's MsgReqToken, followed by the sender's own
// dialable Address.
func EncodeSwapRoles(token Token, addr Address) []byte {
	buf := append([]byte(nil), token.Bytes()...)
	return EncodeAddress(buf, addr)
}

// DecodeSwapRoles reads an MsgReqSwapRoles body.
func DecodeSwapRoles(b []byte) (Token, Address, error) {
	if len(b) < TokenSize {
		return Token{}, Address{}, fmt.Errorf("wire: short buffer decoding swap-roles token")
	}
	token, err := BytesToToken(b[:TokenSize])
	if err != nil {
		return Token{}, Address{}, err
	}
	addr, rest, err := DecodeAddress(b[TokenSize:])
	if err != nil {
		return Token{}, Address{}, fmt.Errorf("wire: decoding swap-roles address: %w", err)
	}
	if len(rest) != 0 {
		return Token{}, Address{}, fmt.Errorf("wire: trailing bytes in swap-roles body")
	}
	return token, addr, nil
}

// WriteReply writes a single raw ReplyCode byte to conn — the answer to
// MsgPing, MsgReqSwapRoles or an MsgInf* announcement, none of which
// warrant a full framed message for a one-byte verdict.
func WriteReply(conn net.Conn, code ReplyCode) error {
	if err := conn.SetWriteDeadline(time.Now().Add(params.ConnectionTimeout)); err != nil {
		return err
	}
	_, err := conn.Write([]byte{byte(code)})
	return err
}

// ReadReply reads a single raw ReplyCode byte from conn with the given
// deadline.
func ReadReply(conn net.Conn, timeout time.Duration) (ReplyCode, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	var b [1]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return 0, fmt.Errorf("wire: reading reply: %w", err)
	}
	return ReplyCode(b[0]), nil
}

// WriteToken writes a raw, unframed Token to conn — the reply to
// MsgReqToken, carried at its own fixed width rather than through the
// generic message envelope.
func WriteToken(conn net.Conn, t Token) error {
	if err := conn.SetWriteDeadline(time.Now().Add(params.ConnectionTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(t.Bytes())
	return err
}

// ReadToken reads a raw Token from conn with the given deadline.
func ReadToken(conn net.Conn, timeout time.Duration) (Token, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Token{}, err
	}
	var buf [TokenSize]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		return Token{}, fmt.Errorf("wire: reading token: %w", err)
	}
	return BytesToToken(buf[:])
}

// EncodeBlockList appends a count byte followed by each block's encoded
// form, length-prefixed per block so a reader can skip a malformed entry
// boundary without losing frame sync.
func EncodeBlockList(buf []byte, blocks []*objects.Block) []byte {
	if len(blocks) > MaxBlocksPerReply {
		panic("wire: block list exceeds MaxBlocksPerReply")
	}
	buf = append(buf, byte(len(blocks)))
	for _, blk := range blocks {
		body := blk.Encode(nil)
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(body)))
		buf = append(buf, lenBuf...)
		buf = append(buf, body...)
	}
	return buf
}

// DecodeBlockList reads a block list from the front of b, returning the
// remaining bytes.
func DecodeBlockList(b []byte) ([]*objects.Block, []byte, error) {
	if len(b) < 1 {
		return nil, nil, fmt.Errorf("wire: short buffer decoding block list count")
	}
	count := int(b[0])
	b = b[1:]
	blocks := make([]*objects.Block, 0, count)
	for i := 0; i < count; i++ {
		if len(b) < 4 {
			return nil, nil, fmt.Errorf("wire: short buffer decoding block length %d", i)
		}
		length := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < length {
			return nil, nil, fmt.Errorf("wire: short buffer decoding block body %d", i)
		}
		body := b[:length]
		b = b[length:]
		blk, rest, err := objects.DecodeBlock(body)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: decoding block %d: %w", i, err)
		}
		if len(rest) != 0 {
			return nil, nil, fmt.Errorf("wire: trailing bytes after block %d", i)
		}
		blocks = append(blocks, blk)
	}
	return blocks, b, nil
}
