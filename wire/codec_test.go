package wire

import (
	"net"
	"testing"
	"time"

	"github.com/kma-coin/kmacoin/crypto"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	a := Address{IP: net.ParseIP("192.0.2.10"), Port: 7755}
	buf := EncodeAddress(nil, a)
	got, rest, err := DecodeAddress(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.True(t, a.IP.Equal(got.IP))
	assert.Equal(t, a.Port, got.Port)
}

func TestAddressListRoundTrip(t *testing.T) {
	addrs := []Address{
		{IP: net.ParseIP("10.0.0.1"), Port: 1},
		{IP: net.ParseIP("10.0.0.2"), Port: 2},
	}
	buf := EncodeAddressList(nil, addrs)
	got, rest, err := DecodeAddressList(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Len(t, got, 2)
}

func TestBlockListRoundTrip(t *testing.T) {
	_, pub, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := &objects.Transaction{Outputs: []*objects.Coin{{Value: 1, Owner: crypto.PublicKeyToBytes(pub)}}}
	blk := &objects.Block{PrevID: crypto.Hash([]byte("x")), Timestamp: 1, Transactions: []*objects.Transaction{tx}}

	buf := EncodeBlockList(nil, []*objects.Block{blk})
	got, rest, err := DecodeBlockList(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, got, 1)
	assert.Equal(t, blk.ID(), got[0].ID())
}

func TestMessageFramingOverPipe(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		done <- WriteMessage(client, MsgTransaction, []byte("payload"))
	}()

	typ, body, err := ReadMessage(server)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, MsgTransaction, typ)
	assert.Equal(t, []byte("payload"), body)
}

func TestReadMessageDeadlineUsesGivenTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	_, _, err := ReadMessageDeadline(server, time.Millisecond)
	assert.Error(t, err, "a short deadline with no writer must time out")
}

func TestReqBlocksRoundTrip(t *testing.T) {
	id := crypto.Hash([]byte("tip"))
	buf := EncodeReqBlocks(id)
	got, err := DecodeReqBlocks(buf)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestReqBlockRoundTrip(t *testing.T) {
	id := crypto.Hash([]byte("parent"))
	buf := EncodeReqBlock(id)
	got, err := DecodeReqBlock(buf)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestAnnounceIDRoundTrip(t *testing.T) {
	id := crypto.Hash([]byte("announced"))
	buf := EncodeAnnounceID(id)
	got, err := DecodeAnnounceID(buf)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestSwapRolesRoundTrip(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)
	addr := Address{IP: net.ParseIP("198.51.100.7"), Port: 9000}

	buf := EncodeSwapRoles(token, addr)
	gotToken, gotAddr, err := DecodeSwapRoles(buf)
	require.NoError(t, err)
	assert.Equal(t, token, gotToken)
	assert.True(t, addr.IP.Equal(gotAddr.IP))
	assert.Equal(t, addr.Port, gotAddr.Port)
}

func TestSwapRolesRejectsTrailingBytes(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)
	addr := Address{IP: net.ParseIP("198.51.100.7"), Port: 9000}
	buf := append(EncodeSwapRoles(token, addr), 0xFF)
	_, _, err = DecodeSwapRoles(buf)
	assert.Error(t, err)
}

func TestReplyRoundTripOverPipe(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- WriteReply(client, ReplyStop) }()

	got, err := ReadReply(server, time.Second)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, ReplyStop, got)
}

func TestTokenRoundTripOverPipe(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	token, err := NewToken()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- WriteToken(client, token) }()

	got, err := ReadToken(server, time.Second)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, token, got)
}

func TestBytesToTokenRejectsWrongLength(t *testing.T) {
	_, err := BytesToToken([]byte{1, 2, 3})
	assert.Error(t, err)
}
