package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenPoolPopReturnsBoundValue(t *testing.T) {
	tp := NewTokenPool(4)
	tok := Token{1, 2, 3, 4}

	evicted, ok := tp.Add(tok, "socket-a")
	require.True(t, ok)
	assert.Nil(t, evicted)

	val, ok := tp.Pop(tok)
	require.True(t, ok)
	assert.Equal(t, "socket-a", val)
}

func TestTokenPoolPopIsSingleUse(t *testing.T) {
	tp := NewTokenPool(4)
	tok := Token{9, 9, 9, 9}
	_, ok := tp.Add(tok, "socket-a")
	require.True(t, ok)

	_, ok = tp.Pop(tok)
	require.True(t, ok)

	_, ok = tp.Pop(tok)
	assert.False(t, ok, "a token may only be redeemed once")
}

func TestTokenPoolRejectsDuplicateToken(t *testing.T) {
	tp := NewTokenPool(4)
	tok := Token{1, 1, 1, 1}
	_, ok := tp.Add(tok, "first")
	require.True(t, ok)

	_, ok = tp.Add(tok, "second")
	assert.False(t, ok, "a collision must be rejected, not overwritten")
}

func TestTokenPoolEvictsOldestUnclaimedToken(t *testing.T) {
	tp := NewTokenPool(2)
	a := Token{1}
	b := Token{2}
	c := Token{3}

	_, ok := tp.Add(a, "a")
	require.True(t, ok)
	_, ok = tp.Add(b, "b")
	require.True(t, ok)

	evicted, ok := tp.Add(c, "c")
	require.True(t, ok)
	assert.Equal(t, "a", evicted, "the oldest unclaimed token must be evicted to make room")

	_, ok = tp.Pop(a)
	assert.False(t, ok)
	_, ok = tp.Pop(b)
	assert.True(t, ok)
	_, ok = tp.Pop(c)
	assert.True(t, ok)
}

func TestTokenPoolPopUnknownTokenFails(t *testing.T) {
	tp := NewTokenPool(4)
	_, ok := tp.Pop(Token{7, 7, 7, 7})
	assert.False(t, ok)
}
