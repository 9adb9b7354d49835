package pool

import "sync"

// Token is a fixed-width handshake token key. Distinct from wire.Token so
// this package stays free of a wire dependency; callers convert between
// the two with a plain array conversion.
type Token [4]byte

// TokenPool is a fixed-capacity FIFO pool associating a caller-supplied
// value with a single-use token: unlike RecentSet, which only tracks
// membership, TokenPool holds the value bound to each token and removes
// it the moment it's claimed. Mirrors the original reference's
// `atnode/structures/pool.py` Pool class used to bind an in-flight
// socket to the token handed out for it during the peer handshake.
type TokenPool struct {
	mu       sync.Mutex
	capacity int
	order    []Token
	values   map[Token]interface{}
}

// NewTokenPool returns an empty TokenPool holding at most capacity
// unclaimed tokens.
func NewTokenPool(capacity int) *TokenPool {
	return &TokenPool{capacity: capacity, values: make(map[Token]interface{})}
}

// Add binds val to token, evicting the oldest unclaimed token if the pool
// is full. Returns ok false without storing anything if token is already
// bound (a collision a caller should retry with a freshly minted token).
// evicted is the value bumped out to make room, if any, so a caller
// holding a resource behind that value (an idle socket, say) can release
// it rather than leaking it.
func (p *TokenPool) Add(token Token, val interface{}) (evicted interface{}, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.values[token]; exists {
		return nil, false
	}
	if p.capacity > 0 && len(p.order) >= p.capacity {
		oldest := p.order[0]
		p.order = p.order[1:]
		evicted = p.values[oldest]
		delete(p.values, oldest)
	}
	p.order = append(p.order, token)
	p.values[token] = val
	return evicted, true
}

// Pop removes and returns the value bound to token, if any. A token may
// only be popped once.
func (p *TokenPool) Pop(token Token) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	val, ok := p.values[token]
	if !ok {
		return nil, false
	}
	delete(p.values, token)
	for i, t := range p.order {
		if t == token {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return val, true
}
