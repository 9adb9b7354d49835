package node

import "github.com/kma-coin/kmacoin/common"

// Event is something a Node wants to surface to an observer — a
// BlockVisualizer dashboard, a test harness, or simply the logger sink.
// Kept as a minimal interface so a node can run with no observer attached
// (NullSink) without special-casing every call site.
type Event interface {
	isEvent()
}

// BlockAddedEvent fires whenever AddBlock successfully extends a branch,
// whether or not that branch became the new tip.
type BlockAddedEvent struct {
	BlockID    common.Hash
	Height     int
	BecameHead bool
}

func (BlockAddedEvent) isEvent() {}

// PeerConnectedEvent fires when a peer slot is taken.
type PeerConnectedEvent struct {
	Address string
}

func (PeerConnectedEvent) isEvent() {}

// PeerDisconnectedEvent fires when a peer slot is freed.
type PeerDisconnectedEvent struct {
	Address string
}

func (PeerDisconnectedEvent) isEvent() {}

// EventSink receives Node lifecycle events. Implementations must not
// block the caller for long: a slow sink (e.g. a remote visualizer) should
// buffer internally.
type EventSink interface {
	Emit(Event)
}

// NullSink discards every event, the default when no observer is
// configured.
type NullSink struct{}

func (NullSink) Emit(Event) {}

// ChannelSink forwards events onto a channel, letting a BlockVisualizer
// process or a test consume them without polling the node directly. The
// channel is never closed by the sink; the owner of the channel is
// responsible for that.
type ChannelSink struct {
	ch chan<- Event
}

// NewChannelSink returns a sink that forwards onto ch, dropping events
// if ch is full rather than blocking the node's worker goroutines.
func NewChannelSink(ch chan<- Event) *ChannelSink {
	return &ChannelSink{ch: ch}
}

func (s *ChannelSink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}
