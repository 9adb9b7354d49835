package work

import (
	"context"

	"github.com/kma-coin/kmacoin/node"
	"github.com/kma-coin/kmacoin/objects"
	"github.com/kma-coin/kmacoin/p2p"
	"github.com/kma-coin/kmacoin/wire"
)

// Broadcaster drains n.ValidObjectQueue, relaying each validated
// transaction or block to every connected peer except the one it arrived
// from (if any — locally originated objects, like a freshly mined block,
// carry no From and go to every peer). Mirrors
// `atnode/workers/broadcaster.py`.
func Broadcaster(ctx context.Context, n *node.Node) {
	for {
		item, ok := n.ValidObjectQueue.Get()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		env := item.(*p2p.Envelope)
		var origin node.PeerHandle
		if env.From != nil {
			origin = env.From
		}

		switch payload := env.Payload.(type) {
		case *objects.Transaction:
			id := payload.ID()
			body := payload.Encode(nil)
			for _, peer := range n.PeersExcept(origin) {
				peer.Inform(wire.MsgInfTransaction, wire.EncodeAnnounceID(id), wire.MsgTransaction, body)
			}
		case *objects.Block:
			id := payload.ID()
			body := payload.Encode(nil)
			for _, peer := range n.PeersExcept(origin) {
				peer.Inform(wire.MsgInfBlock, wire.EncodeAnnounceID(id), wire.MsgBlock, body)
			}
		default:
			wlog.Debug("broadcaster ignoring unknown payload type")
		}
	}
}
