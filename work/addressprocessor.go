// Package work implements the node's processing goroutines — address
// gossip, block/transaction validation, orphan branch retry, broadcast
// relay and mining — each mirroring one of the original reference's
// `atnode/workers/*.py` modules but operating on p2p Envelopes pulled off
// a node.Node's queues rather than holding direct socket references.
package work

import (
	"context"

	"github.com/kma-coin/kmacoin/log"
	"github.com/kma-coin/kmacoin/node"
	"github.com/kma-coin/kmacoin/p2p"
	"github.com/kma-coin/kmacoin/wire"
)

var wlog = log.Root().New("module", "work")

// AddressProcessor drains n.AddrQueue: replying to address requests with
// the node's currently connected peers, and feeding freshly learned
// addresses into n's unconnected pool for PeerAdder to dial. Mirrors
// `atnode/workers/addressprocessor.py`.
func AddressProcessor(ctx context.Context, n *node.Node) {
	for {
		item, ok := n.AddrQueue.Get()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		env := item.(*p2p.Envelope)
		switch env.Type {
		case wire.MsgReqAddrList:
			addrs := n.ConnectedAddresses()
			if len(addrs) > wire.MaxAddrsPerReply {
				addrs = addrs[:wire.MaxAddrsPerReply]
			}
			env.From.Send(wire.MsgAddrList, wire.EncodeAddressList(nil, addrs))
		case wire.MsgAddrList:
			addrs, ok := env.Payload.([]wire.Address)
			if !ok {
				continue
			}
			for _, a := range addrs {
				n.AddUnconnectedAddress(a)
			}
		default:
			wlog.Debug("address processor ignoring message", "type", int(env.Type))
		}
	}
}
