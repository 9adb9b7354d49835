package p2p

import (
	"context"

	"github.com/kma-coin/kmacoin/node"
)

// PeerAdder waits for the connected peer count to fall below
// Config.MinPeers, then pulls a random unconnected address and dials it.
// Mirrors the original reference's `atnode/workers/peeradder.py`, which
// runs the same wait-then-dial loop on its own thread.
func PeerAdder(ctx context.Context, n *node.Node) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n.WaitForPeerShortage()
		addr := n.PopRandomUnconnectedAddress()

		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := DialPeer(n, addr); err != nil {
			clog.Debug("dial failed", "addr", addr.String(), "err", err.Error())
			continue
		}
	}
}
