package p2p

import (
	"context"
	"net"

	"github.com/kma-coin/kmacoin/node"
)

// Listener accepts inbound connections on Config.ListenAddr for as long
// as ctx is alive, handing each one to Accept in its own goroutine.
// Mirrors the original reference's `atnode/workers/listener.py`.
func Listener(ctx context.Context, n *node.Node) error {
	ln, err := net.Listen("tcp", n.Config.ListenAddr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	clog.Info("listening for peers", "addr", n.Config.ListenAddr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				clog.Warn("accept failed", "err", err.Error())
				continue
			}
		}
		go Accept(n, conn)
	}
}
