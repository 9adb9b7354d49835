package p2p

import "errors"

var (
	errUnexpectedHandshakeReply = errors.New("p2p: peer sent an unexpected handshake reply")
	errTokenRejected            = errors.New("p2p: peer rejected our handshake token")
	errUnknownToken             = errors.New("p2p: no socket bound to the redeemed token")
	errBlockRequestFailed       = errors.New("p2p: block request failed or connection closed")
)
