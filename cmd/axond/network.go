package main

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// loopbackNetwork is a placeholder adapter.Network: the P2P transport
// (peer discovery, session management, wire delivery) is explicitly out
// of core scope (spec §1) and has no production implementation in this
// repository. It exists so a single-node deployment — and the operator
// CLI against it — has something concrete to construct the adapter with;
// a real deployment replaces this with a transport satisfying the same
// interface.
type loopbackNetwork struct{}

func (loopbackNetwork) Broadcast(_ context.Context, payload []byte) error {
	log.Debug("network: broadcast (no peers, single-node mode)", "bytes", len(payload))
	return nil
}

func (loopbackNetwork) Transmit(_ context.Context, peer common.Address, payload []byte) error {
	log.Debug("network: transmit (no peers, single-node mode)", "peer", peer, "bytes", len(payload))
	return nil
}
