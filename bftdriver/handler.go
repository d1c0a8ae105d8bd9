package bftdriver

import (
	"context"

	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/reactor"
	"github.com/ethereum/go-ethereum/common"
)

// InboundHandler adapts a Driver's Inbox to reactor.MessageHandler, the
// seam the network reactor feeds decoded consensus messages through
// (spec §4.6). Trust scoring here is deliberately coarse: vote signatures
// (handleVote) and proposal content (CheckBlock, via handleProposal) are
// validated once the message reaches the driver's own goroutine; proposal
// and choke signatures are not verified there. The reactor only ever
// sees "accepted for processing" versus "failed to decode", the latter
// already handled by Reactor.React before this is called.
type InboundHandler struct {
	driver *Driver
}

// NewInboundHandler wraps driver for use as a reactor.MessageHandler.
func NewInboundHandler(driver *Driver) *InboundHandler {
	return &InboundHandler{driver: driver}
}

func (h *InboundHandler) Process(ctx context.Context, peer common.Address, msg axontypes.ConsensusMessage) reactor.TrustFeedback {
	select {
	case h.driver.Inbox <- InboundMessage{From: peer, Msg: msg}:
		return reactor.TrustNeutral
	case <-ctx.Done():
		return reactor.TrustNeutral
	}
}
