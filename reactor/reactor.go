// Package reactor implements the network message demultiplexer of
// SPEC_FULL.md §4.6, grounded on
// _examples/original_source/core/network/src/reactor/mod.rs's
// MessageReactor: one entry point dispatching by endpoint scheme
// (Gossip, RpcCall, RpcResponse), a pending-call table keyed by
// (session id, rpc id) for matching responses back to their callers, and
// trust-feedback propagation to a peer manager. The P2P transport itself
// (session establishment, peer discovery) is out of core scope per
// spec §1; this package only owns the demultiplexing and correlation
// logic sitting immediately below the BFT driver.
package reactor

import (
	"context"
	"fmt"
	"sync"

	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/wireformat"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

// EndpointScheme is the wire-level framing of an inbound message,
// mirroring the Rust EndpointScheme enum (Gossip / RpcCall / RpcResponse).
type EndpointScheme int

const (
	SchemeGossip EndpointScheme = iota
	SchemeRpcCall
	SchemeRpcResponse
)

// TrustFeedback is the handler's verdict on the peer that sent a
// message, fed back to the PeerManager so misbehaving peers accumulate a
// worse score over time (spec §4.6, mirroring protocol::traits::TrustFeedback).
type TrustFeedback int

const (
	TrustWorse TrustFeedback = iota
	TrustBad
	TrustNeutral
	TrustGood
)

// MessageHandler processes one decoded consensus message from a peer and
// returns a trust verdict. bftdriver.Driver's InboundMessage channel is
// the production sink behind this interface.
type MessageHandler interface {
	Process(ctx context.Context, peer common.Address, msg axontypes.ConsensusMessage) TrustFeedback
}

// PeerManager receives trust feedback for a peer. Its scoring policy and
// any resulting disconnect/ban decision are out of core scope.
type PeerManager interface {
	ReportFeedback(peer common.Address, feedback TrustFeedback)
}

// RPCResult is the payload or error delivered to a pending RPC caller.
type RPCResult struct {
	Payload []byte
	Err     string
}

func (r RPCResult) Success() bool { return r.Err == "" }

type pendingKey struct {
	SessionID uint64
	RPCID     uuid.UUID
}

// PendingCalls is the correlation table matching an RpcResponse back to
// the goroutine awaiting it, keyed by (session_id, rpc_id) exactly as
// rpc_map.rs's RpcMap is (spec §4.6).
type PendingCalls struct {
	mu    sync.Mutex
	table map[pendingKey]chan RPCResult
}

func NewPendingCalls() *PendingCalls {
	return &PendingCalls{table: make(map[pendingKey]chan RPCResult)}
}

// Register allocates a new rpc id and a channel the caller can wait on,
// to be used before transmitting the outbound RpcCall.
func (p *PendingCalls) Register(sessionID uint64) (uuid.UUID, <-chan RPCResult) {
	id := uuid.New()
	ch := make(chan RPCResult, 1)
	p.mu.Lock()
	p.table[pendingKey{SessionID: sessionID, RPCID: id}] = ch
	p.mu.Unlock()
	return id, ch
}

// contains reports whether a pending call is still registered, the guard
// the reactor uses before delivering a response (spec §4.6 "no entry,
// maybe timeout" path).
func (p *PendingCalls) contains(sessionID uint64, rpcID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.table[pendingKey{SessionID: sessionID, RPCID: rpcID}]
	return ok
}

// take removes and returns the channel for (sessionID, rpcID), so a
// response (or a timeout cleanup) only ever delivers once.
func (p *PendingCalls) take(sessionID uint64, rpcID uuid.UUID) (chan RPCResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pendingKey{SessionID: sessionID, RPCID: rpcID}
	ch, ok := p.table[key]
	if ok {
		delete(p.table, key)
	}
	return ch, ok
}

// Cancel removes a pending call without delivering a result, used by a
// caller that gave up waiting (ctx cancelled) to prevent a late response
// from leaking the channel.
func (p *PendingCalls) Cancel(sessionID uint64, rpcID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.table, pendingKey{SessionID: sessionID, RPCID: rpcID})
}

// InboundFrame is the demultiplexer's unit of work: one message off the
// wire plus the envelope fields the transport layer attaches.
type InboundFrame struct {
	Peer      common.Address
	SessionID uint64
	Scheme    EndpointScheme
	RPCID     uuid.UUID // only meaningful for RpcCall/RpcResponse
	Payload   []byte
}

// Reactor is the single demultiplexing entry point every inbound frame
// passes through, corresponding to MessageReactor::react.
type Reactor struct {
	handler MessageHandler
	peers   PeerManager
	pending *PendingCalls
}

func New(handler MessageHandler, peers PeerManager, pending *PendingCalls) *Reactor {
	return &Reactor{handler: handler, peers: peers, pending: pending}
}

// React dispatches frame by its scheme (spec §4.6):
//   - Gossip and RpcCall both decode the payload as a ConsensusMessage and
//     hand it to the handler, reporting the handler's trust verdict.
//   - RpcResponse looks up the pending call by (session id, rpc id) and
//     delivers the payload decoded by decodeRPCResult, warning (not
//     erroring) on a miss — the
//     caller may simply have timed out already.
func (r *Reactor) React(ctx context.Context, frame InboundFrame) error {
	switch frame.Scheme {
	case SchemeGossip, SchemeRpcCall:
		msg, err := wireformat.DecodeMessage(frame.Payload)
		if err != nil {
			r.peers.ReportFeedback(frame.Peer, TrustBad)
			return fmt.Errorf("%w: reactor decode: %v", axontypes.ErrDecode, err)
		}
		feedback := r.handler.Process(ctx, frame.Peer, msg)
		r.peers.ReportFeedback(frame.Peer, feedback)
		return nil

	case SchemeRpcResponse:
		if !r.pending.contains(frame.SessionID, frame.RPCID) {
			log.Warn("reactor: rpc response with no pending call, maybe timeout", "session", frame.SessionID, "rpc", frame.RPCID)
			return nil
		}
		ch, ok := r.pending.take(frame.SessionID, frame.RPCID)
		if !ok {
			return nil
		}
		result := decodeRPCResult(frame.Payload)
		select {
		case ch <- result:
		default:
			log.Warn("reactor: rpc response dropped, receiver not waiting", "session", frame.SessionID, "rpc", frame.RPCID)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown endpoint scheme %d", axontypes.ErrDecode, frame.Scheme)
	}
}

// decodeRPCResult mirrors the Rust reactor's single leading status byte
// (0 = success, nonzero = error) ahead of the raw payload or UTF-8
// error message.
func decodeRPCResult(raw []byte) RPCResult {
	if len(raw) == 0 {
		return RPCResult{Err: "empty message"}
	}
	if raw[0] == 0 {
		return RPCResult{Payload: raw[1:]}
	}
	return RPCResult{Err: string(raw[1:])}
}

// EncodeRPCResult is the inverse framing Transmit should apply before
// sending a response frame, kept here so both sides of the protocol
// agree on the leading status byte's meaning.
func EncodeRPCResult(result RPCResult) []byte {
	if result.Success() {
		out := make([]byte, 1+len(result.Payload))
		out[0] = 0
		copy(out[1:], result.Payload)
		return out
	}
	out := make([]byte, 1+len(result.Err))
	out[0] = 1
	copy(out[1:], result.Err)
	return out
}
