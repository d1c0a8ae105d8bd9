package reactor

import (
	"context"
	"testing"

	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/wireformat"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	feedback TrustFeedback
	got      axontypes.ConsensusMessage
}

func (h *recordingHandler) Process(ctx context.Context, peer common.Address, msg axontypes.ConsensusMessage) TrustFeedback {
	h.got = msg
	return h.feedback
}

type recordingPeers struct {
	peer     common.Address
	feedback TrustFeedback
}

func (p *recordingPeers) ReportFeedback(peer common.Address, feedback TrustFeedback) {
	p.peer = peer
	p.feedback = feedback
}

func sampleVoteMessage(t *testing.T) axontypes.ConsensusMessage {
	t.Helper()
	return axontypes.ConsensusMessage{
		Kind: axontypes.MessageKindVote,
		Vote: &axontypes.SignedVote{
			Height: 10,
			Round:  1,
			Kind:   axontypes.VoteKindPrevote,
			Hash:   common.HexToHash("0xaa"),
			Voter:  common.HexToAddress("0xbb"),
		},
	}
}

func TestReactorGossipDeliversToHandlerAndReportsFeedback(t *testing.T) {
	handler := &recordingHandler{feedback: TrustGood}
	peers := &recordingPeers{}
	r := New(handler, peers, NewPendingCalls())

	payload, err := wireformat.EncodeMessage(sampleVoteMessage(t))
	require.NoError(t, err)

	peer := common.HexToAddress("0xcc")
	err = r.React(context.Background(), InboundFrame{Peer: peer, Scheme: SchemeGossip, Payload: payload})
	require.NoError(t, err)
	require.Equal(t, uint64(10), handler.got.Vote.Height)
	require.Equal(t, peer, peers.peer)
	require.Equal(t, TrustGood, peers.feedback)
}

func TestReactorRpcCallBadPayloadReportsTrustBad(t *testing.T) {
	handler := &recordingHandler{}
	peers := &recordingPeers{}
	r := New(handler, peers, NewPendingCalls())

	err := r.React(context.Background(), InboundFrame{Scheme: SchemeRpcCall, Payload: []byte{0xff, 0xff}})
	require.Error(t, err)
	require.Equal(t, TrustBad, peers.feedback)
}

func TestReactorRpcResponseDeliversToWaiter(t *testing.T) {
	pending := NewPendingCalls()
	r := New(&recordingHandler{}, &recordingPeers{}, pending)

	id, ch := pending.Register(1)
	payload := EncodeRPCResult(RPCResult{Payload: []byte("hello")})

	err := r.React(context.Background(), InboundFrame{SessionID: 1, RPCID: id, Scheme: SchemeRpcResponse, Payload: payload})
	require.NoError(t, err)

	select {
	case result := <-ch:
		require.True(t, result.Success())
		require.Equal(t, []byte("hello"), result.Payload)
	default:
		t.Fatal("expected a delivered result")
	}
}

func TestReactorRpcResponseWithNoPendingCallIsIgnored(t *testing.T) {
	r := New(&recordingHandler{}, &recordingPeers{}, NewPendingCalls())
	err := r.React(context.Background(), InboundFrame{SessionID: 9, RPCID: uuid.New(), Scheme: SchemeRpcResponse, Payload: []byte{0}})
	require.NoError(t, err)
}

func TestPendingCallsCancelPreventsDelivery(t *testing.T) {
	pending := NewPendingCalls()
	id, _ := pending.Register(1)
	pending.Cancel(1, id)
	require.False(t, pending.contains(1, id))
}

func TestEncodeDecodeRPCResultRoundTrip(t *testing.T) {
	ok := RPCResult{Payload: []byte{1, 2, 3}}
	require.Equal(t, ok, decodeRPCResult(EncodeRPCResult(ok)))

	failed := RPCResult{Err: "boom"}
	decoded := decodeRPCResult(EncodeRPCResult(failed))
	require.False(t, decoded.Success())
	require.Equal(t, "boom", decoded.Err)
}
