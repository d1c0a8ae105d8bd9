package wireformat

import (
	"math/big"
	"testing"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
)

func sampleProposalMsg() axontypes.ConsensusMessage {
	return axontypes.ConsensusMessage{
		Kind: axontypes.MessageKindProposal,
		Proposal: &axontypes.SignedProposal{
			Height: 5,
			Round:  1,
			Proposal: axontypes.Proposal{
				Height:   5,
				Round:    1,
				Proposer: common.HexToAddress("0x1"),
				TxHashes: []common.Hash{common.HexToHash("0xaa")},
			},
			Signature: []byte{1, 2, 3},
		},
	}
}

// Codec round-trip: for all valid messages m, decode(encode(m)) == m.
func TestMessageRoundTrip(t *testing.T) {
	cases := []axontypes.ConsensusMessage{
		sampleProposalMsg(),
		{
			Kind: axontypes.MessageKindVote,
			Vote: &axontypes.SignedVote{
				Height: 5, Round: 1, Kind: axontypes.VoteKindPrevote,
				Hash: common.HexToHash("0xbb"), Voter: common.HexToAddress("0x2"),
				Signature: []byte{9},
			},
		},
		{
			Kind: axontypes.MessageKindQC,
			QC: &axontypes.AggregatedVote{
				Height: 5, Round: 1, Kind: axontypes.VoteKindPrecommit,
				Hash: common.HexToHash("0xcc"), SignerBitmap: []byte{0xff},
				AggSignature: []byte{1, 2}, VoteWeight: 7,
			},
		},
		{
			Kind: axontypes.MessageKindChoke,
			Choke: &axontypes.SignedChoke{
				Height: 5, Round: 2, Voter: common.HexToAddress("0x3"), Signature: []byte{4},
			},
		},
		{
			Kind: axontypes.MessageKindRichStatus,
			RichStatus: &axontypes.RichStatus{
				Height: 6, Interval: 3000,
				Ratios: axontypes.TimerRatios{Propose: 1000, Prevote: 2000, Precommit: 3000, Brake: 4000},
			},
		},
	}

	for _, m := range cases {
		enc, err := EncodeMessage(m)
		require.NoError(t, err)

		decoded, err := DecodeMessage(enc)
		require.NoError(t, err)
		require.Equal(t, m.Kind, decoded.Kind)

		reenc, err := EncodeMessage(decoded)
		require.NoError(t, err)
		require.Equal(t, enc, reenc)
	}
}

func TestDecodeMessageRejectsTrailingBytes(t *testing.T) {
	enc, err := EncodeMessage(sampleProposalMsg())
	require.NoError(t, err)

	_, err = DecodeMessage(append(enc, 0xff))
	require.Error(t, err)
}

func TestDecodeMessageRejectsUnknownKind(t *testing.T) {
	raw, err := rlp.EncodeToBytes(envelope{Kind: 99, Payload: []byte{0x80}})
	require.NoError(t, err)

	_, err = DecodeMessage(raw)
	require.Error(t, err)
}

func TestTxBatchRoundTrip(t *testing.T) {
	to := common.HexToAddress("0x42")
	tx := axontypes.SignedTransaction{
		Unsigned: axontypes.UnsignedTransaction{
			ChainID:              big.NewInt(1),
			Nonce:                3,
			MaxPriorityFeePerGas: big.NewInt(1),
			GasPrice:             big.NewInt(2),
			GasLimit:             21000,
			Action:               axontypes.Action{To: &to},
			Value:                big.NewInt(10),
		},
		Sig:     axontypes.Signature{V: 27, R: big.NewInt(1), S: big.NewInt(2)},
		ChainID: big.NewInt(1),
		TxHash:  common.HexToHash("0xdead"),
	}
	createTx := tx
	createTx.Unsigned.Action = axontypes.Action{}

	enc, err := EncodeTxBatch([]axontypes.SignedTransaction{tx, createTx})
	require.NoError(t, err)

	decoded, err := DecodeTxBatch(enc)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.Equal(t, to, *decoded[0].Unsigned.Action.To)
	require.Nil(t, decoded[1].Unsigned.Action.To)
	require.Equal(t, tx.TxHash, decoded[0].TxHash)
}
