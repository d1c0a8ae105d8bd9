// Package wireformat implements the canonical, length-prefixed,
// order-defined encoding used for every on-wire and on-disk structure in
// axon-core (spec §4.7). Encoding is delegated to
// github.com/ethereum/go-ethereum/rlp, which already gives the required
// properties: exactly one encoding per value, rejection of trailing
// bytes, and rejection of non-canonical integer encodings.
package wireformat

import (
	"fmt"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/rlp"
)

// envelope is the on-wire wrapper around a tagged consensus message: a
// one-byte kind discriminator followed by the RLP of the concrete
// payload. This mirrors the "tagged variant" shape of spec §3's
// Consensus Message Family without needing a custom union encoder.
type envelope struct {
	Kind    uint8
	Payload []byte
}

// EncodeMessage returns the canonical encoding of a ConsensusMessage.
func EncodeMessage(m axontypes.ConsensusMessage) ([]byte, error) {
	var payload any
	switch m.Kind {
	case axontypes.MessageKindProposal:
		if m.Proposal == nil {
			return nil, fmt.Errorf("%w: proposal kind with nil payload", axontypes.ErrDecode)
		}
		payload = m.Proposal
	case axontypes.MessageKindVote:
		if m.Vote == nil {
			return nil, fmt.Errorf("%w: vote kind with nil payload", axontypes.ErrDecode)
		}
		payload = m.Vote
	case axontypes.MessageKindQC:
		if m.QC == nil {
			return nil, fmt.Errorf("%w: QC kind with nil payload", axontypes.ErrDecode)
		}
		payload = m.QC
	case axontypes.MessageKindChoke:
		if m.Choke == nil {
			return nil, fmt.Errorf("%w: choke kind with nil payload", axontypes.ErrDecode)
		}
		payload = m.Choke
	case axontypes.MessageKindRichStatus:
		if m.RichStatus == nil {
			return nil, fmt.Errorf("%w: status kind with nil payload", axontypes.ErrDecode)
		}
		payload = m.RichStatus
	default:
		return nil, fmt.Errorf("%w: unknown message kind %d", axontypes.ErrDecode, m.Kind)
	}

	inner, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", axontypes.ErrDecode, err)
	}
	return rlp.EncodeToBytes(envelope{Kind: uint8(m.Kind), Payload: inner})
}

// DecodeMessage parses raw into a ConsensusMessage. Trailing bytes after a
// complete value, and unknown kind tags, are decode errors.
func DecodeMessage(raw []byte) (axontypes.ConsensusMessage, error) {
	var env envelope
	if err := rlp.DecodeBytes(raw, &env); err != nil {
		return axontypes.ConsensusMessage{}, fmt.Errorf("%w: envelope: %v", axontypes.ErrDecode, err)
	}

	msg := axontypes.ConsensusMessage{Kind: axontypes.MessageKind(env.Kind)}
	switch msg.Kind {
	case axontypes.MessageKindProposal:
		var p axontypes.SignedProposal
		if err := rlp.DecodeBytes(env.Payload, &p); err != nil {
			return axontypes.ConsensusMessage{}, fmt.Errorf("%w: proposal: %v", axontypes.ErrDecode, err)
		}
		msg.Proposal = &p
	case axontypes.MessageKindVote:
		var v axontypes.SignedVote
		if err := rlp.DecodeBytes(env.Payload, &v); err != nil {
			return axontypes.ConsensusMessage{}, fmt.Errorf("%w: vote: %v", axontypes.ErrDecode, err)
		}
		msg.Vote = &v
	case axontypes.MessageKindQC:
		var q axontypes.AggregatedVote
		if err := rlp.DecodeBytes(env.Payload, &q); err != nil {
			return axontypes.ConsensusMessage{}, fmt.Errorf("%w: qc: %v", axontypes.ErrDecode, err)
		}
		msg.QC = &q
	case axontypes.MessageKindChoke:
		var c axontypes.SignedChoke
		if err := rlp.DecodeBytes(env.Payload, &c); err != nil {
			return axontypes.ConsensusMessage{}, fmt.Errorf("%w: choke: %v", axontypes.ErrDecode, err)
		}
		msg.Choke = &c
	case axontypes.MessageKindRichStatus:
		var s axontypes.RichStatus
		if err := rlp.DecodeBytes(env.Payload, &s); err != nil {
			return axontypes.ConsensusMessage{}, fmt.Errorf("%w: status: %v", axontypes.ErrDecode, err)
		}
		msg.RichStatus = &s
	default:
		return axontypes.ConsensusMessage{}, fmt.Errorf("%w: unknown message kind %d", axontypes.ErrDecode, env.Kind)
	}
	return msg, nil
}

// EncodeTxBatch returns the canonical encoding of a signed transaction
// batch, the value stored in the signed-transactions WAL (spec §4.5).
func EncodeTxBatch(txs []axontypes.SignedTransaction) ([]byte, error) {
	wire := make([]axontypes.WireTransaction, len(txs))
	for i, tx := range txs {
		wire[i] = tx.ToWire()
	}
	enc, err := rlp.EncodeToBytes(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: tx batch: %v", axontypes.ErrDecode, err)
	}
	return enc, nil
}

// DecodeTxBatch is the inverse of EncodeTxBatch.
func DecodeTxBatch(raw []byte) ([]axontypes.SignedTransaction, error) {
	var wire []axontypes.WireTransaction
	if err := rlp.DecodeBytes(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: tx batch: %v", axontypes.ErrDecode, err)
	}
	txs := make([]axontypes.SignedTransaction, len(wire))
	for i, w := range wire {
		txs[i] = w.FromWire()
	}
	return txs, nil
}

// wireBlock is Block's disk form: the proposal header plus the
// transaction batch encoded the same way EncodeTxBatch does, so the
// block store shares a single transaction wire representation with the
// signed-tx WAL.
type wireBlock struct {
	Header axontypes.Proposal
	Txs    []axontypes.WireTransaction
}

// EncodeBlock returns the canonical encoding of a committed block, the
// value stored by the block store keyed by height (spec §6).
func EncodeBlock(block axontypes.Block) ([]byte, error) {
	wire := wireBlock{Header: block.Header, Txs: make([]axontypes.WireTransaction, len(block.Txs))}
	for i, tx := range block.Txs {
		wire.Txs[i] = tx.ToWire()
	}
	enc, err := rlp.EncodeToBytes(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: block: %v", axontypes.ErrDecode, err)
	}
	return enc, nil
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(raw []byte) (axontypes.Block, error) {
	var wire wireBlock
	if err := rlp.DecodeBytes(raw, &wire); err != nil {
		return axontypes.Block{}, fmt.Errorf("%w: block: %v", axontypes.ErrDecode, err)
	}
	block := axontypes.Block{Header: wire.Header, Txs: make([]axontypes.SignedTransaction, len(wire.Txs))}
	for i, w := range wire.Txs {
		block.Txs[i] = w.FromWire()
	}
	return block, nil
}
