package adapter

import (
	"context"
	"fmt"

	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/executor"
	"github.com/axonium/axon-core/worldstate"
	"github.com/ethereum/go-ethereum/common"
)

// ProposalBuilder implements bftdriver.ProposalBuilder: it speculatively
// executes the candidate transaction batch against a snapshot of the
// live backend to fill in a proposal's state root, receipts root and gas
// used before the driver signs and broadcasts it (spec §4.1/§4.3 — a
// proposer must know what it is proposing, not just what it wishes
// were true).
type ProposalBuilder struct {
	backend  worldstate.Backend
	executor *executor.Executor
	now      func() uint64
}

// NewProposalBuilder constructs a builder. now returns the wall-clock
// unix timestamp to stamp on the proposal; tests can substitute a fixed
// clock.
func NewProposalBuilder(backend worldstate.Backend, exec *executor.Executor, now func() uint64) *ProposalBuilder {
	return &ProposalBuilder{backend: backend, executor: exec, now: now}
}

func (b *ProposalBuilder) BuildProposal(ctx context.Context, height uint64, parentHash common.Hash, txs []axontypes.SignedTransaction, validators axontypes.AuthorityList) (axontypes.Proposal, error) {
	hashes := make([]common.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.TxHash
	}

	header := axontypes.Proposal{
		Height:       height,
		PrevHash:     parentHash,
		TxHashesRoot: axontypes.TxHashesCommitment(hashes),
		TxHashes:     hashes,
		Timestamp:    b.now(),
	}

	snapshot := b.backend.Snapshot()
	resp, err := b.executor.Exec(ctx, snapshot, header, txs, validators)
	if err != nil {
		return axontypes.Proposal{}, fmt.Errorf("%w: speculative build: %v", axontypes.ErrBackend, err)
	}

	header.StateRoot = resp.StateRoot
	header.ReceiptsRoot = resp.ReceiptsRoot
	header.GasUsed = resp.GasUsed
	return header, nil
}
