// Package adapter implements the Consensus Adapter of spec §4.2: the
// glue presenting the BFT driver's required interface (mempool fetch,
// block verification, commit, outbound transport, metadata lookup) over
// the executor, the world-state backend, the block store, the WALs and
// the status agent. It is grounded on consensus/equa.Equa, the teacher's
// facade composing several sub-managers (currentValidators, stakeManager)
// behind one struct and serializing its commit path — generalized here
// from go-ethereum's consensus.Engine interface shape into the spec's
// adapter surface, with the single commit mutex made an explicit
// ctx-aware semaphore instead of an implicit "only one goroutine calls
// this" convention.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/consensuswal"
	"github.com/axonium/axon-core/executor"
	"github.com/axonium/axon-core/store"
	"github.com/axonium/axon-core/worldstate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/semaphore"
)

// Mempool is the transaction source the adapter draws from to assemble
// a proposal, and the lookup path for resolving a received proposal's
// tx-hash commitments to full bodies (spec §4.2 get_txs_from_mempool).
type Mempool interface {
	Pending(ctx context.Context, gasLimit uint64, count int) ([]axontypes.SignedTransaction, error)
	ByHash(ctx context.Context, hashes []common.Hash) ([]axontypes.SignedTransaction, error)
	Remove(hashes []common.Hash)
}

// Network is the outbound transport surface (spec §4.2 broadcast/transmit).
// Its implementation is the P2P layer, explicitly out of core scope
// (spec §1); the adapter only needs this narrow interface.
type Network interface {
	Broadcast(ctx context.Context, payload []byte) error
	Transmit(ctx context.Context, peer common.Address, payload []byte) error
}

// MetadataProvider resolves the epoch metadata covering a height. The
// production implementation is MetadataIndex, a slice of epochs sorted by
// start height.
type MetadataProvider interface {
	EpochFor(height uint64) (axontypes.Metadata, bool)
	Append(m axontypes.Metadata)
	Genesis() axontypes.Metadata
}

// InteropHook is the documented CKB-VM interoperation point (spec §1):
// consensus calls it, the call's effects are out of core scope. No
// production implementation ships in this repository (spec Non-goals);
// a nil hook is always a legal adapter configuration.
type InteropHook interface {
	OnCommit(ctx context.Context, height uint64) error
}

// Encoder turns a ConsensusMessage into wire bytes for Network, kept as
// an interface so the adapter does not import wireformat's encode/decode
// pair directly and tests can substitute a trivial codec.
type Encoder interface {
	Encode(axontypes.ConsensusMessage) ([]byte, error)
}

// Adapter is the production implementation of bftdriver.Adapter.
type Adapter struct {
	chainID uint64

	backend  worldstate.Backend
	executor *executor.Executor
	mempool  Mempool
	network  Network
	encoder  Encoder
	interop  InteropHook

	blocks *store.BlockStore

	txWAL   *consensuswal.SignedTxWAL
	consWAL *consensuswal.ConsensusWAL
	status  *consensuswal.StatusAgent

	metadata MetadataProvider

	// commitSem serializes Commit with any other state-mutating entry
	// point, the single async mutex spec §4.2/§5 require. A
	// weighted-1 semaphore gives ctx-aware acquisition, unlike a plain
	// sync.Mutex, so a cancelled caller does not block forever waiting
	// on an in-flight commit.
	commitSem *semaphore.Weighted
}

// New constructs an Adapter. status must already be seeded with either
// the genesis bootstrap RichStatus or the last persisted one.
func New(chainID uint64, backend worldstate.Backend, exec *executor.Executor, mempool Mempool, network Network, encoder Encoder, blocks *store.BlockStore, txWAL *consensuswal.SignedTxWAL, consWAL *consensuswal.ConsensusWAL, status *consensuswal.StatusAgent, metadata MetadataProvider, interop InteropHook) *Adapter {
	return &Adapter{
		chainID:   chainID,
		backend:   backend,
		executor:  exec,
		mempool:   mempool,
		network:   network,
		encoder:   encoder,
		interop:   interop,
		blocks:    blocks,
		txWAL:     txWAL,
		consWAL:   consWAL,
		status:    status,
		metadata:  metadata,
		commitSem: semaphore.NewWeighted(1),
	}
}

// Bootstrap builds the synthetic RichStatus for height 1 the driver
// starts from at genesis (spec §6 "Status bootstrap").
func Bootstrap(genesis axontypes.Metadata) axontypes.RichStatus {
	return axontypes.RichStatus{
		Height:    1,
		Interval:  genesis.Interval,
		Ratios:    genesis.Ratios,
		Verifiers: genesis.Verifiers,
	}
}

// GetTxsFromMempool returns the mempool's pending transactions in arrival
// order, bounded by gasLimit and txCountLimit. It does not check
// signatures, nonces or balances against the committed state; a
// transaction that fails those checks is caught only when executed.
func (a *Adapter) GetTxsFromMempool(ctx context.Context, height, gasLimit uint64, txCountLimit int) ([]axontypes.SignedTransaction, error) {
	txs, err := a.mempool.Pending(ctx, gasLimit, txCountLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: mempool pending: %v", axontypes.ErrBackend, err)
	}
	return txs, nil
}

// ResolveTxs returns the full bodies for the given hashes, first from
// the signed-tx WAL (the batch this node already saw for this round) and
// otherwise from the mempool, persisting whatever it finds back to the
// WAL so a crash can recover the same batch (spec §4.5).
func (a *Adapter) ResolveTxs(ctx context.Context, height, round uint64, hashes []common.Hash) ([]axontypes.SignedTransaction, error) {
	if cached, ok, err := a.txWAL.Load(height, round); err == nil && ok {
		return cached, nil
	}
	txs, err := a.mempool.ByHash(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("%w: mempool lookup: %v", axontypes.ErrBackend, err)
	}
	if len(txs) != len(hashes) {
		return nil, fmt.Errorf("%w: mempool missing %d of %d proposed transactions", axontypes.ErrDecode, len(hashes)-len(txs), len(hashes))
	}
	if err := a.txWAL.Append(height, round, txs); err != nil {
		log.Warn("adapter: signed-tx WAL append failed", "height", height, "round", round, "err", err)
	}
	return txs, nil
}

// CheckBlock verifies a proposed block against spec §4.2's contract:
// header continuity, proposer authorization, the tx commitment, and a
// speculative re-execution matching the declared roots and gas used.
func (a *Adapter) CheckBlock(ctx context.Context, block axontypes.Block, proposal axontypes.SignedProposal) error {
	current := a.status.Current()
	if block.Header.Height != current.Height {
		return fmt.Errorf("%w: block height %d does not extend status height %d", axontypes.ErrConsensus, block.Header.Height, current.Height)
	}
	if !current.Verifiers.Contains(block.Header.Proposer) {
		return fmt.Errorf("%w: proposer %s not in authority list", axontypes.ErrAuthorization, block.Header.Proposer)
	}

	if block.Header.Height > 1 {
		parent, ok, err := a.blocks.GetBlockByHeight(block.Header.Height - 1)
		if err != nil {
			return fmt.Errorf("%w: load parent block: %v", axontypes.ErrBackend, err)
		}
		if !ok {
			return fmt.Errorf("%w: parent block at height %d not found", axontypes.ErrConsensus, block.Header.Height-1)
		}
		parentHash, err := parent.Header.Hash()
		if err != nil {
			return fmt.Errorf("%w: hash parent block: %v", axontypes.ErrBackend, err)
		}
		if block.Header.PrevHash != parentHash {
			return fmt.Errorf("%w: prev hash mismatch: have %s want %s", axontypes.ErrConsensus, block.Header.PrevHash, parentHash)
		}
		if block.Header.Timestamp <= parent.Header.Timestamp {
			return fmt.Errorf("%w: block timestamp %d does not advance past parent timestamp %d", axontypes.ErrConsensus, block.Header.Timestamp, parent.Header.Timestamp)
		}
	} else if block.Header.PrevHash != (common.Hash{}) {
		return fmt.Errorf("%w: genesis block must have a zero prev hash", axontypes.ErrConsensus)
	}

	const maxSkew = 30 * time.Second
	now := uint64(time.Now().Unix())
	skew := int64(block.Header.Timestamp) - int64(now)
	if skew > int64(maxSkew.Seconds()) {
		return fmt.Errorf("%w: block timestamp %d too far ahead of local clock", axontypes.ErrConsensus, block.Header.Timestamp)
	}

	hashes := make([]common.Hash, len(block.Txs))
	for i, tx := range block.Txs {
		hashes[i] = tx.TxHash
	}
	if axontypes.TxHashesCommitment(hashes) != block.Header.TxHashesRoot {
		return fmt.Errorf("%w: transaction commitment mismatch", axontypes.ErrConsensus)
	}

	snapshot := a.backend.Snapshot()
	resp, err := a.executor.Exec(ctx, snapshot, block.Header, block.Txs, current.Verifiers)
	if err != nil {
		return fmt.Errorf("%w: speculative execution: %v", axontypes.ErrBackend, err)
	}
	if resp.StateRoot != block.Header.StateRoot {
		return fmt.Errorf("%w: state root mismatch: have %s want %s", axontypes.ErrConsensus, resp.StateRoot, block.Header.StateRoot)
	}
	if resp.ReceiptsRoot != block.Header.ReceiptsRoot {
		return fmt.Errorf("%w: receipts root mismatch", axontypes.ErrConsensus)
	}
	if resp.GasUsed != block.Header.GasUsed {
		return fmt.Errorf("%w: gas used mismatch: have %d want %d", axontypes.ErrConsensus, resp.GasUsed, block.Header.GasUsed)
	}
	return nil
}

// Commit executes the block for real against the live backend (Exec
// commits the new state there), then persists block and receipts in one
// batch; the state commit and the block write are two separate steps,
// not one atomic write. It then prunes the WALs, rolls the
// epoch if the height crossed a boundary, and returns the RichStatus for
// height+1 (spec §4.2). It is the sole writer of a.backend and is
// serialized against any other commit-path caller by commitSem.
func (a *Adapter) Commit(ctx context.Context, block axontypes.Block, proposal axontypes.SignedProposal) (axontypes.RichStatus, error) {
	if err := a.commitSem.Acquire(ctx, 1); err != nil {
		return axontypes.RichStatus{}, fmt.Errorf("%w: acquire commit lock: %v", axontypes.ErrBackend, err)
	}
	defer a.commitSem.Release(1)

	current := a.status.Current()
	resp, err := a.executor.Exec(ctx, a.backend, block.Header, block.Txs, current.Verifiers)
	if err != nil {
		// Backend errors during commit are fatal per spec §7: the
		// caller must not ack consensus commit without a flush, so the
		// error propagates rather than being swallowed here.
		return axontypes.RichStatus{}, fmt.Errorf("%w: exec: %v", axontypes.ErrBackend, err)
	}

	// Block and receipts are written in one pebble batch so a crash
	// between the two can never leave a block without its receipts; the
	// WAL prune and mempool eviction below are best-effort cleanup that a
	// restart safely redoes from the persisted block, not data loss risks.
	if err := a.blocks.PutBlockAndReceipts(block, resp.Receipts); err != nil {
		return axontypes.RichStatus{}, fmt.Errorf("%w: persist block and receipts: %v", axontypes.ErrBackend, err)
	}

	if err := a.txWAL.Prune(block.Header.Height); err != nil {
		log.Warn("adapter: signed-tx WAL prune failed", "height", block.Header.Height, "err", err)
	}
	if err := a.consWAL.Prune(block.Header.Height); err != nil {
		log.Warn("adapter: consensus WAL prune failed", "height", block.Header.Height, "err", err)
	}

	hashes := make([]common.Hash, len(block.Txs))
	for i, tx := range block.Txs {
		hashes[i] = tx.TxHash
	}
	a.mempool.Remove(hashes)

	nextHeight := block.Header.Height + 1
	verifiers, interval, ratios := current.Verifiers, current.Interval, current.Ratios
	if epoch, ok := a.metadata.EpochFor(nextHeight); ok {
		verifiers, interval, ratios = epoch.Verifiers, epoch.Interval, epoch.Ratios
	}

	next := axontypes.RichStatus{
		Height:    nextHeight,
		Interval:  interval,
		Ratios:    ratios,
		Verifiers: verifiers,
	}
	a.status.Update(next)

	if a.interop != nil {
		if err := a.interop.OnCommit(ctx, block.Header.Height); err != nil {
			log.Warn("adapter: interop hook failed, continuing", "height", block.Header.Height, "err", err)
		}
	}

	log.Info("adapter: committed block", "height", block.Header.Height, "txs", len(block.Txs), "gasUsed", resp.GasUsed)
	return next, nil
}

// Broadcast and Transmit encode msg and hand it to the network layer.
func (a *Adapter) Broadcast(ctx context.Context, msg axontypes.ConsensusMessage) error {
	payload, err := a.encoder.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: encode outbound message: %v", axontypes.ErrDecode, err)
	}
	return a.network.Broadcast(ctx, payload)
}

func (a *Adapter) Transmit(ctx context.Context, peer common.Address, msg axontypes.ConsensusMessage) error {
	payload, err := a.encoder.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: encode outbound message: %v", axontypes.ErrDecode, err)
	}
	return a.network.Transmit(ctx, peer, payload)
}

// GetMetadataUnchecked returns the metadata for height without verifying
// the caller has already established that height falls in a valid
// epoch, per spec §4.2's documented "unchecked" contract.
func (a *Adapter) GetMetadataUnchecked(ctx context.Context, height uint64) (axontypes.Metadata, error) {
	if epoch, ok := a.metadata.EpochFor(height); ok {
		return epoch, nil
	}
	return axontypes.Metadata{}, fmt.Errorf("%w: no metadata for height %d", axontypes.ErrBackend, height)
}

// IsValidator implements syscontract.ValidatorChecker against the
// verifier list of the epoch covering blockNumber in the metadata index,
// falling back to the adapter's current status when no epoch covers it.
func (a *Adapter) IsValidator(blockNumber uint64, addr common.Address) bool {
	if epoch, ok := a.metadata.EpochFor(blockNumber); ok {
		return epoch.Verifiers.Contains(addr)
	}
	return a.status.Current().Verifiers.Contains(addr)
}
