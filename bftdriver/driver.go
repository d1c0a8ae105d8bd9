// Package bftdriver implements the per-height, per-round BFT state
// machine of spec §4.1: Propose -> Prevote -> Precommit -> Commit | Choke.
// It is grounded on the teacher's slot-ticker/slot-processor goroutine
// pair (cmd/equa-beacon-engine/engine/engine.go: Engine.slotTicker,
// Engine.slotProcessor), generalized from a fixed-duration slot ticker
// into a deadline-driven phase timer and from a single proposer-check to
// a full propose/prevote/precommit/choke round. Proposer rotation and
// quorum math are delegated to the authority package; persistence and
// execution are delegated to the Adapter this driver is constructed with.
package bftdriver

import (
	"context"
	"sync"
	"time"

	"github.com/axonium/axon-core/authority"
	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Adapter is the capability surface the driver needs from the consensus
// adapter (spec §4.2): mempool access, block verification, commit, and
// outbound transport. It is satisfied by *adapter.Adapter in production
// and by a fake in driver tests.
type Adapter interface {
	GetTxsFromMempool(ctx context.Context, height, gasLimit uint64, txCountLimit int) ([]axontypes.SignedTransaction, error)
	CheckBlock(ctx context.Context, block axontypes.Block, proposal axontypes.SignedProposal) error
	Commit(ctx context.Context, block axontypes.Block, proposal axontypes.SignedProposal) (axontypes.RichStatus, error)
	Broadcast(ctx context.Context, msg axontypes.ConsensusMessage) error
	Transmit(ctx context.Context, peer common.Address, msg axontypes.ConsensusMessage) error
	GetMetadataUnchecked(ctx context.Context, height uint64) (axontypes.Metadata, error)

	// ResolveTxs returns the full transaction bodies for hashes seen in a
	// received proposal, persisting them to the signed-tx WAL keyed by
	// (height, round) so a crash before commit can recover them without
	// re-downloading from peers (spec §4.5).
	ResolveTxs(ctx context.Context, height, round uint64, hashes []common.Hash) ([]axontypes.SignedTransaction, error)
}

// Signer produces this node's signatures over consensus messages. The
// cryptographic primitive itself (BLS or secp256k1) is out of core scope
// per spec §1; the driver only needs the shape of a signer.
type Signer interface {
	Address() common.Address
	SignProposal(p axontypes.Proposal) ([]byte, error)
	SignVote(height, round uint64, kind axontypes.VoteKind, hash common.Hash) ([]byte, error)
	SignChoke(height, round uint64) ([]byte, error)
}

// WAL is the subset of consensuswal.ConsensusWAL the driver replays on
// restart and appends to on every phase transition (spec §4.5).
type WAL interface {
	Append(record axontypes.ConsensusWALRecord) error
	Load(height uint64) (axontypes.ConsensusWALRecord, bool, error)
}

// InboundMessage pairs a decoded consensus message with the peer it
// arrived from, the shape the network Reactor feeds into Driver.Inbox
// (spec §4.6).
type InboundMessage struct {
	From common.Address
	Msg  axontypes.ConsensusMessage
}

// ProposalBuilder assembles a Proposal's execution-derived fields (state
// root, receipts root, gas used) before the driver signs and broadcasts
// it. Kept as an interface so the driver package never imports the
// executor directly.
type ProposalBuilder interface {
	BuildProposal(ctx context.Context, height uint64, parentHash common.Hash, txs []axontypes.SignedTransaction, validators axontypes.AuthorityList) (axontypes.Proposal, error)
}

// Driver is the long-lived per-node consensus state machine. All state
// transitions happen on the single goroutine running Run; no other
// goroutine may mutate driver state (spec §5).
type Driver struct {
	adapter  Adapter
	signer   Signer
	wal      WAL
	builder  ProposalBuilder
	equivTracker *authority.EquivocationTracker

	Inbox chan InboundMessage

	mu sync.RWMutex // guards the fields read by Status() from other goroutines

	height uint64
	round  uint64
	phase  axontypes.ConsensusPhase

	validators axontypes.AuthorityList
	interval   uint64 // ms
	ratios     axontypes.TimerRatios

	lockHash  common.Hash
	lockRound uint64
	hasLock   bool

	// lastCommittedRound is the round the most recent height committed
	// at, used only to look up that height's winning proposal when a
	// new proposer needs its hash as the parent link.
	lastCommittedRound uint64

	// firstSeen records, per (height, round), the first proposal hash
	// accepted from the round's proposer (spec §4.1 tie-break rule).
	firstSeen map[roundKey]common.Hash
	proposals map[roundKey]axontypes.SignedProposal

	prevotes   map[roundKey]map[common.Address]axontypes.SignedVote
	precommits map[roundKey]map[common.Address]axontypes.SignedVote
	chokes     map[roundKey]map[common.Address]struct{}
	txBodies   map[roundKey][]axontypes.SignedTransaction

	deadline     time.Time
	deadlineKind axontypes.ConsensusPhase
}

type roundKey struct {
	Height uint64
	Round  uint64
}

// New constructs a Driver bootstrapped from status, the genesis or
// post-commit RichStatus the adapter publishes (spec §6 "Status
// bootstrap").
func New(adapter Adapter, signer Signer, wal WAL, builder ProposalBuilder, status axontypes.RichStatus) *Driver {
	return &Driver{
		adapter:      adapter,
		signer:       signer,
		wal:          wal,
		builder:      builder,
		equivTracker: authority.NewEquivocationTracker(),
		Inbox:        make(chan InboundMessage, 256),
		height:       status.Height,
		validators:   status.Verifiers,
		interval:     status.Interval,
		ratios:       status.Ratios,
		firstSeen:    make(map[roundKey]common.Hash),
		proposals:    make(map[roundKey]axontypes.SignedProposal),
		prevotes:     make(map[roundKey]map[common.Address]axontypes.SignedVote),
		precommits:   make(map[roundKey]map[common.Address]axontypes.SignedVote),
		chokes:       make(map[roundKey]map[common.Address]struct{}),
		txBodies:     make(map[roundKey][]axontypes.SignedTransaction),
	}
}

// Status is a read-only snapshot of the driver's position, safe to call
// from any goroutine (e.g. the operator CLI or an RPC status endpoint).
type Status struct {
	Height uint64
	Round  uint64
	Phase  axontypes.ConsensusPhase
}

func (d *Driver) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Status{Height: d.height, Round: d.round, Phase: d.phase}
}

// Run is the driver's single owning goroutine: it selects between
// inbound messages and the current phase deadline until ctx is
// cancelled, mirroring Engine.slotProcessor's select loop generalized
// from a fixed ticker to an explicit per-phase deadline.
func (d *Driver) Run(ctx context.Context) {
	d.replayWAL(ctx)
	d.enterRound(ctx, d.height, d.round)

	for {
		if ctx.Err() != nil {
			return
		}
		// This node's own votes are tallied in broadcastVote without
		// passing through handleVote, so quorum is re-checked here: a
		// quorum completed by the local vote advances without waiting for
		// another inbound vote.
		before := d.Status()
		d.maybeLock(ctx)
		d.maybeCommit(ctx)
		if d.Status() != before {
			continue
		}
		timer := time.NewTimer(time.Until(d.deadline))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case in, ok := <-d.Inbox:
			timer.Stop()
			if !ok {
				return
			}
			d.handleMessage(ctx, in)
		case <-timer.C:
			d.handleDeadline(ctx)
		}
	}
}

// replayWAL restores the round, lock, and last-seen QC recorded in the
// consensus WAL for the current height. Run then re-enters that round at
// the Propose phase, so the recorded phase itself is not resumed.
func (d *Driver) replayWAL(ctx context.Context) {
	record, ok, err := d.wal.Load(d.height)
	if err != nil {
		log.Warn("bftdriver: consensus WAL load failed, starting fresh", "height", d.height, "err", err)
		return
	}
	if !ok {
		return
	}
	d.round = record.Round
	d.phase = record.Phase
	if len(record.LockHash) > 0 {
		d.hasLock = true
		d.lockHash = common.BytesToHash(record.LockHash)
		d.lockRound = record.Round
	}
	if record.LastQC != nil {
		d.recordQC(*record.LastQC)
	}
	log.Info("bftdriver: resumed from consensus WAL", "height", d.height, "round", d.round, "phase", d.phase)
}

func (d *Driver) persistPhase(qc *axontypes.AggregatedVote) {
	record := axontypes.ConsensusWALRecord{Height: d.height, Round: d.round, Phase: d.phase, LastQC: qc}
	if d.hasLock {
		record.LockHash = d.lockHash.Bytes()
	}
	if err := d.wal.Append(record); err != nil {
		log.Error("bftdriver: consensus WAL append failed", "height", d.height, "round", d.round, "err", err)
	}
}
