package bftdriver

import (
	"context"
	"time"

	"github.com/axonium/axon-core/authority"
	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

func (d *Driver) key() roundKey { return roundKey{Height: d.height, Round: d.round} }

// enterRound starts (h, r) in the Propose phase: the deterministic
// proposer (authority.ProposerForRound, spec §4.1) either emits a
// proposal immediately or the node waits for one until the propose
// deadline. A prior lock (spec's "lock-release rule") is preserved
// across rounds: a locked node prevotes its locked hash (enterPrevote)
// and does not propose a block with a different hash.
func (d *Driver) enterRound(ctx context.Context, height, round uint64) {
	d.mu.Lock()
	d.height, d.round = height, round
	d.phase = axontypes.PhasePropose
	d.mu.Unlock()

	d.setDeadline(axontypes.PhasePropose, d.ratios.Propose)
	d.persistPhase(nil)

	proposer, err := authority.ProposerForRound(d.validators, height, round)
	if err != nil {
		log.Error("bftdriver: proposer selection failed", "height", height, "round", round, "err", err)
		return
	}
	if proposer != d.signer.Address() {
		return
	}
	d.propose(ctx, height, round)
}

func (d *Driver) propose(ctx context.Context, height, round uint64) {
	parentHash := d.lastProposalHash(height)

	txs, err := d.adapter.GetTxsFromMempool(ctx, height, blockGasLimit, maxTxCountPerBlock)
	if err != nil {
		log.Error("bftdriver: mempool fetch failed", "height", height, "err", err)
		return
	}

	proposal, err := d.builder.BuildProposal(ctx, height, parentHash, txs, d.validators)
	if err != nil {
		log.Error("bftdriver: build proposal failed", "height", height, "err", err)
		return
	}
	proposal.Round = round
	proposal.Proposer = d.signer.Address()

	// A prior lock constrains which hash this node may itself propose:
	// if the freshly built proposal hashes to anything other than the
	// locked hash, this node does not propose this round; its prevote
	// still goes to the locked hash (enterPrevote). handleQC may move the
	// lock to a hash justified by a higher-round QC.
	if d.hasLock && d.lockRound <= round {
		if h, err := proposal.Hash(); err == nil && h != d.lockHash {
			log.Debug("bftdriver: proposer holds a lock on a different hash, skipping self-proposal", "height", height, "round", round)
			return
		}
	}

	hash, err := proposal.Hash()
	if err != nil {
		log.Error("bftdriver: hash proposal failed", "err", err)
		return
	}
	sig, err := d.signer.SignProposal(proposal)
	if err != nil {
		log.Error("bftdriver: sign proposal failed", "err", err)
		return
	}
	signed := axontypes.SignedProposal{Height: height, Round: round, Proposal: proposal, Signature: sig}

	d.firstSeen[d.key()] = hash
	d.proposals[d.key()] = signed
	d.txBodies[d.key()] = txs

	if err := d.adapter.Broadcast(ctx, axontypes.ConsensusMessage{Kind: axontypes.MessageKindProposal, Proposal: &signed}); err != nil {
		log.Warn("bftdriver: broadcast proposal failed", "err", err)
	}

	// The proposer trusts its own proposal without waiting for it to
	// arrive back over the network, moving straight to Prevote.
	d.enterPrevote(ctx, hash)
}

func (d *Driver) lastProposalHash(height uint64) common.Hash {
	if height == 0 {
		return common.Hash{}
	}
	if prop, ok := d.proposals[roundKey{Height: height - 1, Round: d.lastCommittedRound}]; ok {
		if h, err := prop.Proposal.Hash(); err == nil {
			return h
		}
	}
	return common.Hash{}
}

func (d *Driver) handleMessage(ctx context.Context, in InboundMessage) {
	switch in.Msg.Kind {
	case axontypes.MessageKindProposal:
		d.handleProposal(ctx, in.From, *in.Msg.Proposal)
	case axontypes.MessageKindVote:
		d.handleVote(ctx, in.From, *in.Msg.Vote)
	case axontypes.MessageKindQC:
		d.handleQC(ctx, *in.Msg.QC)
	case axontypes.MessageKindChoke:
		d.handleChoke(ctx, *in.Msg.Choke)
	default:
		log.Debug("bftdriver: ignoring message kind outside the consensus path", "kind", in.Msg.Kind)
	}
}

// handleProposal accepts the first proposal seen for (h, r) from the
// designated proposer; a later, different proposal from the same
// proposer is equivocation evidence, recorded but non-blocking (spec
// §4.1 tie-break).
func (d *Driver) handleProposal(ctx context.Context, from common.Address, sp axontypes.SignedProposal) {
	if sp.Height != d.height || sp.Round != d.round || d.phase != axontypes.PhasePropose {
		return
	}
	proposer, err := authority.ProposerForRound(d.validators, sp.Height, sp.Round)
	if err != nil || sp.Proposal.Proposer != proposer || from != proposer {
		log.Debug("bftdriver: proposal from non-designated proposer, dropping", "from", from)
		return
	}

	hash, err := sp.Proposal.Hash()
	if err != nil {
		log.Debug("bftdriver: undecodable proposal hash, dropping", "err", err)
		return
	}
	if existing, ok := d.firstSeen[d.key()]; ok {
		if existing != hash {
			d.equivTracker.Observe(proposer, sp.Height, sp.Round, equivKindProposal, hash)
			log.Warn("bftdriver: equivocating proposal ignored", "proposer", proposer, "height", sp.Height, "round", sp.Round)
		}
		return
	}
	d.equivTracker.Observe(proposer, sp.Height, sp.Round, equivKindProposal, hash)
	d.firstSeen[d.key()] = hash
	d.proposals[d.key()] = sp

	txs, err := d.adapter.ResolveTxs(ctx, sp.Height, sp.Round, sp.Proposal.TxHashes)
	if err != nil {
		log.Warn("bftdriver: could not resolve proposal transactions, prevoting nil", "height", sp.Height, "round", sp.Round, "err", err)
		d.enterPrevote(ctx, common.Hash{})
		return
	}
	d.txBodies[d.key()] = txs

	block := axontypes.Block{Header: sp.Proposal, Txs: txs}
	if err := d.adapter.CheckBlock(ctx, block, sp); err != nil {
		log.Warn("bftdriver: proposal failed block verification, prevoting nil", "height", sp.Height, "round", sp.Round, "err", err)
		d.enterPrevote(ctx, common.Hash{})
		return
	}

	d.enterPrevote(ctx, hash)
}

func (d *Driver) enterPrevote(ctx context.Context, hash common.Hash) {
	d.mu.Lock()
	d.phase = axontypes.PhasePrevote
	d.mu.Unlock()
	d.setDeadline(axontypes.PhasePrevote, d.ratios.Prevote)
	d.persistPhase(nil)

	voteHash := hash
	if d.hasLock && d.lockHash != hash {
		// Lock-release rule: without a higher-round QC justifying hash,
		// a locked validator must not prevote for a different hash.
		voteHash = d.lockHash
	}
	d.broadcastVote(ctx, axontypes.VoteKindPrevote, voteHash)
}

func (d *Driver) handleVote(ctx context.Context, from common.Address, v axontypes.SignedVote) {
	if v.Height != d.height || v.Round != d.round {
		return
	}
	if ok, err := VerifyVoteSignature(v); err != nil || !ok {
		log.Debug("bftdriver: vote signature does not match voter, dropping", "voter", v.Voter, "err", err)
		return
	}
	if d.equivTracker.Observe(from, v.Height, v.Round, uint8(v.Kind)+equivKindVoteBase, v.Hash) {
		log.Warn("bftdriver: equivocating vote recorded, not blocking progress", "voter", from, "kind", v.Kind)
	}

	switch v.Kind {
	case axontypes.VoteKindPrevote:
		d.tallyVote(d.prevotes, v)
		d.maybeLock(ctx)
	case axontypes.VoteKindPrecommit:
		d.tallyVote(d.precommits, v)
		d.maybeCommit(ctx)
	}
}

func (d *Driver) tallyVote(table map[roundKey]map[common.Address]axontypes.SignedVote, v axontypes.SignedVote) {
	key := roundKey{Height: v.Height, Round: v.Round}
	votes, ok := table[key]
	if !ok {
		votes = make(map[common.Address]axontypes.SignedVote)
		table[key] = votes
	}
	votes[v.Voter] = v
}

func weightForHash(validators axontypes.AuthorityList, votes map[common.Address]axontypes.SignedVote, hash common.Hash) uint64 {
	var weight uint64
	for voter, v := range votes {
		if v.Hash != hash {
			continue
		}
		idx := validators.IndexOf(voter)
		if idx < 0 {
			continue
		}
		weight += uint64(validators.Validators[idx].VoteWeight)
	}
	return weight
}

// maybeLock checks whether prevotes for the current round have reached
// quorum on a single non-nil hash; if so the node locks on it and moves
// to Precommit (spec §4.1 Prevote phase).
func (d *Driver) maybeLock(ctx context.Context) {
	if d.phase != axontypes.PhasePrevote {
		return
	}
	votes := d.prevotes[d.key()]
	for _, candidate := range distinctHashes(votes) {
		if candidate == (common.Hash{}) {
			continue
		}
		weight := weightForHash(d.validators, votes, candidate)
		if authority.HasQuorum(d.validators, weight) {
			d.hasLock = true
			d.lockHash = candidate
			d.lockRound = d.round
			d.enterPrecommit(ctx, candidate)
			return
		}
	}
}

func (d *Driver) enterPrecommit(ctx context.Context, hash common.Hash) {
	d.mu.Lock()
	d.phase = axontypes.PhasePrecommit
	d.mu.Unlock()
	d.setDeadline(axontypes.PhasePrecommit, d.ratios.Precommit)
	d.persistPhase(nil)
	d.broadcastVote(ctx, axontypes.VoteKindPrecommit, hash)
}

// maybeCommit checks whether precommits for the current round have
// reached quorum on a single non-nil hash; if so it aggregates a QC and
// asks the adapter to commit (spec §4.1 Precommit / Commit phases).
func (d *Driver) maybeCommit(ctx context.Context) {
	if d.phase != axontypes.PhasePrecommit {
		return
	}
	votes := d.precommits[d.key()]
	for _, candidate := range distinctHashes(votes) {
		if candidate == (common.Hash{}) {
			continue
		}
		weight := weightForHash(d.validators, votes, candidate)
		if !authority.HasQuorum(d.validators, weight) {
			continue
		}
		qc := aggregateQC(d.validators, votes, candidate, axontypes.VoteKindPrecommit, weight)
		d.recordQC(qc)
		d.commit(ctx, candidate, qc)
		return
	}
}

func (d *Driver) recordQC(qc axontypes.AggregatedVote) {
	d.persistPhase(&qc)
}

func (d *Driver) commit(ctx context.Context, hash common.Hash, qc axontypes.AggregatedVote) {
	signed, ok := d.proposals[d.key()]
	if !ok {
		log.Error("bftdriver: QC reached but local node never saw the winning proposal", "hash", hash)
		return
	}

	d.mu.Lock()
	d.phase = axontypes.PhaseCommit
	d.mu.Unlock()
	d.persistPhase(&qc)

	block := axontypes.Block{Header: signed.Proposal, Txs: d.txBodies[d.key()]}

	status, err := d.adapter.Commit(ctx, block, signed)
	if err != nil {
		// Backend errors during commit are fatal to the node (spec §7):
		// the process must not ack consensus commit without a flush.
		log.Crit("bftdriver: commit failed, halting at height", "height", d.height, "err", err)
		return
	}

	d.lastCommittedRound = d.round
	d.hasLock = false
	d.validators = status.Verifiers
	d.interval = status.Interval
	d.ratios = status.Ratios
	// Keep d.height's own entries around: propose() for the next height
	// still needs lastProposalHash(d.height+1) to find this round's
	// proposal in d.proposals to fill in the next block's PrevHash. They
	// get swept on the following commit, once a newer height exists.
	if d.height > 0 {
		d.pruneOldRounds(d.height - 1)
	}

	d.enterRound(ctx, status.Height, 0)
}

func (d *Driver) pruneOldRounds(upTo uint64) {
	for key := range d.proposals {
		if key.Height <= upTo {
			delete(d.proposals, key)
			delete(d.firstSeen, key)
			delete(d.txBodies, key)
		}
	}
	for key := range d.prevotes {
		if key.Height <= upTo {
			delete(d.prevotes, key)
		}
	}
	for key := range d.precommits {
		if key.Height <= upTo {
			delete(d.precommits, key)
		}
	}
	for key := range d.chokes {
		if key.Height <= upTo {
			delete(d.chokes, key)
		}
	}
	d.equivTracker.Prune(upTo)
}

// handleQC lets a late-arriving QC at a higher round release a prior
// lock (spec's "lock-release rule"): a QC for a hash other than the
// locked one, at a round above the lock round, justifies switching.
func (d *Driver) handleQC(ctx context.Context, qc axontypes.AggregatedVote) {
	if qc.Height != d.height {
		// A QC for an already-committed or future height is dropped,
		// spec §5: "a late QC for a committed height is dropped."
		return
	}
	if d.hasLock && qc.Round > d.lockRound && qc.Hash != d.lockHash {
		d.hasLock = true
		d.lockHash = qc.Hash
		d.lockRound = qc.Round
	}
	d.recordQC(qc)
}

// handleChoke tallies timeout-escalation votes for the current round;
// once vote_weight quorum of chokes is reached the round advances
// without re-proposing, preserving any existing lock (spec §4.1 Choke).
func (d *Driver) handleChoke(ctx context.Context, c axontypes.SignedChoke) {
	if c.Height != d.height || c.Round != d.round {
		return
	}
	key := d.key()
	set, ok := d.chokes[key]
	if !ok {
		set = make(map[common.Address]struct{})
		d.chokes[key] = set
	}
	set[c.Voter] = struct{}{}

	var weight uint64
	for voter := range set {
		if idx := d.validators.IndexOf(voter); idx >= 0 {
			weight += uint64(d.validators.Validators[idx].VoteWeight)
		}
	}
	if authority.HasQuorum(d.validators, weight) {
		d.enterRound(ctx, d.height, d.round+1)
	}
}

// handleDeadline fires when the current phase's timer expires without a
// transition: Propose times out into a nil prevote, Prevote/Precommit
// timing out escalates to Choke (spec §4.1 Propose/Choke transitions).
func (d *Driver) handleDeadline(ctx context.Context) {
	switch d.phase {
	case axontypes.PhasePropose:
		d.enterPrevote(ctx, common.Hash{})
	case axontypes.PhasePrevote, axontypes.PhasePrecommit:
		d.enterChoke(ctx)
	case axontypes.PhaseChoke:
		d.broadcastChoke(ctx)
		d.setDeadline(axontypes.PhaseChoke, d.ratios.Brake)
	default:
		d.setDeadline(d.phase, d.ratios.Brake)
	}
}

func (d *Driver) enterChoke(ctx context.Context) {
	d.mu.Lock()
	d.phase = axontypes.PhaseChoke
	d.mu.Unlock()
	d.setDeadline(axontypes.PhaseChoke, d.ratios.Brake)
	d.persistPhase(nil)
	d.broadcastChoke(ctx)
}

func (d *Driver) broadcastVote(ctx context.Context, kind axontypes.VoteKind, hash common.Hash) {
	sig, err := d.signer.SignVote(d.height, d.round, kind, hash)
	if err != nil {
		log.Error("bftdriver: sign vote failed", "err", err)
		return
	}
	vote := axontypes.SignedVote{Height: d.height, Round: d.round, Kind: kind, Hash: hash, Voter: d.signer.Address(), Signature: sig}
	d.tallyVote(voteTableFor(d, kind), vote)
	if err := d.adapter.Broadcast(ctx, axontypes.ConsensusMessage{Kind: axontypes.MessageKindVote, Vote: &vote}); err != nil {
		log.Warn("bftdriver: broadcast vote failed", "err", err)
	}
}

func voteTableFor(d *Driver, kind axontypes.VoteKind) map[roundKey]map[common.Address]axontypes.SignedVote {
	if kind == axontypes.VoteKindPrevote {
		return d.prevotes
	}
	return d.precommits
}

func (d *Driver) broadcastChoke(ctx context.Context) {
	sig, err := d.signer.SignChoke(d.height, d.round)
	if err != nil {
		log.Error("bftdriver: sign choke failed", "err", err)
		return
	}
	choke := axontypes.SignedChoke{Height: d.height, Round: d.round, Voter: d.signer.Address(), Signature: sig}
	key := d.key()
	set, ok := d.chokes[key]
	if !ok {
		set = make(map[common.Address]struct{})
		d.chokes[key] = set
	}
	set[d.signer.Address()] = struct{}{}
	if err := d.adapter.Broadcast(ctx, axontypes.ConsensusMessage{Kind: axontypes.MessageKindChoke, Choke: &choke}); err != nil {
		log.Warn("bftdriver: broadcast choke failed", "err", err)
	}
}

func (d *Driver) setDeadline(phase axontypes.ConsensusPhase, ratio uint32) {
	d.deadlineKind = phase
	ms := d.interval * uint64(ratio) / axontypes.RatioScale
	d.deadline = time.Now().Add(time.Duration(ms) * time.Millisecond)
}

func distinctHashes(votes map[common.Address]axontypes.SignedVote) []common.Hash {
	seen := make(map[common.Hash]struct{}, len(votes))
	out := make([]common.Hash, 0, len(votes))
	for _, v := range votes {
		if _, ok := seen[v.Hash]; ok {
			continue
		}
		seen[v.Hash] = struct{}{}
		out = append(out, v.Hash)
	}
	return out
}

func aggregateQC(validators axontypes.AuthorityList, votes map[common.Address]axontypes.SignedVote, hash common.Hash, kind axontypes.VoteKind, weight uint64) axontypes.AggregatedVote {
	bitmap := make([]byte, (len(validators.Validators)+7)/8)
	var aggSig []byte
	for voter, v := range votes {
		if v.Hash != hash {
			continue
		}
		idx := validators.IndexOf(voter)
		if idx < 0 {
			continue
		}
		bitmap[idx/8] |= 1 << uint(idx%8)
		aggSig = append(aggSig, v.Signature...)
	}
	return axontypes.AggregatedVote{
		Height:       votes[firstVoter(votes)].Height,
		Round:        votes[firstVoter(votes)].Round,
		Kind:         kind,
		Hash:         hash,
		SignerBitmap: bitmap,
		AggSignature: aggSig,
		VoteWeight:   weight,
	}
}

func firstVoter(votes map[common.Address]axontypes.SignedVote) common.Address {
	for addr := range votes {
		return addr
	}
	return common.Address{}
}

const (
	equivKindProposal   = 0xF0
	equivKindVoteBase   = 0
	blockGasLimit       = 30_000_000
	maxTxCountPerBlock  = 4096
)
