package axontypes

// ConsensusPhase is the driver's position within a round, persisted to
// the consensus WAL on every transition (spec §4.1, §4.5).
type ConsensusPhase uint8

const (
	PhasePropose ConsensusPhase = iota
	PhasePrevote
	PhasePrecommit
	PhaseCommit
	PhaseChoke
)

func (p ConsensusPhase) String() string {
	switch p {
	case PhasePropose:
		return "propose"
	case PhasePrevote:
		return "prevote"
	case PhasePrecommit:
		return "precommit"
	case PhaseCommit:
		return "commit"
	case PhaseChoke:
		return "choke"
	default:
		return "unknown"
	}
}

// ConsensusWALRecord is the compact record of the driver's last persisted
// phase, lock, and last-seen QC for a height, replayed on restart.
type ConsensusWALRecord struct {
	Height   uint64
	Round    uint64
	Phase    ConsensusPhase
	LockHash []byte          // empty means no lock held
	LastQC   *AggregatedVote `rlp:"nil"`
}

// SignedTxWALRecord is the value stored for a (height, round) key in the
// signed-transactions WAL: the transaction batch seen in a proposal.
type SignedTxWALRecord struct {
	Height uint64
	Round  uint64
	Txs    []SignedTransaction
}
