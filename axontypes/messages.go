package axontypes

import "github.com/ethereum/go-ethereum/common"

// VoteKind distinguishes a prevote from a precommit; both share the
// SignedVote shape per spec §3.
type VoteKind uint8

const (
	VoteKindPrevote VoteKind = iota
	VoteKindPrecommit
)

// SignedProposal is the wire form of a Proposal plus the proposer's
// signature over its hash.
type SignedProposal struct {
	Height    uint64
	Round     uint64
	Proposal  Proposal
	Signature []byte
}

// SignedVote is a single validator's vote for a hash (or nil, signalled
// by the zero hash) at a given height/round/phase.
type SignedVote struct {
	Height    uint64
	Round     uint64
	Kind      VoteKind
	Hash      common.Hash // zero value means a nil vote
	Voter     common.Address
	Signature []byte
}

// IsNil reports whether this is a nil vote.
func (v SignedVote) IsNil() bool { return v.Hash == (common.Hash{}) }

// AggregatedVote is a quorum certificate: an aggregated signature over a
// single (height, round, hash) proving >= 2/3 vote weight.
type AggregatedVote struct {
	Height        uint64
	Round         uint64
	Kind          VoteKind
	Hash          common.Hash
	SignerBitmap  []byte // one bit per authority-list index
	AggSignature  []byte
	VoteWeight    uint64
}

// SignedChoke escalates the round without re-proposing, per spec §4.1.
type SignedChoke struct {
	Height    uint64
	Round     uint64
	Voter     common.Address
	Signature []byte
}

// MessageKind tags a decoded consensus message for dispatch.
type MessageKind uint8

const (
	MessageKindProposal MessageKind = iota
	MessageKindVote
	MessageKindQC
	MessageKindChoke
	MessageKindRichStatus
)

// ConsensusMessage is the tagged union of the consensus wire family.
// Exactly one of the pointer fields is non-nil, selected by Kind.
type ConsensusMessage struct {
	Kind       MessageKind
	Proposal   *SignedProposal
	Vote       *SignedVote
	QC         *AggregatedVote
	Choke      *SignedChoke
	RichStatus *RichStatus
}

// Height returns the height carried by whichever variant is populated.
func (m ConsensusMessage) Height() uint64 {
	switch m.Kind {
	case MessageKindProposal:
		return m.Proposal.Height
	case MessageKindVote:
		return m.Vote.Height
	case MessageKindQC:
		return m.QC.Height
	case MessageKindChoke:
		return m.Choke.Height
	case MessageKindRichStatus:
		return m.RichStatus.Height
	}
	return 0
}
