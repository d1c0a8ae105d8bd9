// Package authority implements validator-set queries the BFT driver and
// system contracts need beyond the plain AuthorityList record: weighted
// proposer selection, quorum threshold math, and equivocation tracking.
// The selection strategy is grounded on the teacher's cumulative-weight
// walk in ProposerSelector.weightedVRFSelection, made deterministic by
// replacing the VRF draw with (height+round) as the selection index.
package authority

import (
	"errors"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
)

var errEmptyAuthorityList = errors.New("authority: empty validator set")

// ProposerForRound deterministically selects the proposer for (height,
// round) from list, weighted by each validator's ProposeWeight. Every
// honest node computes the same answer from the same inputs.
func ProposerForRound(list axontypes.AuthorityList, height, round uint64) (common.Address, error) {
	if len(list.Validators) == 0 {
		return common.Address{}, errEmptyAuthorityList
	}
	total := list.TotalProposeWeight()
	if total == 0 {
		// Degenerate configuration: fall back to plain round-robin over
		// the ordered list so a zero-weight set still makes progress.
		idx := (height + round) % uint64(len(list.Validators))
		return list.Validators[idx].Address, nil
	}

	target := (height + round) % total
	var cumulative uint64
	for _, v := range list.Validators {
		cumulative += uint64(v.ProposeWeight)
		if target < cumulative {
			return v.Address, nil
		}
	}
	// Unreachable given target < total by construction, but keep the
	// function total rather than panicking on a future refactor bug.
	return list.Validators[len(list.Validators)-1].Address, nil
}

// QuorumThreshold returns the minimum vote weight a QC needs: strictly
// more than 2/3 of the total vote weight (spec §4.1, BFT safety).
func QuorumThreshold(list axontypes.AuthorityList) uint64 {
	total := list.TotalVoteWeight()
	return total*2/3 + 1
}

// HasQuorum reports whether weight meets or exceeds the 2/3+ threshold.
func HasQuorum(list axontypes.AuthorityList, weight uint64) bool {
	return weight >= QuorumThreshold(list)
}
