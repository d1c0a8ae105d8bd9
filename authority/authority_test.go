package authority

import (
	"testing"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func threeValidators() axontypes.AuthorityList {
	return axontypes.NewAuthorityList([]axontypes.Validator{
		{PubKey: []byte("a"), Address: common.HexToAddress("0x1"), ProposeWeight: 1, VoteWeight: 1},
		{PubKey: []byte("b"), Address: common.HexToAddress("0x2"), ProposeWeight: 1, VoteWeight: 1},
		{PubKey: []byte("c"), Address: common.HexToAddress("0x3"), ProposeWeight: 1, VoteWeight: 1},
	})
}

func TestProposerForRoundIsDeterministic(t *testing.T) {
	list := threeValidators()
	p1, err := ProposerForRound(list, 10, 0)
	require.NoError(t, err)
	p2, err := ProposerForRound(list, 10, 0)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

func TestProposerForRoundRotates(t *testing.T) {
	list := threeValidators()
	seen := map[common.Address]bool{}
	for r := uint64(0); r < 3; r++ {
		p, err := ProposerForRound(list, 0, r)
		require.NoError(t, err)
		seen[p] = true
	}
	require.Len(t, seen, 3, "equal weights over 3 rounds should visit all 3 validators")
}

func TestProposerForRoundEmptyListErrors(t *testing.T) {
	_, err := ProposerForRound(axontypes.AuthorityList{}, 0, 0)
	require.Error(t, err)
}

func TestQuorumThresholdIsStrictlyTwoThirds(t *testing.T) {
	list := threeValidators() // total weight 3
	require.Equal(t, uint64(3), QuorumThreshold(list))
	require.False(t, HasQuorum(list, 2))
	require.True(t, HasQuorum(list, 3))
}

func TestEquivocationTrackerFlagsConflictingVotes(t *testing.T) {
	tracker := NewEquivocationTracker()
	voter := common.HexToAddress("0x1")

	conflict := tracker.Observe(voter, 10, 0, 0, common.HexToHash("0xaa"))
	require.False(t, conflict)

	conflict = tracker.Observe(voter, 10, 0, 0, common.HexToHash("0xaa"))
	require.False(t, conflict, "repeating the same vote is not equivocation")

	conflict = tracker.Observe(voter, 10, 0, 0, common.HexToHash("0xbb"))
	require.True(t, conflict)
	require.True(t, tracker.IsFlagged(voter))
}

func TestEquivocationTrackerPruneForgetsOldHeights(t *testing.T) {
	tracker := NewEquivocationTracker()
	voter := common.HexToAddress("0x1")
	tracker.Observe(voter, 5, 0, 0, common.HexToHash("0xaa"))
	tracker.Prune(5)

	conflict := tracker.Observe(voter, 5, 0, 0, common.HexToHash("0xbb"))
	require.False(t, conflict, "pruned heights no longer detect conflicts")
}
