package feeallocator

import (
	"testing"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestProposerTakesAllCreditsFullFee(t *testing.T) {
	proposer := common.HexToAddress("0x1")
	credits, err := ProposerTakesAll{}.Allocate(10, uint256.NewInt(21000), proposer, axontypes.AuthorityList{})
	require.NoError(t, err)
	require.Len(t, credits, 1)
	require.Equal(t, proposer, credits[0].Address)
	require.True(t, credits[0].Amount.Eq(uint256.NewInt(21000)))
}

func TestProposerTakesAllZeroFeeYieldsNoCredits(t *testing.T) {
	credits, err := ProposerTakesAll{}.Allocate(10, uint256.NewInt(0), common.HexToAddress("0x1"), axontypes.AuthorityList{})
	require.NoError(t, err)
	require.Empty(t, credits)
}

func TestCellSwapIsVisibleToNextLoad(t *testing.T) {
	cell := NewCell(ProposerTakesAll{})
	require.IsType(t, ProposerTakesAll{}, cell.Load())

	cell.Store(stubAllocator{})
	require.IsType(t, stubAllocator{}, cell.Load())
}

type stubAllocator struct{}

func (stubAllocator) Allocate(uint64, *uint256.Int, common.Address, axontypes.AuthorityList) ([]Credit, error) {
	return nil, nil
}
