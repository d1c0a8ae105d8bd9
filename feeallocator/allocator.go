// Package feeallocator implements the block-level fee distribution
// policy invoked once per block by the executor (spec §4.3, §9 "Dynamic
// fee-allocator"). Policies are swappable at runtime behind an
// atomic.Pointer cell so in-flight readers always observe a fully
// constructed allocator, matching the teacher's fee-collector field
// being a plain struct member rather than anything requiring a
// lock-protected critical section wider than the swap itself.
package feeallocator

import (
	"sync/atomic"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Credit is one (address, amount) payout produced by an Allocator.
type Credit struct {
	Address common.Address
	Amount  *uint256.Int
}

// Allocator distributes a block's collected fee among the proposer and
// validator set. Implementations must return credits summing to at most
// totalFee (spec §7 "Fee conservation").
type Allocator interface {
	Allocate(blockNumber uint64, totalFee *uint256.Int, proposer common.Address, validators axontypes.AuthorityList) ([]Credit, error)
}

// ProposerTakesAll is the default policy: the entire collected fee goes
// to the block proposer.
type ProposerTakesAll struct{}

func (ProposerTakesAll) Allocate(_ uint64, totalFee *uint256.Int, proposer common.Address, _ axontypes.AuthorityList) ([]Credit, error) {
	if totalFee.IsZero() {
		return nil, nil
	}
	return []Credit{{Address: proposer, Amount: new(uint256.Int).Set(totalFee)}}, nil
}

// Cell is an atomically swappable Allocator slot. The zero value is not
// ready for use; construct one with NewCell.
type Cell struct {
	ptr atomic.Pointer[Allocator]
}

// NewCell returns a Cell initialized with the given allocator.
func NewCell(initial Allocator) *Cell {
	c := &Cell{}
	c.Store(initial)
	return c
}

// Load returns the currently installed allocator. Callers should load
// once per block so every account credited within that block sees the
// same policy (spec §9).
func (c *Cell) Load() Allocator {
	return *c.ptr.Load()
}

// Store installs a new allocator, visible to the next Load.
func (c *Cell) Store(a Allocator) {
	c.ptr.Store(&a)
}
