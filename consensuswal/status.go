package consensuswal

import (
	"sync"

	"github.com/axonium/axon-core/axontypes"
)

// StatusAgent is the in-memory cell holding the RichStatus published
// after the latest commit: the next height plus the current epoch's
// interval, timer ratios and verifier list. It does not record the
// committed block's hash, roots, gas used or proposer. It is mutated
// only from the adapter's commit path and is otherwise read-only,
// matching the "Arc-like shared ownership" sharing model spec §9 calls
// for — here expressed with a plain RWMutex rather than true shared
// ownership, since a single process owns the agent outright.
type StatusAgent struct {
	mu     sync.RWMutex
	status axontypes.RichStatus
}

// NewStatusAgent returns an agent seeded with the genesis RichStatus.
func NewStatusAgent(genesis axontypes.RichStatus) *StatusAgent {
	return &StatusAgent{status: genesis}
}

// Current returns a copy of the latest published status.
func (a *StatusAgent) Current() axontypes.RichStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Update replaces the published status. Called exactly once per commit.
func (a *StatusAgent) Update(status axontypes.RichStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
}
