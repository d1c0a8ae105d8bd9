package authority

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
)

// voteKey identifies a single vote slot: one validator casting one kind
// of vote at one (height, round). A second, conflicting hash seen for
// the same key is equivocation.
type voteKey struct {
	Voter  common.Address
	Height uint64
	Round  uint64
	Kind   uint8
}

// EquivocationTracker records the first vote hash seen per (voter,
// height, round, kind) and flags validators who are later seen voting a
// different hash for the same slot. seen is a set purely to get
// dedicated membership semantics for "have we recorded this exact vote
// before" instead of hand-rolling it over a map[key]struct{}.
type EquivocationTracker struct {
	mu      sync.Mutex
	seen    mapset.Set[voteKey]
	hashes  map[voteKey]common.Hash
	flagged mapset.Set[common.Address]
}

// NewEquivocationTracker returns an empty tracker.
func NewEquivocationTracker() *EquivocationTracker {
	return &EquivocationTracker{
		seen:    mapset.NewSet[voteKey](),
		hashes:  make(map[voteKey]common.Hash),
		flagged: mapset.NewSet[common.Address](),
	}
}

// Observe records a vote and reports whether it conflicts with a
// previously observed vote for the same slot.
func (t *EquivocationTracker) Observe(voter common.Address, height, round uint64, kind uint8, hash common.Hash) bool {
	key := voteKey{Voter: voter, Height: height, Round: round, Kind: kind}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.seen.Contains(key) {
		t.seen.Add(key)
		t.hashes[key] = hash
		return false
	}
	if t.hashes[key] == hash {
		return false
	}
	t.flagged.Add(voter)
	return true
}

// IsFlagged reports whether addr has been observed equivocating.
func (t *EquivocationTracker) IsFlagged(addr common.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flagged.Contains(addr)
}

// Prune drops every recorded vote at or below height, bounding the
// tracker's memory to unfinalized heights (spec §5 resource policy).
func (t *EquivocationTracker) Prune(height uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.hashes {
		if key.Height <= height {
			t.seen.Remove(key)
			delete(t.hashes, key)
		}
	}
}
