package adapter

import (
	"sort"
	"sync"

	"github.com/axonium/axon-core/axontypes"
)

// MetadataIndex implements MetadataProvider over the epoch metadata
// produced by syscontract.MetadataContract commits. The contract's own
// LRU is keyed by epoch number for O(1) on-chain lookup during
// execution (spec §4.4); this index additionally keeps epochs ordered by
// start height so the adapter can answer "which epoch covers height H"
// without iterating an LRU that offers no ordering guarantee.
type MetadataIndex struct {
	mu      sync.RWMutex
	genesis axontypes.Metadata
	epochs  []axontypes.Metadata // ordered ascending by StartHeight
}

func NewMetadataIndex(genesis axontypes.Metadata) *MetadataIndex {
	return &MetadataIndex{genesis: genesis, epochs: []axontypes.Metadata{genesis}}
}

// Append records a newly committed epoch's metadata, keeping epochs
// ordered by start height (spec §4.4 "epoch boundaries are monotonic").
func (idx *MetadataIndex) Append(m axontypes.Metadata) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	i := sort.Search(len(idx.epochs), func(i int) bool { return idx.epochs[i].StartHeight >= m.StartHeight })
	if i < len(idx.epochs) && idx.epochs[i].StartHeight == m.StartHeight {
		idx.epochs[i] = m
		return
	}
	idx.epochs = append(idx.epochs, axontypes.Metadata{})
	copy(idx.epochs[i+1:], idx.epochs[i:])
	idx.epochs[i] = m
}

// EpochFor returns the epoch whose [StartHeight, nextStart) window
// contains height.
func (idx *MetadataIndex) EpochFor(height uint64) (axontypes.Metadata, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for i := len(idx.epochs) - 1; i >= 0; i-- {
		if idx.epochs[i].StartHeight <= height {
			return idx.epochs[i], true
		}
	}
	return axontypes.Metadata{}, false
}

func (idx *MetadataIndex) Genesis() axontypes.Metadata {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.genesis
}
