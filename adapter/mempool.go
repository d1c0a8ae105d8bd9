package adapter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
)

// InMemoryMempool is a minimal first-come-first-served transaction pool,
// grounded on FairOrderer's arrival-timestamp bookkeeping
// (consensus/equa/ordering.go: txTimestamps map[common.Hash]time.Time)
// simplified to FCFS since the hybrid PoW fairness/MEV scoring that
// surrounds it there is out of this spec's scope — the executor, not the
// mempool, owns transaction ordering once a proposal is built (spec §4.3).
type InMemoryMempool struct {
	mu      sync.RWMutex
	entries map[common.Hash]mempoolEntry
}

type mempoolEntry struct {
	tx       axontypes.SignedTransaction
	arrived  time.Time
}

func NewInMemoryMempool() *InMemoryMempool {
	return &InMemoryMempool{entries: make(map[common.Hash]mempoolEntry)}
}

// Add admits tx into the pool if not already present.
func (m *InMemoryMempool) Add(tx axontypes.SignedTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[tx.TxHash]; ok {
		return
	}
	m.entries[tx.TxHash] = mempoolEntry{tx: tx, arrived: time.Now()}
}

// Pending returns up to count transactions in arrival order, bounded by
// gasLimit (spec §4.2 get_txs_from_mempool).
func (m *InMemoryMempool) Pending(_ context.Context, gasLimit uint64, count int) ([]axontypes.SignedTransaction, error) {
	m.mu.RLock()
	ordered := make([]mempoolEntry, 0, len(m.entries))
	for _, e := range m.entries {
		ordered = append(ordered, e)
	}
	m.mu.RUnlock()

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].arrived.Before(ordered[j].arrived) })

	out := make([]axontypes.SignedTransaction, 0, count)
	var gasUsed uint64
	for _, e := range ordered {
		if len(out) >= count {
			break
		}
		if gasUsed+e.tx.Unsigned.GasLimit > gasLimit {
			continue
		}
		gasUsed += e.tx.Unsigned.GasLimit
		out = append(out, e.tx)
	}
	return out, nil
}

// ByHash resolves a set of hashes to their bodies, used by ResolveTxs
// when a received proposal's transactions were not self-proposed.
func (m *InMemoryMempool) ByHash(_ context.Context, hashes []common.Hash) ([]axontypes.SignedTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]axontypes.SignedTransaction, 0, len(hashes))
	for _, h := range hashes {
		if e, ok := m.entries[h]; ok {
			out = append(out, e.tx)
		}
	}
	return out, nil
}

// Remove evicts hashes from the pool, called after they are committed.
func (m *InMemoryMempool) Remove(hashes []common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		delete(m.entries, h)
	}
}
