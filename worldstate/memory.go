package worldstate

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// MemoryBackend is a plain in-memory Backend with no trie, no
// persistence and no node cache, used by unit tests and by the read-only
// Call path's immutable snapshot (spec §9: "tests provide an in-memory
// backend; production provides an MPT-backed one").
type MemoryBackend struct {
	accounts map[common.Address]axontypes.Account
	storage  map[common.Address]map[common.Hash]common.Hash
	code     map[common.Hash][]byte

	origin      common.Address
	gasPrice    *big.Int
	blockNumber uint64
	logs        []axontypes.Log
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		accounts: make(map[common.Address]axontypes.Account),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		code:     make(map[common.Hash][]byte),
		gasPrice: big.NewInt(0),
	}
}

func (b *MemoryBackend) GetAccount(addr common.Address) (*axontypes.Account, error) {
	if acc, ok := b.accounts[addr]; ok {
		cp := acc
		cp.Balance = new(uint256.Int).Set(acc.Balance)
		return &cp, nil
	}
	return axontypes.NewAccount(), nil
}

func (b *MemoryBackend) SetAccount(addr common.Address, acc *axontypes.Account) error {
	b.accounts[addr] = *acc
	return nil
}

func (b *MemoryBackend) GetStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	if slots, ok := b.storage[addr]; ok {
		return slots[key], nil
	}
	return common.Hash{}, nil
}

func (b *MemoryBackend) SetStorage(addr common.Address, key, value common.Hash) error {
	slots, ok := b.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		b.storage[addr] = slots
	}
	slots[key] = value
	return nil
}

func (b *MemoryBackend) GetCode(hash common.Hash) ([]byte, error) {
	return b.code[hash], nil
}

func (b *MemoryBackend) SetCode(code []byte) (common.Hash, error) {
	hash := crypto.Keccak256Hash(code)
	b.code[hash] = code
	return hash, nil
}

// Commit is a no-op beyond returning a deterministic root: a plain map
// has no trie, so the "root" is the keccak of the sorted account set.
// This keeps MemoryBackend useful for tests that assert state-root
// determinism without pulling in the MPT.
func (b *MemoryBackend) Commit() (common.Hash, error) {
	return accountSetDigest(b.accounts), nil
}

func (b *MemoryBackend) Snapshot() Backend {
	clone := NewMemoryBackend()
	for k, v := range b.accounts {
		clone.accounts[k] = v
	}
	for addr, slots := range b.storage {
		cp := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		clone.storage[addr] = cp
	}
	for k, v := range b.code {
		clone.code[k] = v
	}
	clone.blockNumber = b.blockNumber
	clone.gasPrice = new(big.Int).Set(b.gasPrice)
	clone.origin = b.origin
	clone.logs = append([]axontypes.Log(nil), b.logs...)
	return clone
}

func (b *MemoryBackend) SetOrigin(addr common.Address) { b.origin = addr }
func (b *MemoryBackend) Origin() common.Address        { return b.origin }
func (b *MemoryBackend) SetGasPrice(price *big.Int)    { b.gasPrice = price }
func (b *MemoryBackend) GasPrice() *big.Int            { return b.gasPrice }
func (b *MemoryBackend) BlockNumber() uint64           { return b.blockNumber }
func (b *MemoryBackend) SetBlockNumber(n uint64)       { b.blockNumber = n }
func (b *MemoryBackend) AddLog(l axontypes.Log)        { b.logs = append(b.logs, l) }
func (b *MemoryBackend) GetLogs() []axontypes.Log {
	logs := b.logs
	b.logs = nil
	return logs
}

// accountSetDigest hashes a deterministic, sorted encoding of every
// account in the map. Map iteration order in Go is randomized, so the
// addresses are sorted first to satisfy the "no iteration-order
// dependence" determinism contract (spec §4.3).
func accountSetDigest(accounts map[common.Address]axontypes.Account) common.Hash {
	addrs := make([]common.Address, 0, len(accounts))
	for a := range accounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0
	})

	h := crypto.NewKeccakState()
	for _, a := range addrs {
		acc := accounts[a]
		h.Write(a.Bytes())
		h.Write(acc.Balance.Bytes())
		var nonceBytes [8]byte
		for i := 0; i < 8; i++ {
			nonceBytes[i] = byte(acc.Nonce >> (56 - 8*i))
		}
		h.Write(nonceBytes[:])
		h.Write(acc.StorageRoot.Bytes())
		h.Write(acc.CodeHash.Bytes())
	}
	var out common.Hash
	h.Read(out[:])
	return out
}

