package worldstate

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Overlay is a copy-on-write Backend that stages writes in its own maps
// and reads through to a parent Backend on a miss. It exists so a single
// transaction's EVM execution can be discarded wholesale on revert
// without ever touching the parent: unlike Snapshot (which copies the
// backend's staged state up front), Overlay defers all
// work to first touch and is merged back into the parent explicitly via
// ApplyTo, only when the caller decides the transaction succeeded.
//
// The parent's identity is never lost: execOne runs the EVM against an
// Overlay wrapping the adapter's long-lived backend, then either calls
// ApplyTo(parent) on success or simply drops the Overlay on revert — the
// parent object itself is never reassigned or swapped out from under its
// owner (spec §3 Ownership, §4.3 step 3).
type Overlay struct {
	parent Backend

	accounts map[common.Address]*axontypes.Account
	storage  map[common.Address]map[common.Hash]common.Hash
	code     map[common.Hash][]byte

	origin      common.Address
	gasPrice    *big.Int
	blockNumber uint64
	logs        []axontypes.Log
}

// NewOverlay returns an Overlay staging writes in front of parent. The
// per-block hints (origin, gas price, block number) are seeded from
// parent at construction time since execOne sets them on the real
// backend before wrapping it.
func NewOverlay(parent Backend) *Overlay {
	return &Overlay{
		parent:      parent,
		accounts:    make(map[common.Address]*axontypes.Account),
		storage:     make(map[common.Address]map[common.Hash]common.Hash),
		code:        make(map[common.Hash][]byte),
		origin:      parent.Origin(),
		gasPrice:    new(big.Int).Set(parent.GasPrice()),
		blockNumber: parent.BlockNumber(),
	}
}

func (o *Overlay) GetAccount(addr common.Address) (*axontypes.Account, error) {
	if acc, ok := o.accounts[addr]; ok {
		cp := *acc
		cp.Balance = new(uint256.Int).Set(acc.Balance)
		return &cp, nil
	}
	return o.parent.GetAccount(addr)
}

func (o *Overlay) SetAccount(addr common.Address, acc *axontypes.Account) error {
	cp := *acc
	cp.Balance = new(uint256.Int).Set(acc.Balance)
	o.accounts[addr] = &cp
	return nil
}

func (o *Overlay) GetStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	if slots, ok := o.storage[addr]; ok {
		if v, ok := slots[key]; ok {
			return v, nil
		}
	}
	return o.parent.GetStorage(addr, key)
}

func (o *Overlay) SetStorage(addr common.Address, key, value common.Hash) error {
	slots, ok := o.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		o.storage[addr] = slots
	}
	slots[key] = value
	return nil
}

func (o *Overlay) GetCode(hash common.Hash) ([]byte, error) {
	if code, ok := o.code[hash]; ok {
		return code, nil
	}
	return o.parent.GetCode(hash)
}

func (o *Overlay) SetCode(code []byte) (common.Hash, error) {
	hash := crypto.Keccak256Hash(code)
	o.code[hash] = code
	return hash, nil
}

// Commit is never called on the path execOne uses — the real backend's
// Commit is what the executor relies on. It is implemented anyway so
// Overlay satisfies Backend in full: it flattens into the parent and
// delegates.
func (o *Overlay) Commit() (common.Hash, error) {
	if err := o.ApplyTo(o.parent); err != nil {
		return common.Hash{}, err
	}
	return o.parent.Commit()
}

// Snapshot gives the EVM's own call-frame journal (evmStateDB.Snapshot /
// RevertToSnapshot) an independent point to roll back to: a deep copy of
// the overlay's own staged writes, still reading through to the same
// parent for anything neither overlay has touched.
func (o *Overlay) Snapshot() Backend {
	clone := &Overlay{
		parent:      o.parent,
		accounts:    make(map[common.Address]*axontypes.Account, len(o.accounts)),
		storage:     make(map[common.Address]map[common.Hash]common.Hash, len(o.storage)),
		code:        make(map[common.Hash][]byte, len(o.code)),
		origin:      o.origin,
		gasPrice:    new(big.Int).Set(o.gasPrice),
		blockNumber: o.blockNumber,
		logs:        append([]axontypes.Log(nil), o.logs...),
	}
	for addr, acc := range o.accounts {
		cp := *acc
		cp.Balance = new(uint256.Int).Set(acc.Balance)
		clone.accounts[addr] = &cp
	}
	for addr, slots := range o.storage {
		cp := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		clone.storage[addr] = cp
	}
	for hash, code := range o.code {
		clone.code[hash] = code
	}
	return clone
}

func (o *Overlay) SetOrigin(addr common.Address) { o.origin = addr }
func (o *Overlay) Origin() common.Address        { return o.origin }
func (o *Overlay) SetGasPrice(price *big.Int)    { o.gasPrice = price }
func (o *Overlay) GasPrice() *big.Int            { return o.gasPrice }
func (o *Overlay) BlockNumber() uint64           { return o.blockNumber }
func (o *Overlay) SetBlockNumber(n uint64)       { o.blockNumber = n }
func (o *Overlay) AddLog(l axontypes.Log)        { o.logs = append(o.logs, l) }
func (o *Overlay) GetLogs() []axontypes.Log {
	logs := o.logs
	o.logs = nil
	return logs
}

// ApplyTo merges every write staged in the overlay into dst, in
// address/key-sorted order so the merge never depends on Go's
// randomized map iteration. Logs are not merged: callers read them off
// the overlay directly via GetLogs before discarding it.
func (o *Overlay) ApplyTo(dst Backend) error {
	for hash, code := range o.code {
		if _, err := dst.SetCode(code); err != nil {
			return fmt.Errorf("%w: apply code %s: %v", axontypes.ErrBackend, hash, err)
		}
	}

	addrs := make([]common.Address, 0, len(o.accounts))
	for addr := range o.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return lessAddress(addrs[i], addrs[j]) })
	for _, addr := range addrs {
		if err := dst.SetAccount(addr, o.accounts[addr]); err != nil {
			return fmt.Errorf("%w: apply account %s: %v", axontypes.ErrBackend, addr, err)
		}
	}

	storAddrs := make([]common.Address, 0, len(o.storage))
	for addr := range o.storage {
		storAddrs = append(storAddrs, addr)
	}
	sort.Slice(storAddrs, func(i, j int) bool { return lessAddress(storAddrs[i], storAddrs[j]) })
	for _, addr := range storAddrs {
		slots := o.storage[addr]
		keys := make([]common.Hash, 0, len(slots))
		for key := range slots {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) < 0 })
		for _, key := range keys {
			if err := dst.SetStorage(addr, key, slots[key]); err != nil {
				return fmt.Errorf("%w: apply storage %s/%s: %v", axontypes.ErrBackend, addr, key, err)
			}
		}
	}

	return nil
}
