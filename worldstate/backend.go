// Package worldstate implements the Backend capability the executor
// operates against (spec §3 World State, §9 "Polymorphism over
// backends"): a single interface covering account reads/writes, storage
// diffs, commit, and the per-block hint fields (origin, gas price, block
// number) the executor and system contracts need. Three implementations
// are provided: an in-memory one for tests, an MPT-backed one for
// production, both sharing the staged-overlay-then-commit discipline
// spec.md requires, and Overlay, the per-transaction copy-on-write layer
// the executor runs the EVM against.
package worldstate

import (
	"math/big"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is the capability record the executor is generic over: read
// account, write account, apply storage diffs, commit, gas_price,
// origin, block_number, get_logs. Implementations are passed by pointer
// and are not safe for concurrent use by more than one executor at a
// time — the Consensus Adapter's commit mutex is what guarantees that
// (spec §3 Ownership, §5).
type Backend interface {
	// GetAccount returns the account at addr, or the default account if
	// it has never been written.
	GetAccount(addr common.Address) (*axontypes.Account, error)
	// SetAccount stages a write to the account at addr.
	SetAccount(addr common.Address, acc *axontypes.Account) error

	// GetStorage returns the value at (addr, key), or the zero hash.
	GetStorage(addr common.Address, key common.Hash) (common.Hash, error)
	// SetStorage stages a write to (addr, key).
	SetStorage(addr common.Address, key common.Hash, value common.Hash) error

	// GetCode returns the bytecode for a code hash.
	GetCode(hash common.Hash) ([]byte, error)
	// SetCode stages bytecode under its own keccak hash.
	SetCode(code []byte) (common.Hash, error)

	// Commit flushes every staged write and returns the new state root.
	// It is called exactly once per block by the executor (spec §4.3).
	Commit() (common.Hash, error)

	// Snapshot returns an isolated copy of the current state, used by
	// Call and by speculative block execution; writes to the copy, and
	// its Commit, never reach the backend it was taken from.
	Snapshot() Backend

	// Per-block hints set once by the executor before running a
	// transaction (spec §4.3 step 1).
	SetOrigin(addr common.Address)
	Origin() common.Address
	SetGasPrice(price *big.Int)
	GasPrice() *big.Int
	BlockNumber() uint64
	SetBlockNumber(n uint64)

	// AddLog appends a log emitted during the current transaction.
	AddLog(l axontypes.Log)
	// GetLogs returns and clears the logs accumulated since the last call.
	GetLogs() []axontypes.Log
}
