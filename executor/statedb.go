package executor

import (
	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/worldstate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/stateless"
	"github.com/ethereum/go-ethereum/core/tracing"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// evmStateDB adapts worldstate.Backend to core/vm.StateDB, the interface
// the EVM interpreter is coded against. The interpreter itself is treated
// as an opaque dependency: this file's only job is translating between
// the account/storage model spec.md describes and the shape go-ethereum's
// vm package expects to call into.
type evmStateDB struct {
	backend worldstate.Backend

	// snapshots reuses worldstate.Backend.Snapshot's deep-clone semantics
	// as the EVM's per-call-frame journal: Snapshot() records a clone,
	// RevertToSnapshot restores the backend to that clone's contents.
	snapshots []worldstate.Backend

	refund uint64

	accessAddrs map[common.Address]bool
	accessSlots map[common.Address]map[common.Hash]bool

	selfDestructed map[common.Address]bool
	created        map[common.Address]bool

	logs       []*gethtypes.Log
	txHash     common.Hash
	txIndex    int
	blockHash  common.Hash
	preimages  map[common.Hash][]byte
}

func newEVMStateDB(backend worldstate.Backend) *evmStateDB {
	return &evmStateDB{
		backend:        backend,
		accessAddrs:    make(map[common.Address]bool),
		accessSlots:    make(map[common.Address]map[common.Hash]bool),
		selfDestructed: make(map[common.Address]bool),
		created:        make(map[common.Address]bool),
		preimages:      make(map[common.Hash][]byte),
	}
}

func (s *evmStateDB) account(addr common.Address) *axontypes.Account {
	acc, err := s.backend.GetAccount(addr)
	if err != nil {
		return axontypes.NewAccount()
	}
	return acc
}

func (s *evmStateDB) CreateAccount(addr common.Address) {
	acc := axontypes.NewAccount()
	if existing := s.account(addr); existing != nil {
		acc.Balance = existing.Balance
	}
	_ = s.backend.SetAccount(addr, acc)
}

func (s *evmStateDB) CreateContract(addr common.Address) {
	s.created[addr] = true
}

func (s *evmStateDB) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) {
	acc := s.account(addr)
	acc.Balance = new(uint256.Int).Sub(acc.Balance, amount)
	_ = s.backend.SetAccount(addr, acc)
}

func (s *evmStateDB) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) {
	acc := s.account(addr)
	acc.Balance = new(uint256.Int).Add(acc.Balance, amount)
	_ = s.backend.SetAccount(addr, acc)
}

func (s *evmStateDB) GetBalance(addr common.Address) *uint256.Int {
	return s.account(addr).Balance
}

func (s *evmStateDB) GetNonce(addr common.Address) uint64 {
	return s.account(addr).Nonce
}

func (s *evmStateDB) SetNonce(addr common.Address, nonce uint64) {
	acc := s.account(addr)
	acc.Nonce = nonce
	_ = s.backend.SetAccount(addr, acc)
}

func (s *evmStateDB) GetCodeHash(addr common.Address) common.Hash {
	return s.account(addr).CodeHash
}

func (s *evmStateDB) GetCode(addr common.Address) []byte {
	hash := s.account(addr).CodeHash
	code, _ := s.backend.GetCode(hash)
	return code
}

func (s *evmStateDB) SetCode(addr common.Address, code []byte) {
	hash, _ := s.backend.SetCode(code)
	acc := s.account(addr)
	acc.CodeHash = hash
	_ = s.backend.SetAccount(addr, acc)
}

func (s *evmStateDB) GetCodeSize(addr common.Address) int {
	return len(s.GetCode(addr))
}

func (s *evmStateDB) AddRefund(amount uint64) { s.refund += amount }

func (s *evmStateDB) SubRefund(amount uint64) {
	if amount > s.refund {
		s.refund = 0
		return
	}
	s.refund -= amount
}

func (s *evmStateDB) GetRefund() uint64 { return s.refund }

func (s *evmStateDB) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	v, _ := s.backend.GetStorage(addr, key)
	return v
}

func (s *evmStateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	v, _ := s.backend.GetStorage(addr, key)
	return v
}

func (s *evmStateDB) SetState(addr common.Address, key, value common.Hash) {
	_ = s.backend.SetStorage(addr, key, value)
}

func (s *evmStateDB) GetStorageRoot(addr common.Address) common.Hash {
	return s.account(addr).StorageRoot
}

// Transient storage (EIP-1153) is not modeled: the executor is stock
// London, predating Cancun's TLOAD/TSTORE, so these are inert.
func (s *evmStateDB) GetTransientState(common.Address, common.Hash) common.Hash { return common.Hash{} }
func (s *evmStateDB) SetTransientState(common.Address, common.Hash, common.Hash) {}

func (s *evmStateDB) SelfDestruct(addr common.Address) {
	s.selfDestructed[addr] = true
	acc := axontypes.NewAccount()
	_ = s.backend.SetAccount(addr, acc)
}

func (s *evmStateDB) HasSelfDestructed(addr common.Address) bool {
	return s.selfDestructed[addr]
}

func (s *evmStateDB) Selfdestruct6780(addr common.Address) {
	if s.created[addr] {
		s.SelfDestruct(addr)
	}
}

func (s *evmStateDB) Exist(addr common.Address) bool {
	acc := s.account(addr)
	return acc.Nonce != 0 || !acc.Balance.IsZero() || acc.CodeHash != (common.Hash{})
}

func (s *evmStateDB) Empty(addr common.Address) bool {
	acc := s.account(addr)
	return acc.Nonce == 0 && acc.Balance.IsZero() && acc.CodeHash == (common.Hash{})
}

func (s *evmStateDB) AddressInAccessList(addr common.Address) bool {
	return s.accessAddrs[addr]
}

func (s *evmStateDB) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	addrOK := s.accessAddrs[addr]
	slots, ok := s.accessSlots[addr]
	return addrOK, ok && slots[slot]
}

func (s *evmStateDB) AddAddressToAccessList(addr common.Address) {
	s.accessAddrs[addr] = true
}

func (s *evmStateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.accessAddrs[addr] = true
	slots, ok := s.accessSlots[addr]
	if !ok {
		slots = make(map[common.Hash]bool)
		s.accessSlots[addr] = slots
	}
	slots[slot] = true
}

func (s *evmStateDB) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses gethtypes.AccessList) {
	s.accessAddrs = make(map[common.Address]bool)
	s.accessSlots = make(map[common.Address]map[common.Hash]bool)
	s.accessAddrs[sender] = true
	if dest != nil {
		s.accessAddrs[*dest] = true
	}
	for _, addr := range precompiles {
		s.accessAddrs[addr] = true
	}
	if rules.IsBerlin {
		s.accessAddrs[coinbase] = true
	}
	for _, tuple := range txAccesses {
		s.AddAddressToAccessList(tuple.Address)
		for _, key := range tuple.StorageKeys {
			s.AddSlotToAccessList(tuple.Address, key)
		}
	}
}

func (s *evmStateDB) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		return
	}
	s.backend = s.snapshots[id]
	s.snapshots = s.snapshots[:id]
}

func (s *evmStateDB) Snapshot() int {
	s.snapshots = append(s.snapshots, s.backend.Snapshot())
	return len(s.snapshots) - 1
}

func (s *evmStateDB) AddLog(log *gethtypes.Log) {
	log.TxHash = s.txHash
	log.TxIndex = uint(s.txIndex)
	log.BlockHash = s.blockHash
	log.Index = uint(len(s.logs))
	s.logs = append(s.logs, log)
	s.backend.AddLog(axontypes.Log{
		Address: log.Address,
		Topics:  log.Topics,
		Data:    log.Data,
	})
}

func (s *evmStateDB) AddPreimage(hash common.Hash, preimage []byte) {
	if _, ok := s.preimages[hash]; ok {
		return
	}
	cp := make([]byte, len(preimage))
	copy(cp, preimage)
	s.preimages[hash] = cp
}

// Witness is part of the stateless-execution surface go-ethereum added
// for Verkle; axon-core never produces stateless witnesses, so this is
// always nil per the EVM's own nil-check contract.
func (s *evmStateDB) Witness() *stateless.Witness { return nil }
