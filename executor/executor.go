// Package executor implements the deterministic transaction execution
// pipeline: a read-only Call path and a state-mutating Exec path, both
// operating against a worldstate.Backend (spec §4.3). The EVM itself is
// an opaque dependency — github.com/ethereum/go-ethereum/core/vm — this
// package owns only the surrounding gas accounting, system-contract
// interception, and fee-allocation steps spec.md spells out.
package executor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/feeallocator"
	"github.com/axonium/axon-core/worldstate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// blockGasLimit bounds a single block's worth of EVM work. There is no
// on-chain gas-limit-adjustment mechanism in scope here, so it is fixed.
const blockGasLimit = 30_000_000

// SystemContractDispatcher intercepts a transaction before it reaches the
// EVM. Implementations report whether they handled the call at all
// (unhandled transactions fall through to the EVM); spec §4.4.
type SystemContractDispatcher interface {
	Dispatch(ctx context.Context, backend worldstate.Backend, tx axontypes.SignedTransaction, blockNumber uint64) (handled bool, resp axontypes.TxResp, err error)
}

// Executor runs transactions against a worldstate.Backend. The rule set
// is fixed at London, per spec.md's explicit scope.
type Executor struct {
	chainConfig *params.ChainConfig
	dispatcher  SystemContractDispatcher
	allocator   *feeallocator.Cell
	vmConfig    vm.Config
}

// New constructs an Executor for the given chain id. dispatcher may be
// nil, in which case every transaction goes straight to the EVM.
func New(chainID uint64, dispatcher SystemContractDispatcher, allocator *feeallocator.Cell) *Executor {
	zero := big.NewInt(0)
	return &Executor{
		chainConfig: &params.ChainConfig{
			ChainID:             new(big.Int).SetUint64(chainID),
			HomesteadBlock:      zero,
			EIP150Block:         zero,
			EIP155Block:         zero,
			EIP158Block:         zero,
			ByzantiumBlock:      zero,
			ConstantinopleBlock: zero,
			PetersburgBlock:     zero,
			IstanbulBlock:       zero,
			MuirGlacierBlock:    zero,
			BerlinBlock:         zero,
			LondonBlock:         zero,
		},
		dispatcher: dispatcher,
		allocator:  allocator,
	}
}

// Call runs a single read-only transaction against an immutable snapshot
// of backend and never persists its effects (spec §4.3).
func (e *Executor) Call(ctx context.Context, backend worldstate.Backend, from common.Address, to *common.Address, value *uint256.Int, gasLimit uint64, data []byte) (*axontypes.TxResp, error) {
	snap := backend.Snapshot()
	snap.SetOrigin(from)

	intrinsic := intrinsicGas(to == nil, data)
	if gasLimit < intrinsic {
		return &axontypes.TxResp{ExitCode: 1, GasUsed: gasLimit}, nil
	}

	stateDB := newEVMStateDB(snap)
	evm := e.newEVM(snap.BlockNumber(), 0, stateDB)
	evm.SetTxContext(vm.TxContext{Origin: from, GasPrice: big.NewInt(0)})

	var (
		ret         []byte
		codeAddress *common.Address
		leftover    uint64
		vmErr       error
	)
	if to == nil {
		var contractAddr common.Address
		ret, contractAddr, leftover, vmErr = evm.Create(from, data, gasLimit-intrinsic, value)
		codeAddress = &contractAddr
	} else {
		ret, leftover, vmErr = evm.Call(from, *to, data, gasLimit-intrinsic, value)
	}

	resp := &axontypes.TxResp{
		Ret:         ret,
		GasUsed:     gasLimit - leftover,
		CodeAddress: codeAddress,
		Logs:        stateDB.backend.GetLogs(),
	}
	if vmErr != nil {
		resp.ExitCode = 1
	}
	return resp, nil
}

// Exec serially executes txs against backend in the given order,
// mutating it in place, and returns the aggregate receipt set and new
// state root (spec §4.3).
func (e *Executor) Exec(ctx context.Context, backend worldstate.Backend, header axontypes.Proposal, txs []axontypes.SignedTransaction, validators axontypes.AuthorityList) (*axontypes.ExecResp, error) {
	backend.SetBlockNumber(header.Height)

	receipts := make([]axontypes.Receipt, 0, len(txs))
	var totalGasUsed uint64
	totalFee := uint256.NewInt(0)

	for i, tx := range txs {
		resp, fee, err := e.execOne(ctx, backend, tx, header.Height, header.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: tx %d (%s): %v", axontypes.ErrBackend, i, tx.TxHash, err)
		}
		totalGasUsed += resp.GasUsed
		totalFee = new(uint256.Int).Add(totalFee, fee)
		receipts = append(receipts, axontypes.Receipt{
			TxHash:  tx.TxHash,
			Success: resp.ExitCode == 0,
			GasUsed: resp.GasUsed,
			Logs:    resp.Logs,
			Leaf:    crypto.Keccak256Hash(resp.Ret),
		})
	}

	if header.Height > 0 {
		if err := e.allocateFees(backend, header, totalFee, validators); err != nil {
			return nil, err
		}
	}

	root, err := backend.Commit()
	if err != nil {
		return nil, fmt.Errorf("%w: commit: %v", axontypes.ErrBackend, err)
	}

	return &axontypes.ExecResp{
		StateRoot:    root,
		ReceiptsRoot: axontypes.ReceiptsRoot(receipts),
		GasUsed:      totalGasUsed,
		Receipts:     receipts,
		TotalFee:     totalFee.ToBig(),
	}, nil
}

// execOne runs one transaction's full pipeline: system-contract
// interception, then intrinsic gas, prepay, EVM execution, diff
// apply/discard, refund. The EVM always runs against a fresh
// worldstate.Overlay wrapping backend, never against backend directly:
// on success the overlay's diff is merged into backend via ApplyTo, and
// on revert it is simply dropped. backend itself is never reassigned or
// swapped, so its pointer identity — which callers such as the adapter
// hold onto across an entire block — survives a reverting transaction
// intact (spec §3 Ownership, §4.3 step 3).
func (e *Executor) execOne(ctx context.Context, backend worldstate.Backend, tx axontypes.SignedTransaction, blockNumber, timestamp uint64) (*axontypes.TxResp, *uint256.Int, error) {
	from, err := tx.Sender()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: recover sender: %v", axontypes.ErrAuthorization, err)
	}

	backend.SetOrigin(from)
	backend.SetGasPrice(tx.Unsigned.GasPrice)

	if e.dispatcher != nil {
		handled, resp, dispatchErr := e.dispatcher.Dispatch(ctx, backend, tx, blockNumber)
		if handled {
			if dispatchErr != nil {
				log.Debug("system contract reverted", "tx", tx.TxHash, "err", dispatchErr)
			}
			acc, gErr := backend.GetAccount(from)
			if gErr == nil {
				acc.Nonce++
				_ = backend.SetAccount(from, acc)
			}
			return &resp, uint256.NewInt(0), nil
		}
	}

	gasPrice, overflow := uint256.FromBig(tx.Unsigned.GasPrice)
	if overflow {
		return nil, nil, fmt.Errorf("%w: gas price overflow", axontypes.ErrDecode)
	}
	value, overflow := uint256.FromBig(tx.Unsigned.Value)
	if overflow {
		return nil, nil, fmt.Errorf("%w: value overflow", axontypes.ErrDecode)
	}

	gasLimit := tx.Unsigned.GasLimit
	prepay := new(uint256.Int).Mul(uint256.NewInt(gasLimit), gasPrice)

	// Prepay and the nonce bump land directly on backend: they apply
	// regardless of whether the call below succeeds or reverts.
	senderAcc, err := backend.GetAccount(from)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load sender: %v", axontypes.ErrBackend, err)
	}
	senderAcc.Balance = new(uint256.Int).Sub(senderAcc.Balance, prepay)
	senderAcc.Nonce++
	if err := backend.SetAccount(from, senderAcc); err != nil {
		return nil, nil, fmt.Errorf("%w: prepay: %v", axontypes.ErrBackend, err)
	}

	intrinsic := intrinsicGas(tx.Unsigned.Action.IsCreate(), tx.Unsigned.Data)
	overlay := worldstate.NewOverlay(backend)
	stateDB := newEVMStateDB(overlay)
	evm := e.newEVM(blockNumber, timestamp, stateDB)
	evm.SetTxContext(vm.TxContext{Origin: from, GasPrice: tx.Unsigned.GasPrice})

	var (
		ret         []byte
		codeAddress *common.Address
		leftover    uint64
		vmErr       error
	)
	switch {
	case gasLimit < intrinsic:
		vmErr = axontypes.ErrExecutionRevert
		leftover = 0
	case tx.Unsigned.Action.IsCreate():
		var contractAddr common.Address
		ret, contractAddr, leftover, vmErr = evm.Create(from, tx.Unsigned.Data, gasLimit-intrinsic, value)
		codeAddress = &contractAddr
	default:
		ret, leftover, vmErr = evm.Call(from, *tx.Unsigned.Action.To, tx.Unsigned.Data, gasLimit-intrinsic, value)
	}

	resp := &axontypes.TxResp{Ret: ret, CodeAddress: codeAddress, GasUsed: gasLimit - leftover}

	// The EVM's own nested-call reverts may have left stateDB.backend
	// pointing at one of the overlay's own Snapshot clones rather than
	// the original overlay value; that clone is still a *worldstate.Overlay
	// wrapping the same parent, so the type assertion always holds.
	final, ok := stateDB.backend.(*worldstate.Overlay)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unexpected state backend type in execOne", axontypes.ErrBackend)
	}

	if vmErr == nil {
		resp.Logs = final.GetLogs()
		if err := final.ApplyTo(backend); err != nil {
			return nil, nil, fmt.Errorf("%w: apply tx diff: %v", axontypes.ErrBackend, err)
		}
	} else {
		resp.ExitCode = 1
	}

	refund := new(uint256.Int).Mul(uint256.NewInt(leftover), gasPrice)
	if !refund.IsZero() {
		acc, err := backend.GetAccount(from)
		if err == nil {
			acc.Balance = new(uint256.Int).Add(acc.Balance, refund)
			_ = backend.SetAccount(from, acc)
		}
	}

	fee := new(uint256.Int).Mul(uint256.NewInt(resp.GasUsed), gasPrice)
	resp.FeeCollected = fee.ToBig()
	return resp, fee, nil
}

func (e *Executor) allocateFees(backend worldstate.Backend, header axontypes.Proposal, totalFee *uint256.Int, validators axontypes.AuthorityList) error {
	allocator := e.allocator.Load()
	credits, err := allocator.Allocate(header.Height, totalFee, header.Proposer, validators)
	if err != nil {
		return fmt.Errorf("%w: fee allocation: %v", axontypes.ErrBackend, err)
	}
	for _, credit := range credits {
		acc, err := backend.GetAccount(credit.Address)
		if err != nil {
			return fmt.Errorf("%w: load credited account: %v", axontypes.ErrBackend, err)
		}
		acc.Balance = new(uint256.Int).Add(acc.Balance, credit.Amount)
		if err := backend.SetAccount(credit.Address, acc); err != nil {
			return fmt.Errorf("%w: credit account: %v", axontypes.ErrBackend, err)
		}
	}
	return nil
}

func (e *Executor) newEVM(blockNumber, timestamp uint64, stateDB vm.StateDB) *vm.EVM {
	blockCtx := vm.BlockContext{
		CanTransfer: func(db vm.StateDB, addr common.Address, amount *uint256.Int) bool {
			return db.GetBalance(addr).Cmp(amount) >= 0
		},
		Transfer: func(db vm.StateDB, from, to common.Address, amount *uint256.Int) {
			db.SubBalance(from, amount, 0)
			db.AddBalance(to, amount, 0)
		},
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		BlockNumber: new(big.Int).SetUint64(blockNumber),
		Time:        timestamp,
		GasLimit:    blockGasLimit,
		BaseFee:     big.NewInt(0),
	}
	return vm.NewEVM(blockCtx, stateDB, e.chainConfig, e.vmConfig)
}

// intrinsicGas mirrors go-ethereum's own pre-Shanghai intrinsic gas
// formula: a flat base (more for contract creation) plus a per-byte data
// cost, cheaper for zero bytes (spec §4.3 call: "base gas charge (create
// vs call, plus per-byte data cost)").
func intrinsicGas(isCreate bool, data []byte) uint64 {
	gas := params.TxGas
	if isCreate {
		gas = params.TxGasContractCreation
	}
	var zeros, nonZeros uint64
	for _, b := range data {
		if b == 0 {
			zeros++
		} else {
			nonZeros++
		}
	}
	gas += zeros * params.TxDataZeroGas
	gas += nonZeros * params.TxDataNonZeroGasEIP2028
	return gas
}
