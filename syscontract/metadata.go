package syscontract

import (
	"context"
	"fmt"
	"sync"

	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/worldstate"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// metadataCacheSize bounds the epoch segment store, matching the
// teacher's per-slot proposer-selection cache capacity generalized to a
// bounded LRU rather than an unbounded map (spec §4.4, §5 resource
// policy: "metadata LRU is capped at 10 entries").
const metadataCacheSize = 10

// appendMetadataSelector is the first four bytes of
// keccak256("appendMetadata(bytes)"), the calldata discriminator the
// contract accepts; every other selector reverts (spec §4.4's "reject
// unknown selectors").
var appendMetadataSelector = func() [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte("appendMetadata(bytes)"))[:4])
	return sel
}()

// ValidatorChecker reports whether addr is an authorized validator as of
// blockNumber, the authorization gate append_metadata is guarded by.
type ValidatorChecker interface {
	IsValidator(blockNumber uint64, addr common.Address) bool
}

// MetadataContract is the native contract at address 0x...01. It accepts
// a single append_metadata call guarded by validator authorization
// (bootstrapped open at block 0), stores the result in a capacity-10 LRU
// keyed by epoch, and stamps a content-addressed commitment into its own
// account's storage root.
type MetadataContract struct {
	checker  ValidatorChecker
	onUpdate func(axontypes.Metadata)

	mu    sync.RWMutex
	cache *lru.Cache[uint64, axontypes.Metadata]
}

// SetOnUpdate registers a callback invoked synchronously with every
// successfully appended metadata, the hook the adapter uses to keep its
// own height-ordered epoch index (adapter.MetadataIndex) in sync with
// what the system contract just accepted (spec §4.4/§4.2 boundary).
func (c *MetadataContract) SetOnUpdate(fn func(axontypes.Metadata)) {
	c.onUpdate = fn
}

// NewMetadataContract constructs the contract. checker may be nil only
// for tests that never exercise a height beyond genesis.
func NewMetadataContract(checker ValidatorChecker) *MetadataContract {
	cache, err := lru.New[uint64, axontypes.Metadata](metadataCacheSize)
	if err != nil {
		panic(fmt.Sprintf("syscontract: metadata cache: %v", err))
	}
	return &MetadataContract{checker: checker, cache: cache}
}

func (c *MetadataContract) Address() common.Address {
	return systemContractAddress(0x1)
}

func (c *MetadataContract) Exec(ctx context.Context, backend worldstate.Backend, tx axontypes.SignedTransaction, blockNumber uint64) (axontypes.TxResp, error) {
	gasLimit := tx.Unsigned.GasLimit
	sender, err := tx.Sender()
	if err != nil {
		return revertResp(gasLimit), fmt.Errorf("%w: recover sender: %v", axontypes.ErrDecode, err)
	}

	if blockNumber != 0 {
		if c.checker == nil || !c.checker.IsValidator(blockNumber, sender) {
			return revertResp(gasLimit), fmt.Errorf("%w: %s is not a validator at height %d", axontypes.ErrAuthorization, sender, blockNumber)
		}
	}

	data := tx.Unsigned.Data
	if len(data) < 4 {
		return revertResp(gasLimit), fmt.Errorf("%w: calldata too short", axontypes.ErrDecode)
	}
	var selector [4]byte
	copy(selector[:], data[:4])
	if selector != appendMetadataSelector {
		return revertResp(gasLimit), fmt.Errorf("%w: unknown selector %x", axontypes.ErrDecode, selector)
	}

	var metadata axontypes.Metadata
	if err := rlp.DecodeBytes(data[4:], &metadata); err != nil {
		return revertResp(gasLimit), fmt.Errorf("%w: decode metadata: %v", axontypes.ErrDecode, err)
	}

	c.mu.Lock()
	c.cache.Add(metadata.Epoch, metadata)
	c.mu.Unlock()

	if err := c.updateMPTRoot(backend, metadata); err != nil {
		return revertResp(gasLimit), err
	}

	if c.onUpdate != nil {
		c.onUpdate(metadata)
	}

	return succeedResp(gasLimit), nil
}

// Metadata returns the cached metadata for an epoch, if still resident
// in the capacity-10 LRU.
func (c *MetadataContract) Metadata(epoch uint64) (axontypes.Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Get(epoch)
}

// updateMPTRoot stamps a content-addressed commitment of the freshly
// appended metadata into the contract's own account storage root, the
// native-contract analogue of update_mpt_root in the original
// implementation: the EVM never writes this account's storage itself, so
// the commitment has to be threaded through explicitly.
func (c *MetadataContract) updateMPTRoot(backend worldstate.Backend, metadata axontypes.Metadata) error {
	enc, err := rlp.EncodeToBytes(metadata)
	if err != nil {
		return fmt.Errorf("%w: encode metadata commitment: %v", axontypes.ErrBackend, err)
	}
	addr := c.Address()
	acc, err := backend.GetAccount(addr)
	if err != nil {
		return fmt.Errorf("%w: load system contract account: %v", axontypes.ErrBackend, err)
	}
	acc.StorageRoot = crypto.Keccak256Hash(acc.StorageRoot.Bytes(), enc)
	return backend.SetAccount(addr, acc)
}
