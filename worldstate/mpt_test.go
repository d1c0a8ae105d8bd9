package worldstate

import (
	"testing"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func newTestMPTBackend(t *testing.T) *MPTBackend {
	t.Helper()
	b, err := OpenMPTBackend(memorydb.New(), memorydb.New(), common.Hash{})
	require.NoError(t, err)
	return b
}

func TestMPTBackendSetGetAccountBeforeCommit(t *testing.T) {
	b := newTestMPTBackend(t)
	addr := common.HexToAddress("0x1")
	acc := axontypes.NewAccount()
	acc.Balance = uint256.NewInt(42)
	acc.Nonce = 3

	require.NoError(t, b.SetAccount(addr, acc))

	got, err := b.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(3), got.Nonce)
	require.True(t, got.Balance.Eq(uint256.NewInt(42)))
}

func TestMPTBackendCommitIsDeterministic(t *testing.T) {
	addr1 := common.HexToAddress("0x1")
	addr2 := common.HexToAddress("0x2")

	build := func() common.Hash {
		b := newTestMPTBackend(t)
		acc1 := axontypes.NewAccount()
		acc1.Balance = uint256.NewInt(10)
		acc2 := axontypes.NewAccount()
		acc2.Balance = uint256.NewInt(20)
		require.NoError(t, b.SetAccount(addr2, acc2))
		require.NoError(t, b.SetAccount(addr1, acc1))
		root, err := b.Commit()
		require.NoError(t, err)
		return root
	}

	root1 := build()
	root2 := build()
	require.Equal(t, root1, root2, "commit root must not depend on write order")
}

func TestMPTBackendGetAccountAfterCommitReadsThroughTrie(t *testing.T) {
	b := newTestMPTBackend(t)
	addr := common.HexToAddress("0x1")
	acc := axontypes.NewAccount()
	acc.Balance = uint256.NewInt(7)
	require.NoError(t, b.SetAccount(addr, acc))
	_, err := b.Commit()
	require.NoError(t, err)

	got, err := b.GetAccount(addr)
	require.NoError(t, err)
	require.True(t, got.Balance.Eq(uint256.NewInt(7)))
}

func TestMPTBackendMissingAccountIsDefault(t *testing.T) {
	b := newTestMPTBackend(t)
	got, err := b.GetAccount(common.HexToAddress("0xdead"))
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())
	require.Equal(t, uint64(0), got.Nonce)
}

func TestMPTBackendCodeRoundTrip(t *testing.T) {
	b := newTestMPTBackend(t)
	code := []byte{0x60, 0x00, 0x60, 0x00}
	hash, err := b.SetCode(code)
	require.NoError(t, err)

	got, err := b.GetCode(hash)
	require.NoError(t, err)
	require.Equal(t, code, got)
}

func TestMPTBackendSnapshotCommitDoesNotFlushToParent(t *testing.T) {
	b := newTestMPTBackend(t)
	addr := common.HexToAddress("0x1")
	acc := axontypes.NewAccount()
	acc.Balance = uint256.NewInt(5)
	require.NoError(t, b.SetAccount(addr, acc))
	liveRoot, err := b.Commit()
	require.NoError(t, err)

	snap := b.Snapshot()
	changed := axontypes.NewAccount()
	changed.Balance = uint256.NewInt(999)
	require.NoError(t, snap.SetAccount(addr, changed))
	snapRoot, err := snap.Commit()
	require.NoError(t, err)
	require.NotEqual(t, liveRoot, snapRoot, "speculative commit must compute a different root")

	got, err := b.GetAccount(addr)
	require.NoError(t, err)
	require.True(t, got.Balance.Eq(uint256.NewInt(5)), "a snapshot's Commit must never mutate the live backend's state")

	root, err := b.Commit()
	require.NoError(t, err)
	require.Equal(t, liveRoot, root, "the live backend's own root must be unaffected by a snapshot's Commit")
}

func TestMPTBackendSnapshotCarriesUncommittedStorageAndCode(t *testing.T) {
	b := newTestMPTBackend(t)
	addr := common.HexToAddress("0x1")
	key := common.HexToHash("0x2")
	require.NoError(t, b.SetStorage(addr, key, common.HexToHash("0x9")))
	code := []byte{0x60, 0x01, 0x60, 0x02}
	hash, err := b.SetCode(code)
	require.NoError(t, err)

	snap := b.Snapshot()

	slot, err := snap.GetStorage(addr, key)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x9"), slot, "an uncommitted storage write must still be visible in a snapshot")

	gotCode, err := snap.GetCode(hash)
	require.NoError(t, err)
	require.Equal(t, code, gotCode, "uncommitted code must still be visible in a snapshot")
}

func TestMPTBackendSnapshotIsolatesWrites(t *testing.T) {
	b := newTestMPTBackend(t)
	addr := common.HexToAddress("0x1")
	acc := axontypes.NewAccount()
	acc.Balance = uint256.NewInt(5)
	require.NoError(t, b.SetAccount(addr, acc))

	snap := b.Snapshot()
	changed := axontypes.NewAccount()
	changed.Balance = uint256.NewInt(999)
	require.NoError(t, snap.SetAccount(addr, changed))

	got, err := b.GetAccount(addr)
	require.NoError(t, err)
	require.True(t, got.Balance.Eq(uint256.NewInt(5)), "writes to a snapshot must not leak back")
}
