package syscontract

import (
	"context"
	"math/big"
	"testing"

	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/worldstate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
)

type alwaysValidator struct{}

func (alwaysValidator) IsValidator(uint64, common.Address) bool { return true }

type neverValidator struct{}

func (neverValidator) IsValidator(uint64, common.Address) bool { return false }

func appendMetadataCalldata(t *testing.T, m axontypes.Metadata) []byte {
	t.Helper()
	enc, err := rlp.EncodeToBytes(m)
	require.NoError(t, err)
	return append(appendMetadataSelector[:], enc...)
}

func signedSysCall(t *testing.T, to common.Address, data []byte, gasLimit uint64) axontypes.SignedTransaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	u := axontypes.UnsignedTransaction{
		ChainID:  big.NewInt(1),
		GasPrice: big.NewInt(0),
		GasLimit: gasLimit,
		Action:   axontypes.Action{To: &to},
		Value:    big.NewInt(0),
		Data:     data,
	}
	hash, err := u.Hash()
	require.NoError(t, err)
	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)
	return axontypes.SignedTransaction{
		Unsigned: u,
		ChainID:  big.NewInt(1),
		TxHash:   hash,
		Sig: axontypes.Signature{
			V: sig[64],
			R: new(big.Int).SetBytes(sig[0:32]),
			S: new(big.Int).SetBytes(sig[32:64]),
		},
	}
}

func TestMetadataContractBootstrapAtGenesis(t *testing.T) {
	c := NewMetadataContract(neverValidator{})
	backend := worldstate.NewMemoryBackend()
	md := axontypes.Metadata{Epoch: 0, StartHeight: 0, Interval: 3000}
	tx := signedSysCall(t, c.Address(), appendMetadataCalldata(t, md), 100000)

	resp, err := c.Exec(context.Background(), backend, tx, 0)
	require.NoError(t, err)
	require.Equal(t, 0, resp.ExitCode, "block 0 must bypass the validator check")

	got, ok := c.Metadata(0)
	require.True(t, ok)
	require.Equal(t, md.Interval, got.Interval)
}

func TestMetadataContractRejectsNonValidatorPastGenesis(t *testing.T) {
	c := NewMetadataContract(neverValidator{})
	backend := worldstate.NewMemoryBackend()
	md := axontypes.Metadata{Epoch: 1, StartHeight: 100, Interval: 3000}
	tx := signedSysCall(t, c.Address(), appendMetadataCalldata(t, md), 100000)

	resp, err := c.Exec(context.Background(), backend, tx, 100)
	require.Error(t, err)
	require.Equal(t, 1, resp.ExitCode)
	require.Equal(t, tx.Unsigned.GasLimit, resp.GasUsed, "reverts still consume the full gas limit")

	_, ok := c.Metadata(1)
	require.False(t, ok, "a reverted call must not be cached")
}

func TestMetadataContractRejectsUnknownSelector(t *testing.T) {
	c := NewMetadataContract(alwaysValidator{})
	backend := worldstate.NewMemoryBackend()
	tx := signedSysCall(t, c.Address(), []byte{0xde, 0xad, 0xbe, 0xef, 0x00}, 100000)

	resp, err := c.Exec(context.Background(), backend, tx, 1)
	require.Error(t, err)
	require.Equal(t, 1, resp.ExitCode)
}

func TestDispatcherRoutesOnlyRegisteredAddresses(t *testing.T) {
	c := NewMetadataContract(alwaysValidator{})
	d := NewDispatcher(c)
	backend := worldstate.NewMemoryBackend()

	md := axontypes.Metadata{Epoch: 0, Interval: 3000}
	hit := signedSysCall(t, c.Address(), appendMetadataCalldata(t, md), 100000)
	handled, _, err := d.Dispatch(context.Background(), backend, hit, 0)
	require.NoError(t, err)
	require.True(t, handled)

	miss := signedSysCall(t, common.HexToAddress("0xdeadbeef"), nil, 21000)
	handled, _, err = d.Dispatch(context.Background(), backend, miss, 0)
	require.NoError(t, err)
	require.False(t, handled)
}
