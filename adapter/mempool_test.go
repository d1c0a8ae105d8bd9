package adapter

import (
	"context"
	"testing"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func txWithGas(hash byte, gasLimit uint64) axontypes.SignedTransaction {
	return axontypes.SignedTransaction{
		Unsigned: axontypes.UnsignedTransaction{GasLimit: gasLimit},
		TxHash:   common.BytesToHash([]byte{hash}),
	}
}

func TestInMemoryMempoolPendingOrdersByArrival(t *testing.T) {
	m := NewInMemoryMempool()
	m.Add(txWithGas(1, 1000))
	m.Add(txWithGas(2, 1000))
	m.Add(txWithGas(3, 1000))

	out, err := m.Pending(context.Background(), 10_000, 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, txWithGas(1, 1000).TxHash, out[0].TxHash)
	require.Equal(t, txWithGas(2, 1000).TxHash, out[1].TxHash)
	require.Equal(t, txWithGas(3, 1000).TxHash, out[2].TxHash)
}

func TestInMemoryMempoolPendingRespectsGasLimit(t *testing.T) {
	m := NewInMemoryMempool()
	m.Add(txWithGas(1, 6000))
	m.Add(txWithGas(2, 6000))

	out, err := m.Pending(context.Background(), 10_000, 10)
	require.NoError(t, err)
	require.Len(t, out, 1, "second tx does not fit under the gas limit")
}

func TestInMemoryMempoolPendingRespectsCount(t *testing.T) {
	m := NewInMemoryMempool()
	m.Add(txWithGas(1, 100))
	m.Add(txWithGas(2, 100))
	m.Add(txWithGas(3, 100))

	out, err := m.Pending(context.Background(), 1_000_000, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestInMemoryMempoolByHashAndRemove(t *testing.T) {
	m := NewInMemoryMempool()
	tx := txWithGas(1, 100)
	m.Add(tx)

	found, err := m.ByHash(context.Background(), []common.Hash{tx.TxHash})
	require.NoError(t, err)
	require.Len(t, found, 1)

	m.Remove([]common.Hash{tx.TxHash})
	found, err = m.ByHash(context.Background(), []common.Hash{tx.TxHash})
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestInMemoryMempoolAddIsIdempotent(t *testing.T) {
	m := NewInMemoryMempool()
	tx := txWithGas(1, 100)
	m.Add(tx)
	m.Add(tx)

	out, err := m.Pending(context.Background(), 1_000_000, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
}
