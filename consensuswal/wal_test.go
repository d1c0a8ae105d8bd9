package consensuswal

import (
	"math/big"
	"testing"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func sampleTx(t *testing.T) axontypes.SignedTransaction {
	t.Helper()
	to := common.HexToAddress("0x1")
	u := axontypes.UnsignedTransaction{
		ChainID: big.NewInt(1), GasPrice: big.NewInt(1), GasLimit: 21000,
		Action: axontypes.Action{To: &to}, Value: big.NewInt(0),
	}
	hash, err := u.Hash()
	require.NoError(t, err)
	return axontypes.SignedTransaction{Unsigned: u, ChainID: big.NewInt(1), TxHash: hash}
}

func TestSignedTxWALRoundTrip(t *testing.T) {
	wal := NewSignedTxWAL(NewMemoryStore())
	txs := []axontypes.SignedTransaction{sampleTx(t)}

	require.NoError(t, wal.Append(5, 1, txs))

	got, ok, err := wal.Load(5, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, txs[0].TxHash, got[0].TxHash)

	_, ok, err = wal.Load(5, 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignedTxWALPrune(t *testing.T) {
	wal := NewSignedTxWAL(NewMemoryStore())
	txs := []axontypes.SignedTransaction{sampleTx(t)}
	require.NoError(t, wal.Append(1, 0, txs))
	require.NoError(t, wal.Append(2, 0, txs))
	require.NoError(t, wal.Append(3, 0, txs))

	require.NoError(t, wal.Prune(2))

	_, ok, err := wal.Load(1, 0)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = wal.Load(2, 0)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = wal.Load(3, 0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConsensusWALRoundTrip(t *testing.T) {
	wal := NewConsensusWAL(NewMemoryStore())
	record := axontypes.ConsensusWALRecord{Height: 10, Round: 2, Phase: axontypes.PhasePrecommit, LockHash: []byte{1, 2, 3}}

	require.NoError(t, wal.Append(record))

	got, ok, err := wal.Load(10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.Phase, got.Phase)
	require.Equal(t, record.LockHash, got.LockHash)
}

func TestStatusAgentUpdateIsVisible(t *testing.T) {
	agent := NewStatusAgent(axontypes.RichStatus{Height: 0})
	agent.Update(axontypes.RichStatus{Height: 1})
	require.Equal(t, uint64(1), agent.Current().Height)
}
