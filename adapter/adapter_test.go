package adapter

import (
	"context"
	"math/big"
	"testing"

	"github.com/axonium/axon-core/axontypes"
	"github.com/axonium/axon-core/consensuswal"
	"github.com/axonium/axon-core/executor"
	"github.com/axonium/axon-core/feeallocator"
	"github.com/axonium/axon-core/store"
	"github.com/axonium/axon-core/worldstate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

type stubNetwork struct {
	broadcasts [][]byte
}

func (n *stubNetwork) Broadcast(_ context.Context, payload []byte) error {
	n.broadcasts = append(n.broadcasts, payload)
	return nil
}

func (n *stubNetwork) Transmit(context.Context, common.Address, []byte) error { return nil }

type stubEncoder struct{}

func (stubEncoder) Encode(axontypes.ConsensusMessage) ([]byte, error) { return []byte("msg"), nil }

func newTestAdapter(t *testing.T) (*Adapter, axontypes.Metadata, common.Address) {
	t.Helper()
	proposer := common.HexToAddress("0xf00d")
	genesis := axontypes.Metadata{
		Epoch:       0,
		StartHeight: 0,
		Interval:    1000,
		Verifiers: axontypes.NewAuthorityList([]axontypes.Validator{
			{PubKey: []byte{1}, Address: proposer, ProposeWeight: 1, VoteWeight: 1},
		}),
	}

	backend := worldstate.NewMemoryBackend()
	exec := executor.New(1, nil, feeallocator.NewCell(feeallocator.ProposerTakesAll{}))
	blocks, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { blocks.Close() })

	txWAL := consensuswal.NewSignedTxWAL(consensuswal.NewMemoryStore())
	consWAL := consensuswal.NewConsensusWAL(consensuswal.NewMemoryStore())
	status := consensuswal.NewStatusAgent(Bootstrap(genesis))
	metadata := NewMetadataIndex(genesis)
	mempool := NewInMemoryMempool()

	a := New(1, backend, exec, mempool, &stubNetwork{}, stubEncoder{}, blocks, txWAL, consWAL, status, metadata, nil)
	return a, genesis, proposer
}

func TestBootstrapProducesHeightOneStatus(t *testing.T) {
	genesis := axontypes.Metadata{Epoch: 0, Interval: 2000}
	status := Bootstrap(genesis)
	require.Equal(t, uint64(1), status.Height)
	require.Equal(t, uint64(2000), status.Interval)
}

func buildGenesisBlock(t *testing.T, a *Adapter, validators axontypes.AuthorityList, proposer common.Address) axontypes.Block {
	t.Helper()
	builder := NewProposalBuilder(a.backend, a.executor, func() uint64 { return 1000 })
	header, err := builder.BuildProposal(context.Background(), 1, common.Hash{}, nil, validators)
	require.NoError(t, err)
	header.Proposer = proposer
	return axontypes.Block{Header: header}
}

func TestAdapterCheckBlockAcceptsWellFormedProposal(t *testing.T) {
	a, genesis, proposer := newTestAdapter(t)
	block := buildGenesisBlock(t, a, genesis.Verifiers, proposer)

	err := a.CheckBlock(context.Background(), block, axontypes.SignedProposal{})
	require.NoError(t, err)
}

func TestAdapterCheckBlockRejectsUnauthorizedProposer(t *testing.T) {
	a, genesis, _ := newTestAdapter(t)
	intruder := common.HexToAddress("0xbad")
	block := buildGenesisBlock(t, a, genesis.Verifiers, intruder)

	err := a.CheckBlock(context.Background(), block, axontypes.SignedProposal{})
	require.ErrorIs(t, err, axontypes.ErrAuthorization)
}

func TestAdapterCheckBlockRejectsWrongHeight(t *testing.T) {
	a, genesis, proposer := newTestAdapter(t)
	block := buildGenesisBlock(t, a, genesis.Verifiers, proposer)
	block.Header.Height = 2

	err := a.CheckBlock(context.Background(), block, axontypes.SignedProposal{})
	require.ErrorIs(t, err, axontypes.ErrConsensus)
}

func TestAdapterCheckBlockRejectsTamperedStateRoot(t *testing.T) {
	a, genesis, proposer := newTestAdapter(t)
	block := buildGenesisBlock(t, a, genesis.Verifiers, proposer)
	block.Header.StateRoot = common.HexToHash("0xdeadbeef")

	err := a.CheckBlock(context.Background(), block, axontypes.SignedProposal{})
	require.ErrorIs(t, err, axontypes.ErrConsensus)
}

func TestAdapterCheckBlockValidatesPrevHashAgainstStoredParent(t *testing.T) {
	a, genesis, proposer := newTestAdapter(t)
	genesisBlock := buildGenesisBlock(t, a, genesis.Verifiers, proposer)
	_, err := a.Commit(context.Background(), genesisBlock, axontypes.SignedProposal{})
	require.NoError(t, err)

	parentHash, err := genesisBlock.Header.Hash()
	require.NoError(t, err)

	builder := NewProposalBuilder(a.backend, a.executor, func() uint64 { return 2000 })
	header, err := builder.BuildProposal(context.Background(), 2, parentHash, nil, genesis.Verifiers)
	require.NoError(t, err)
	header.Proposer = proposer
	block := axontypes.Block{Header: header}

	require.NoError(t, a.CheckBlock(context.Background(), block, axontypes.SignedProposal{}))

	block.Header.PrevHash = common.HexToHash("0xbad")
	err = a.CheckBlock(context.Background(), block, axontypes.SignedProposal{})
	require.ErrorIs(t, err, axontypes.ErrConsensus)
}

func TestAdapterCheckBlockRejectsNonAdvancingTimestamp(t *testing.T) {
	a, genesis, proposer := newTestAdapter(t)
	genesisBlock := buildGenesisBlock(t, a, genesis.Verifiers, proposer)
	_, err := a.Commit(context.Background(), genesisBlock, axontypes.SignedProposal{})
	require.NoError(t, err)

	parentHash, err := genesisBlock.Header.Hash()
	require.NoError(t, err)

	builder := NewProposalBuilder(a.backend, a.executor, func() uint64 { return 1000 })
	header, err := builder.BuildProposal(context.Background(), 2, parentHash, nil, genesis.Verifiers)
	require.NoError(t, err)
	header.Proposer = proposer
	block := axontypes.Block{Header: header}

	err = a.CheckBlock(context.Background(), block, axontypes.SignedProposal{})
	require.ErrorIs(t, err, axontypes.ErrConsensus)
}

func TestAdapterCommitPersistsBlockAndAdvancesStatus(t *testing.T) {
	a, genesis, proposer := newTestAdapter(t)
	block := buildGenesisBlock(t, a, genesis.Verifiers, proposer)

	next, err := a.Commit(context.Background(), block, axontypes.SignedProposal{})
	require.NoError(t, err)
	require.Equal(t, uint64(2), next.Height)

	got, ok, err := a.blocks.GetBlockByHeight(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, proposer, got.Header.Proposer)

	require.Equal(t, next, a.status.Current())
}

func TestAdapterCommitEvictsCommittedTxsFromMempool(t *testing.T) {
	a, genesis, proposer := newTestAdapter(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	unsigned := axontypes.UnsignedTransaction{GasLimit: 21000, GasPrice: big.NewInt(0), Value: big.NewInt(0)}
	txHash, err := unsigned.Hash()
	require.NoError(t, err)
	sig, err := crypto.Sign(txHash.Bytes(), key)
	require.NoError(t, err)
	tx := axontypes.SignedTransaction{
		Unsigned: unsigned,
		TxHash:   txHash,
		Sig:      axontypes.Signature{V: sig[64], R: new(big.Int).SetBytes(sig[0:32]), S: new(big.Int).SetBytes(sig[32:64])},
	}
	a.mempool.(*InMemoryMempool).Add(tx)

	builder := NewProposalBuilder(a.backend, a.executor, func() uint64 { return 1000 })
	header, err := builder.BuildProposal(context.Background(), 1, common.Hash{}, []axontypes.SignedTransaction{tx}, genesis.Verifiers)
	require.NoError(t, err)
	header.Proposer = proposer
	block := axontypes.Block{Header: header, Txs: []axontypes.SignedTransaction{tx}}

	_, err = a.Commit(context.Background(), block, axontypes.SignedProposal{})
	require.NoError(t, err)

	left, err := a.mempool.ByHash(context.Background(), []common.Hash{tx.TxHash})
	require.NoError(t, err)
	require.Empty(t, left, "committed transactions must be evicted from the mempool")
}

func TestAdapterIsValidatorChecksMetadataEpoch(t *testing.T) {
	a, genesis, proposer := newTestAdapter(t)
	require.True(t, a.IsValidator(1, proposer))
	require.False(t, a.IsValidator(1, common.HexToAddress("0xbad")))
	_ = genesis
}

func TestAdapterBroadcastUsesEncoderAndNetwork(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	err := a.Broadcast(context.Background(), axontypes.ConsensusMessage{})
	require.NoError(t, err)
	require.Len(t, a.network.(*stubNetwork).broadcasts, 1)
}
