package axontypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Proposal is the content a block proposer commits to for a given
// height and round. Proposals are content-addressed: Hash() is a pure
// function of the exported fields, so equal hash implies equal content.
type Proposal struct {
	Height        uint64
	Round         uint64
	Proposer      common.Address
	PrevHash      common.Hash
	StateRoot     common.Hash
	ReceiptsRoot  common.Hash
	TxHashesRoot  common.Hash
	GasUsed       uint64
	Timestamp     uint64
	TxHashes      []common.Hash
}

type rlpProposal struct {
	Height       uint64
	Round        uint64
	Proposer     common.Address
	PrevHash     common.Hash
	StateRoot    common.Hash
	ReceiptsRoot common.Hash
	TxHashesRoot common.Hash
	GasUsed      uint64
	Timestamp    uint64
	TxHashes     []common.Hash
}

func (p *Proposal) toRLP() rlpProposal {
	return rlpProposal{
		Height:       p.Height,
		Round:        p.Round,
		Proposer:     p.Proposer,
		PrevHash:     p.PrevHash,
		StateRoot:    p.StateRoot,
		ReceiptsRoot: p.ReceiptsRoot,
		TxHashesRoot: p.TxHashesRoot,
		GasUsed:      p.GasUsed,
		Timestamp:    p.Timestamp,
		TxHashes:     p.TxHashes,
	}
}

// EncodeRLP returns the canonical encoding of the proposal.
func (p *Proposal) EncodeRLP() ([]byte, error) {
	return rlp.EncodeToBytes(p.toRLP())
}

// Hash returns the content address of the proposal: keccak256 of its
// canonical RLP encoding.
func (p *Proposal) Hash() (common.Hash, error) {
	enc, err := p.EncodeRLP()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// TxHashesCommitment returns the binary merkle root (merkleRoot) of the
// proposal's transaction hashes, used to check a block body against its
// proposal.
func TxHashesCommitment(hashes []common.Hash) common.Hash {
	if len(hashes) == 0 {
		return EmptyStorageRoot
	}
	leaves := make([][]byte, len(hashes))
	for i, h := range hashes {
		leaves[i] = h.Bytes()
	}
	return merkleRoot(leaves)
}

// ReceiptsRoot computes the merkle root of the indexed (tx_index,
// receipt_leaf) sequence, per spec §4.3 step 5 / §6.
func ReceiptsRoot(receipts []Receipt) common.Hash {
	if len(receipts) == 0 {
		return EmptyStorageRoot
	}
	leaves := make([][]byte, len(receipts))
	for i, r := range receipts {
		enc, _ := rlp.EncodeToBytes(struct {
			Index uint64
			Leaf  common.Hash
		}{uint64(i), r.Leaf})
		leaves[i] = enc
	}
	return merkleRoot(leaves)
}

// merkleRoot is a simple binary merkle tree over opaque leaves, odd
// layers duplicating the last leaf. It is deterministic and
// order-sensitive by construction, satisfying the "no iteration-order
// dependence" determinism contract of spec §4.3.
func merkleRoot(leaves [][]byte) common.Hash {
	level := make([]common.Hash, len(leaves))
	for i, l := range leaves {
		level[i] = crypto.Keccak256Hash(l)
	}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, crypto.Keccak256Hash(level[i].Bytes(), level[i].Bytes()))
			} else {
				next = append(next, crypto.Keccak256Hash(level[i].Bytes(), level[i+1].Bytes()))
			}
		}
		level = next
	}
	return level[0]
}

// Block is the committed form of a proposal: header fields plus the
// ordered transactions it carries, persisted to the block store.
type Block struct {
	Header Proposal
	Txs    []SignedTransaction
}

// ExecResp is the aggregate result of executing a batch of transactions
// in order, returned by executor.Exec.
type ExecResp struct {
	StateRoot    common.Hash
	ReceiptsRoot common.Hash
	GasUsed      uint64
	Receipts     []Receipt
	TotalFee     *big.Int
}
