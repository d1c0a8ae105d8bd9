package axontypes

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// AccessTuple is a single entry of an EIP-2930/1559 access list.
type AccessTuple struct {
	Address     common.Address
	StorageKeys []common.Hash
}

// Action is the destination discriminator of an unsigned transaction:
// either Create (to == nil) or Call to a concrete address.
type Action struct {
	To *common.Address // nil means contract creation
}

// IsCreate reports whether the action creates a new contract.
func (a Action) IsCreate() bool { return a.To == nil }

// UnsignedTransaction is the EIP-1559-style transaction body, exclusive
// of the signature, over which the transaction hash and the signature
// itself are computed.
type UnsignedTransaction struct {
	ChainID              *big.Int
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int // max fee per gas
	GasLimit             uint64
	Action               Action
	Value                *big.Int
	Data                 []byte
	AccessList           []AccessTuple
}

// rlpUnsigned mirrors UnsignedTransaction in a form rlp can encode: a nil
// *common.Address is not representable, so Create is signalled by an
// empty byte string, matching go-ethereum's own convention for legacy
// contract-creation transactions.
type rlpUnsigned struct {
	ChainID              *big.Int
	Nonce                uint64
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
	GasLimit             uint64
	To                   []byte
	Value                *big.Int
	Data                 []byte
	AccessList           []rlpAccessTuple
}

type rlpAccessTuple struct {
	Address     common.Address
	StorageKeys []common.Hash
}

func (u *UnsignedTransaction) toRLP() rlpUnsigned {
	to := []byte{}
	if u.Action.To != nil {
		to = u.Action.To.Bytes()
	}
	al := make([]rlpAccessTuple, len(u.AccessList))
	for i, a := range u.AccessList {
		al[i] = rlpAccessTuple{Address: a.Address, StorageKeys: a.StorageKeys}
	}
	return rlpUnsigned{
		ChainID:              u.ChainID,
		Nonce:                u.Nonce,
		MaxPriorityFeePerGas: u.MaxPriorityFeePerGas,
		GasPrice:             u.GasPrice,
		GasLimit:             u.GasLimit,
		To:                   to,
		Value:                u.Value,
		Data:                 u.Data,
		AccessList:           al,
	}
}

// EncodeRLP writes the canonical RLP encoding of the unsigned body. This
// is the exact byte string hashed to produce the transaction hash and the
// signing payload, so callers must never encode the body any other way.
func (u *UnsignedTransaction) EncodeRLP() ([]byte, error) {
	return rlp.EncodeToBytes(u.toRLP())
}

// Hash returns keccak256 of the canonical RLP encoding of the unsigned
// body, per spec: "the hash equals the keccak of the canonical RLP
// encoding of the unsigned body plus chain id." ChainID is already a
// field of the unsigned body, so no extra mixing is required.
func (u *UnsignedTransaction) Hash() (common.Hash, error) {
	enc, err := u.EncodeRLP()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// Signature is a recoverable ECDSA signature over a transaction hash.
type Signature struct {
	V uint8
	R *big.Int
	S *big.Int
}

// SignedTransaction is an envelope over an UnsignedTransaction plus a
// recoverable signature and a precomputed hash. Decoders must verify the
// hash invariant before trusting a SignedTransaction's Hash field.
type SignedTransaction struct {
	Unsigned UnsignedTransaction
	Sig      Signature
	ChainID  *big.Int
	TxHash   common.Hash
}

// VerifyHash recomputes the hash of the unsigned body and reports whether
// it matches TxHash, the Hash-consistency property from spec §8.
func (s *SignedTransaction) VerifyHash() error {
	want, err := s.Unsigned.Hash()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if want != s.TxHash {
		return fmt.Errorf("%w: tx hash mismatch: have %s want %s", ErrDecode, s.TxHash, want)
	}
	return nil
}

// Sender recovers the sending address from the signature. Production
// verification of the secp256k1 recovery is delegated to
// github.com/ethereum/go-ethereum/crypto, per spec's "crypto primitives
// are external collaborators" boundary; this function only shapes the
// recovery-id/R/S into the form crypto.Ecrecover expects.
func (s *SignedTransaction) Sender() (common.Address, error) {
	sigHash, err := s.Unsigned.Hash()
	if err != nil {
		return common.Address{}, err
	}
	sig := make([]byte, 65)
	s.Sig.R.FillBytes(sig[0:32])
	s.Sig.S.FillBytes(sig[32:64])
	sig[64] = s.Sig.V
	pub, err := crypto.SigToPub(sigHash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: recover sender: %v", ErrDecode, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// WireTransaction is the RLP-safe representation of a SignedTransaction:
// Action.To is flattened to a byte string exactly like rlpUnsigned, since
// RLP has no native nil-pointer-to-fixed-array encoding.
type WireTransaction struct {
	Unsigned  rlpUnsigned
	V         uint8
	R         *big.Int
	S         *big.Int
	ChainID   *big.Int
	TxHash    common.Hash
}

// ToWire converts a SignedTransaction to its RLP-safe form.
func (s *SignedTransaction) ToWire() WireTransaction {
	return WireTransaction{
		Unsigned: s.Unsigned.toRLP(),
		V:        s.Sig.V,
		R:        s.Sig.R,
		S:        s.Sig.S,
		ChainID:  s.ChainID,
		TxHash:   s.TxHash,
	}
}

// FromWire converts a WireTransaction back to a SignedTransaction.
func (w WireTransaction) FromWire() SignedTransaction {
	var to *common.Address
	if len(w.Unsigned.To) > 0 {
		addr := common.BytesToAddress(w.Unsigned.To)
		to = &addr
	}
	al := make([]AccessTuple, len(w.Unsigned.AccessList))
	for i, a := range w.Unsigned.AccessList {
		al[i] = AccessTuple{Address: a.Address, StorageKeys: a.StorageKeys}
	}
	return SignedTransaction{
		Unsigned: UnsignedTransaction{
			ChainID:              w.Unsigned.ChainID,
			Nonce:                w.Unsigned.Nonce,
			MaxPriorityFeePerGas: w.Unsigned.MaxPriorityFeePerGas,
			GasPrice:             w.Unsigned.GasPrice,
			GasLimit:             w.Unsigned.GasLimit,
			Action:               Action{To: to},
			Value:                w.Unsigned.Value,
			Data:                 w.Unsigned.Data,
			AccessList:           al,
		},
		Sig:     Signature{V: w.V, R: w.R, S: w.S},
		ChainID: w.ChainID,
		TxHash:  w.TxHash,
	}
}

// TxResp is the result of simulating or executing a single transaction.
type TxResp struct {
	ExitCode     int
	Ret          []byte
	GasUsed      uint64
	Removed      bool
	Logs         []Log
	CodeAddress  *common.Address // set only on a successful CREATE
	FeeCollected *big.Int
}

// Succeeded reports whether the transaction did not revert.
func (r TxResp) Succeeded() bool { return r.ExitCode == 0 }

// Log is a single EVM event log entry.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Receipt is the per-transaction outcome committed to the receipts root.
type Receipt struct {
	TxHash  common.Hash
	Success bool
	GasUsed uint64
	Logs    []Log
	// Leaf is keccak(return data), the receipt's Merkle leaf commitment.
	Leaf common.Hash
}
