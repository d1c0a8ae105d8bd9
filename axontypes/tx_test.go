package axontypes

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func sampleUnsigned() UnsignedTransaction {
	to := common.HexToAddress("0xb0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0")
	return UnsignedTransaction{
		ChainID:              big.NewInt(1),
		Nonce:                7,
		MaxPriorityFeePerGas: big.NewInt(1),
		GasPrice:             big.NewInt(1),
		GasLimit:             21000,
		Action:               Action{To: &to},
		Value:                big.NewInt(100),
		Data:                 nil,
		AccessList:           nil,
	}
}

// Hash consistency: for all transactions t, recompute(hash(t)) == t.hash.
func TestUnsignedTransactionHashDeterministic(t *testing.T) {
	u := sampleUnsigned()
	h1, err := u.Hash()
	require.NoError(t, err)
	h2, err := u.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestUnsignedTransactionHashChangesWithFields(t *testing.T) {
	u1 := sampleUnsigned()
	u2 := sampleUnsigned()
	u2.Nonce = 8

	h1, err := u1.Hash()
	require.NoError(t, err)
	h2, err := u2.Hash()
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestSignedTransactionVerifyHash(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	u := sampleUnsigned()
	sigHash, err := u.Hash()
	require.NoError(t, err)

	sig, err := crypto.Sign(sigHash.Bytes(), key)
	require.NoError(t, err)

	stx := SignedTransaction{
		Unsigned: u,
		ChainID:  u.ChainID,
		TxHash:   sigHash,
		Sig: Signature{
			V: sig[64],
			R: new(big.Int).SetBytes(sig[0:32]),
			S: new(big.Int).SetBytes(sig[32:64]),
		},
	}
	require.NoError(t, stx.VerifyHash())

	sender, err := stx.Sender()
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)

	stx.TxHash = common.Hash{}
	require.ErrorIs(t, stx.VerifyHash(), ErrDecode)
}

func TestCreateActionIsCreate(t *testing.T) {
	var a Action
	require.True(t, a.IsCreate())

	addr := common.HexToAddress("0x1")
	a.To = &addr
	require.False(t, a.IsCreate())
}
