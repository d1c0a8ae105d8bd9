package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "axond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func genValidatorYAML(t *testing.T) (string, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	pub := crypto.FromECDSAPub(&key.PublicKey)
	return hex.EncodeToString(pub), crypto.PubkeyToAddress(key.PublicKey)
}

func TestLoadAppliesDefaultsAndParsesValidators(t *testing.T) {
	pubHex, wantAddr := genValidatorYAML(t)
	body := "chain_id: 1\n" +
		"interval_millis: 3000\n" +
		"validators:\n" +
		"  - pubkey: \"0x" + pubHex + "\"\n" +
		"    propose_weight: 1\n" +
		"    vote_weight: 1\n"
	path := writeConfig(t, body)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1), cfg.ChainID)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, ":26656", cfg.Listen)
	require.Equal(t, uint64(30_000_000), cfg.BlockGasLimit)
	require.Equal(t, 4096, cfg.MaxTxsPerBlock)

	authority, err := cfg.AuthorityList()
	require.NoError(t, err)
	require.Len(t, authority.Validators, 1)
	require.Equal(t, wantAddr, authority.Validators[0].Address)
}

func TestLoadRejectsMissingChainID(t *testing.T) {
	path := writeConfig(t, "interval_millis: 3000\nvalidators:\n  - pubkey: \"00\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsNoValidators(t *testing.T) {
	path := writeConfig(t, "chain_id: 1\ninterval_millis: 3000\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestAuthorityListRejectsMalformedPubKey(t *testing.T) {
	cfg := Config{
		ChainID:        1,
		IntervalMillis: 1000,
		Validators:     []ValidatorSpec{{PubKey: "not-hex", ProposeWeight: 1, VoteWeight: 1}},
	}
	_, err := cfg.AuthorityList()
	require.Error(t, err)
}

func TestRatiosConversion(t *testing.T) {
	cfg := Config{TimerRatios: TimerRatiosSpec{Propose: 2500, Prevote: 2500, Precommit: 2500, Brake: 2500}}
	ratios := cfg.Ratios()
	require.Equal(t, uint32(2500), ratios.Propose)
	require.Equal(t, uint32(2500), ratios.Brake)
}
