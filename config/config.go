// Package config loads the node's static configuration: chain id, data
// directory layout, genesis epoch parameters, gas limits, LRU sizing,
// and listen addresses. It is grounded on the pack's common pattern of a
// single YAML file parsed with gopkg.in/yaml.v3 (the teacher itself
// drives most of its configuration through cli flags into a params.Config
// rather than a file, but SPEC_FULL.md's epoch/timer parameters are
// naturally a file-shaped genesis document, matching how the rest of the
// geth-derived pack handles chain config JSON/YAML).
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"
)

// ValidatorSpec is the YAML shape of one genesis validator entry. The
// address is always derived from the public key rather than specified
// independently, so a typo can never produce a validator whose address
// and signature don't agree.
type ValidatorSpec struct {
	PubKey        string `yaml:"pubkey"` // hex-encoded uncompressed secp256k1 point
	ProposeWeight uint32 `yaml:"propose_weight"`
	VoteWeight    uint32 `yaml:"vote_weight"`
}

// TimerRatiosSpec mirrors axontypes.TimerRatios in YAML-friendly form.
type TimerRatiosSpec struct {
	Propose   uint32 `yaml:"propose"`
	Prevote   uint32 `yaml:"prevote"`
	Precommit uint32 `yaml:"precommit"`
	Brake     uint32 `yaml:"brake"`
}

// Config is the full node configuration document.
type Config struct {
	ChainID uint64 `yaml:"chain_id"`

	DataDir string `yaml:"data_dir"`
	Listen  string `yaml:"listen"`

	IntervalMillis uint64          `yaml:"interval_millis"`
	TimerRatios    TimerRatiosSpec `yaml:"timer_ratios"`
	Validators     []ValidatorSpec `yaml:"validators"`

	BlockGasLimit  uint64 `yaml:"block_gas_limit"`
	MaxTxsPerBlock int    `yaml:"max_txs_per_block"`

	MetadataCacheSize int `yaml:"metadata_cache_size"`

	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
}

// Load reads and parses the YAML configuration document at path and
// fills in the defaults set by applyDefaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Listen == "" {
		c.Listen = ":26656"
	}
	if c.BlockGasLimit == 0 {
		c.BlockGasLimit = 30_000_000
	}
	if c.MaxTxsPerBlock == 0 {
		c.MaxTxsPerBlock = 4096
	}
	if c.MetadataCacheSize == 0 {
		c.MetadataCacheSize = 10
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 10
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 28
	}
}

func (c *Config) validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("config: chain_id must be nonzero")
	}
	if len(c.Validators) == 0 {
		return fmt.Errorf("config: at least one genesis validator is required")
	}
	if c.IntervalMillis == 0 {
		return fmt.Errorf("config: interval_millis must be nonzero")
	}
	return nil
}

// Ratios converts the YAML ratios block into axontypes.TimerRatios.
func (c Config) Ratios() axontypes.TimerRatios {
	return axontypes.TimerRatios{
		Propose:   c.TimerRatios.Propose,
		Prevote:   c.TimerRatios.Prevote,
		Precommit: c.TimerRatios.Precommit,
		Brake:     c.TimerRatios.Brake,
	}
}

// AuthorityList builds the genesis authority list from the YAML
// validator entries, deriving each validator's address from its public
// key with the same secp256k1 recovery path the rest of the stack uses
// (bftdriver.LocalSigner, axontypes.SignedTransaction.Sender).
func (c Config) AuthorityList() (axontypes.AuthorityList, error) {
	vals := make([]axontypes.Validator, len(c.Validators))
	for i, v := range c.Validators {
		pub, err := decodeHexPubKey(v.PubKey)
		if err != nil {
			return axontypes.AuthorityList{}, fmt.Errorf("config: validator %d: %w", i, err)
		}
		pubkey, err := crypto.UnmarshalPubkey(pub)
		if err != nil {
			return axontypes.AuthorityList{}, fmt.Errorf("config: validator %d: %w", i, err)
		}
		vals[i] = axontypes.Validator{
			PubKey:        pub,
			Address:       crypto.PubkeyToAddress(*pubkey),
			ProposeWeight: v.ProposeWeight,
			VoteWeight:    v.VoteWeight,
		}
	}
	return axontypes.NewAuthorityList(vals), nil
}

func decodeHexPubKey(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}
