package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk configuration of the settlement daemon.
type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	OpsAddress string `toml:"OpsAddress"`
	DataDir    string `toml:"DataDir"`
	Env        string `toml:"Env"`

	Owner            string `toml:"Owner"`
	OperationsWallet string `toml:"OperationsWallet"`
	IncentivesWallet string `toml:"IncentivesWallet"`
	TreasuryWallet   string `toml:"TreasuryWallet"`

	// GenesisAlloc funds accounts at first start; keys are hex addresses,
	// values are wei amounts in decimal.
	GenesisAlloc map[string]string `toml:"GenesisAlloc"`

	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`
	LogMaxAgeDays int    `toml:"LogMaxAgeDays"`
}

// Load reads the configuration from path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.OpsAddress) == "" {
		cfg.OpsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./flowcash-data"
	}
	if cfg.LogMaxSizeMB == 0 {
		cfg.LogMaxSizeMB = 100
	}
	if cfg.LogMaxBackups == 0 {
		cfg.LogMaxBackups = 5
	}
	if cfg.LogMaxAgeDays == 0 {
		cfg.LogMaxAgeDays = 30
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress: ":8545",
		OpsAddress: ":9090",
		DataDir:    "./flowcash-data",
		Env:        "local",
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate checks that the administrative addresses are present and
// well-formed.
func (c *Config) Validate() error {
	if _, err := ParseAddress(c.Owner); err != nil {
		return fmt.Errorf("config: owner: %w", err)
	}
	for name, value := range map[string]string{
		"operations wallet": c.OperationsWallet,
		"incentives wallet": c.IncentivesWallet,
		"treasury wallet":   c.TreasuryWallet,
	} {
		if _, err := ParseAddress(value); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	for addr, amount := range c.GenesisAlloc {
		if _, err := ParseAddress(addr); err != nil {
			return fmt.Errorf("config: genesis alloc %q: %w", addr, err)
		}
		if _, err := ParseWei(amount); err != nil {
			return fmt.Errorf("config: genesis alloc %q: %w", addr, err)
		}
	}
	return nil
}

// ParseAddress decodes a 20-byte hex address with optional 0x prefix. The
// zero address is rejected.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return addr, fmt.Errorf("address required")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q", value)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address must be %d bytes, got %d", len(addr), len(raw))
	}
	copy(addr[:], raw)
	if addr == ([20]byte{}) {
		return addr, fmt.Errorf("zero address not allowed")
	}
	return addr, nil
}

// ParseWei decodes a non-negative decimal wei amount.
func ParseWei(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount %q", value)
	}
	return amount, nil
}
