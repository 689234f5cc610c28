// Package config also provides the daemon-level configuration for gauloi,
// the BTC<->ETH atomic swap engine: data directory, chain endpoints, the
// HTLC contract address, and the poll/retry tuning the swap engine uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Network selects the Bitcoin/Ethereum network pair gauloi operates on.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// DaemonConfig holds all configuration for the gauloi swap daemon.
type DaemonConfig struct {
	// Network selects mainnet or testnet for both chains.
	Network Network `yaml:"network"`

	// Storage holds the data directory settings.
	Storage DaemonStorageConfig `yaml:"storage"`

	// Bitcoin holds Bitcoin chain adapter settings.
	Bitcoin BitcoinConfig `yaml:"bitcoin"`

	// Ethereum holds Ethereum chain adapter settings.
	Ethereum EthereumConfig `yaml:"ethereum"`

	// Engine holds swap engine polling/retry tuning.
	Engine EngineConfig `yaml:"engine"`

	// Logging holds logging settings.
	Logging DaemonLoggingConfig `yaml:"logging"`
}

// DaemonStorageConfig holds storage settings.
type DaemonStorageConfig struct {
	// DataDir is the directory for the key file and swap database.
	DataDir string `yaml:"data_dir"`
}

// BitcoinConfig holds Bitcoin chain adapter settings.
type BitcoinConfig struct {
	// EsploraURL is the base URL of the Esplora-compatible block explorer API.
	EsploraURL string `yaml:"esplora_url"`
}

// ChainParams resolves the btcsuite chain parameters for the configured network.
func (c *DaemonConfig) ChainParams() *chaincfg.Params {
	if c.Network == NetworkTestnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

// EthereumConfig holds Ethereum chain adapter settings.
type EthereumConfig struct {
	// RPCURL is the JSON-RPC endpoint for the Ethereum node.
	RPCURL string `yaml:"rpc_url"`

	// ContractAddress is the deployed HTLC factory contract address.
	ContractAddress string `yaml:"contract_address"`
}

// Address parses ContractAddress into a common.Address.
func (c EthereumConfig) Address() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// EngineConfig holds swap engine polling/retry tuning.
type EngineConfig struct {
	// PollInterval is how long the engine sleeps between on-chain checks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxAttempts caps how many times the engine polls a single stage
	// before giving up with ErrChainBackoff.
	MaxAttempts int `yaml:"max_attempts"`
}

// DaemonLoggingConfig holds logging settings.
type DaemonLoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// DefaultDaemonConfig returns a DaemonConfig with sensible testnet defaults.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Network: NetworkTestnet,
		Storage: DaemonStorageConfig{
			DataDir: "~/.gauloi",
		},
		Bitcoin: BitcoinConfig{
			EsploraURL: "https://blockstream.info/testnet/api",
		},
		Ethereum: EthereumConfig{
			RPCURL:          "https://rpc.sepolia.org",
			ContractAddress: "",
		},
		Engine: EngineConfig{
			PollInterval: 10 * time.Second,
			MaxAttempts:  10,
		},
		Logging: DaemonLoggingConfig{
			Level: "info",
		},
	}
}

// DaemonConfigFileName is the default config file name.
const DaemonConfigFileName = "config.yaml"

// LoadDaemonConfig loads configuration from dataDir/config.yaml, creating it
// with default values on first run.
func LoadDaemonConfig(dataDir string) (*DaemonConfig, error) {
	expandedDir := expandDaemonPath(dataDir)
	configPath := filepath.Join(expandedDir, DaemonConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultDaemonConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultDaemonConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *DaemonConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := []byte("# gauloi swap daemon configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// DaemonConfigPath returns the full path to the config file for dataDir.
func DaemonConfigPath(dataDir string) string {
	return filepath.Join(expandDaemonPath(dataDir), DaemonConfigFileName)
}

// expandDaemonPath expands a leading ~ to the user's home directory.
func expandDaemonPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
