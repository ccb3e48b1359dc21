// Package config loads engine configuration from environment variables,
// with an optional .env file and an optional YAML token registry override.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Signer kinds. A keyed signer holds a local private key; a custodial
// signer delegates submission to a wallet API.
const (
	SignerKeyed     = "keyed"
	SignerCustodial = "custodial"
)

// Config holds all configuration for the engine.
type Config struct {
	// Chain connection
	RPCURL  string
	ChainID int64

	// Signing
	SignerKind      string
	PrivateKey      string
	CustodialAPIURL string
	CustodialAPIKey string

	// Contract addresses. Exchange, factory and scheduler default to the
	// Tempo Moderato singletons; the batch-transfer helper is optional and
	// gates the custodial batch dispatch strategy.
	ExchangeAddress      string
	FactoryAddress       string
	SchedulerAddress     string
	BatchTransferAddress string

	// Dispatch tuning
	SubmitDelayMs    int64
	ScanWindowBlocks uint64
	GasMultiplier    float64

	// External collaborators (optional)
	OrderIndexEndpoint string
	FaucetEndpoint     string
	RedisURL           string

	// Token registry override file (YAML), merged over the built-in registry.
	TokenRegistryFile string

	// Observability
	MetricsPort int
	MetricsKey  string
	LogLevel    int
	LogColoring bool
}

// RegistryEntry is one token row in the YAML registry override file.
type RegistryEntry struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		RPCURL:  GetEnv("RPC_URL", ""),
		ChainID: GetEnvInt64("CHAIN_ID", 42431),

		SignerKind:      GetEnv("SIGNER_KIND", SignerKeyed),
		PrivateKey:      GetEnv("PRIVATE_KEY", ""),
		CustodialAPIURL: GetEnv("CUSTODIAL_API_URL", ""),
		CustodialAPIKey: GetEnv("CUSTODIAL_API_KEY", ""),

		ExchangeAddress:      GetEnv("EXCHANGE_ADDRESS", "0xDEc0000000000000000000000000000000000000"),
		FactoryAddress:       GetEnv("FACTORY_ADDRESS", "0x20Fc000000000000000000000000000000000000"),
		SchedulerAddress:     GetEnv("SCHEDULER_ADDRESS", "0x325EDdf3daB4cD51b2690253a11D3397850a7Bd2"),
		BatchTransferAddress: GetEnv("BATCH_TRANSFER_ADDRESS", ""),

		SubmitDelayMs:    GetEnvInt64("SUBMIT_DELAY_MS", 300),
		ScanWindowBlocks: GetEnvUint64("SCAN_WINDOW_BLOCKS", 10000),
		GasMultiplier:    GetEnvFloat("GAS_PRICE_MULTIPLIER", 1.2),

		OrderIndexEndpoint: GetEnv("ORDER_INDEX_ENDPOINT", ""),
		FaucetEndpoint:     GetEnv("FAUCET_ENDPOINT", ""),
		RedisURL:           GetEnv("REDIS_URL", ""),

		TokenRegistryFile: GetEnv("TOKEN_REGISTRY_FILE", ""),

		MetricsPort: GetEnvInt("METRICS_PORT", 8080),
		MetricsKey:  GetEnv("METRICS_KEY", ""),
		LogLevel:    GetEnvInt("LOG_LEVEL", 1),
		LogColoring: GetEnvBool("LOG_COLORING", true),
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC_URL is required")
	}

	switch cfg.SignerKind {
	case SignerKeyed:
		if cfg.PrivateKey == "" {
			return nil, fmt.Errorf("PRIVATE_KEY is required for the keyed signer")
		}
	case SignerCustodial:
		if cfg.CustodialAPIURL == "" {
			return nil, fmt.Errorf("CUSTODIAL_API_URL is required for the custodial signer")
		}
	default:
		return nil, fmt.Errorf("unknown SIGNER_KIND: %s", cfg.SignerKind)
	}

	return cfg, nil
}

// LoadRegistryOverride reads the YAML registry file named by the config.
// Returns nil entries when no file is configured.
func (c *Config) LoadRegistryOverride() ([]RegistryEntry, error) {
	if c.TokenRegistryFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.TokenRegistryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read token registry file: %v", err)
	}

	var entries []RegistryEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse token registry file: %v", err)
	}

	for _, e := range entries {
		if e.Symbol == "" || e.Address == "" {
			return nil, fmt.Errorf("token registry entry missing symbol or address")
		}
	}

	return entries, nil
}
