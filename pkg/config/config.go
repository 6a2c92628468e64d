// Package config loads and validates the bridge's runtime configuration:
// a YAML file, overridden by environment variables, filled in with
// defaults, and validated before the engine starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Zcash      ZcashConfig      `yaml:"zcash"`
	Miden      MidenConfig      `yaml:"miden"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP facade settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ZcashConfig contains settings for talking to the shielded Zcash node/wallet.
type ZcashConfig struct {
	// NodeRPCURL is the zcashd/zebrad JSON-RPC endpoint used for chain scanning.
	NodeRPCURL string `yaml:"node_rpc_url"`
	// WalletRPCURL is the shielded wallet RPC endpoint used to send and to read balances.
	WalletRPCURL string `yaml:"wallet_rpc_url"`
	// AuthToken is an optional bearer token attached to wallet RPC calls.
	AuthToken string `yaml:"auth_token"`
	// PoolAddress is the bridge's fixed unified shielded pool address.
	PoolAddress string `yaml:"pool_address"`
	// RelayerInterval is how often the Zcash->Miden loop ticks.
	RelayerInterval time.Duration `yaml:"relayer_interval"`
	// StartHeight is loaded from configuration but not read by the relayer;
	// a first run with no persisted cursor scans from height 0.
	StartHeight int64 `yaml:"start_height"`
	// LookbackBlocks is loaded (default 1000) but not read by the relayer;
	// it does not change where scanning starts.
	LookbackBlocks int64 `yaml:"lookback_blocks"`
	// RequestTimeout bounds every RPC call made to the node/wallet.
	RequestTimeout time.Duration `yaml:"request_timeout" default:"30s"`
}

// MidenConfig contains settings for talking to the Miden rollup RPC.
type MidenConfig struct {
	RPCURL string `yaml:"rpc_url"`
	// AuthToken is an optional bearer token attached to rollup RPC calls.
	AuthToken string `yaml:"auth_token"`
	// FaucetID is the wrapped-asset faucet account id.
	FaucetID string `yaml:"faucet_id"`
	// BridgeAccountID is the Miden account that owns exit-note reception.
	BridgeAccountID string `yaml:"bridge_account_id"`
	// RelayerInterval is how often the Miden->Zcash loop ticks.
	RelayerInterval time.Duration `yaml:"relayer_interval"`
	// ExitTag is the 16-bit use-case tag identifying exit notes.
	ExitTag uint16 `yaml:"exit_tag"`
	// RequestTimeout bounds every RPC call made to the rollup node.
	RequestTimeout time.Duration `yaml:"request_timeout" default:"30s"`
}

// BridgeConfig contains cross-cutting bridge operation settings.
type BridgeConfig struct {
	// MaxMintAttempts bounds retries of a poisonous deposit before it is quarantined.
	MaxMintAttempts int `yaml:"max_mint_attempts"`
	// MintBackoffBase is the first wait of the in-tick mint backoff; each further
	// wait doubles it (2s, 4s, 8s, ... with the 2s default).
	MintBackoffBase time.Duration `yaml:"mint_backoff_base"`
	// FanOut bounds how many events within one tick may be processed concurrently.
	FanOut int `yaml:"fan_out"`
	// DustThresholdBase is loaded from configuration but not read by the relayers:
	// every deposit is minted regardless of its amount, whatever value is set.
	DustThresholdBase int64 `yaml:"dust_threshold_base"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
}

// Load reads, defaults, overrides, and validates the bridge configuration.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply struct defaults: %w", err)
	}

	setDefaults(&cfg)
	overrideEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	// Database defaults
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// Zcash defaults
	if cfg.Zcash.RelayerInterval == 0 {
		cfg.Zcash.RelayerInterval = 5 * time.Second
	}
	if cfg.Zcash.LookbackBlocks == 0 {
		cfg.Zcash.LookbackBlocks = 1000
	}

	// Miden defaults
	if cfg.Miden.RelayerInterval == 0 {
		cfg.Miden.RelayerInterval = 10 * time.Second
	}
	if cfg.Miden.ExitTag == 0 {
		cfg.Miden.ExitTag = 20050
	}

	// Bridge defaults
	if cfg.Bridge.MaxMintAttempts == 0 {
		cfg.Bridge.MaxMintAttempts = 8
	}
	if cfg.Bridge.MintBackoffBase == 0 {
		cfg.Bridge.MintBackoffBase = 2 * time.Second
	}
	if cfg.Bridge.FanOut == 0 {
		cfg.Bridge.FanOut = 4
	}

	// Monitoring defaults
	if cfg.Monitoring.MetricsPort == 0 {
		cfg.Monitoring.MetricsPort = 9090
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.OutputPath == "" {
		cfg.Logging.OutputPath = "stdout"
	}
}

func overrideEnv(cfg *Config) {
	// Server
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Database
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DATABASE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DATABASE_DATABASE"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("DATABASE_SSL_MODE"); v != "" {
		cfg.Database.SSLMode = v
	}

	// Zcash / Miden, names taken verbatim from spec.md §6
	if v := os.Getenv("ZCASH_RELAYER_INTERVAL_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Zcash.RelayerInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("MIDEN_RELAYER_INTERVAL_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Miden.RelayerInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("BRIDGE_POOL_ADDR"); v != "" {
		cfg.Zcash.PoolAddress = v
	}
	if v := os.Getenv("FAUCET_ID"); v != "" {
		cfg.Miden.FaucetID = v
	}
	if v := os.Getenv("BRIDGE_ACCOUNT_ID"); v != "" {
		cfg.Miden.BridgeAccountID = v
	}
	if v := os.Getenv("EXIT_TAG"); v != "" {
		if tag, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Miden.ExitTag = uint16(tag)
		}
	}
	if v := os.Getenv("MAX_MINT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bridge.MaxMintAttempts = n
		}
	}

	// Logging
	if v := os.Getenv("LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func validate(cfg *Config) error {
	if cfg.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Zcash.NodeRPCURL == "" {
		return fmt.Errorf("zcash.node_rpc_url is required")
	}
	if cfg.Zcash.PoolAddress == "" {
		return fmt.Errorf("zcash.pool_address is required")
	}
	if cfg.Miden.RPCURL == "" {
		return fmt.Errorf("miden.rpc_url is required")
	}
	if cfg.Miden.FaucetID == "" {
		return fmt.Errorf("miden.faucet_id is required")
	}
	if cfg.Miden.BridgeAccountID == "" {
		return fmt.Errorf("miden.bridge_account_id is required")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string for the bridge store.
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
