// Package config provides configuration loading and validation for the
// distributor service. Values come from defaults, an optional .env file
// and environment variables, in that order of precedence.
package config

import (
	"errors"
	"time"
)

// Config holds the complete service configuration.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Watcher  WatcherConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string // debug, info, warn, error
	Env   string // development enables console encoding
}

// DatabaseConfig contains the ledger database configuration. A DSN
// starting with "postgres" selects the postgres driver; anything else is
// treated as a SQLite path.
type DatabaseConfig struct {
	DSN string
}

// ChainConfig contains everything the chain client needs. Token address,
// chain ID and decimals are fixed deployment constants, not runtime inputs.
type ChainConfig struct {
	RPCURL                string
	ChainID               int64
	TokenAddress          string
	DistributorPrivateKey string
	BroadcastTimeout      time.Duration
}

// WatcherConfig contains confirmation watcher configuration
type WatcherConfig struct {
	PoolSize            int
	ConfirmationTimeout time.Duration
}

// Validate checks the configuration for values the service cannot run
// without. The private key is validated for shape by the chain client.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server port must be between 1 and 65535")
	}
	if c.Database.DSN == "" {
		return errors.New("database DSN is required")
	}
	if c.Chain.RPCURL == "" {
		return errors.New("chain RPC URL is required")
	}
	if c.Chain.ChainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	if c.Chain.TokenAddress == "" {
		return errors.New("token contract address is required")
	}
	if c.Watcher.PoolSize <= 0 {
		return errors.New("watcher pool size must be positive")
	}
	return nil
}
