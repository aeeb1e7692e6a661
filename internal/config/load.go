package config

import (
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from defaults, an optional config file and
// environment variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("distributor")
	v.SetConfigType("env")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// A missing config file is fine; env vars and defaults cover it.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			Env:   v.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("DATABASE_DSN"),
		},
		Chain: ChainConfig{
			RPCURL:                v.GetString("CHAIN_RPC_URL"),
			ChainID:               v.GetInt64("CHAIN_ID"),
			TokenAddress:          v.GetString("PULPA_TOKEN_ADDRESS"),
			DistributorPrivateKey: v.GetString("DISTRIBUTOR_PRIVATE_KEY"),
			BroadcastTimeout:      v.GetDuration("CHAIN_BROADCAST_TIMEOUT"),
		},
		Watcher: WatcherConfig{
			PoolSize:            v.GetInt("WATCHER_POOL_SIZE"),
			ConfirmationTimeout: v.GetDuration("WATCHER_CONFIRMATION_TIMEOUT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "production")

	v.SetDefault("DATABASE_DSN", "distributor.db")

	// Optimism mainnet.
	v.SetDefault("CHAIN_RPC_URL", "https://mainnet.optimism.io")
	v.SetDefault("CHAIN_ID", 10)
	v.SetDefault("CHAIN_BROADCAST_TIMEOUT", 30*time.Second)

	v.SetDefault("WATCHER_POOL_SIZE", 4)
	v.SetDefault("WATCHER_CONFIRMATION_TIMEOUT", 5*time.Minute)
}
