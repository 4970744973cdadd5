// Package config loads runtime configuration from environment
// variables (optionally via a .env file), layered under the engine's
// built-in defaults.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"lockkv/pkg/engine"
)

// Config is the full runtime configuration for cmd/server: the engine's
// bounded capacities plus the frontend's own settings.
type Config struct {
	Engine      engine.Config
	Host        string
	Port        string
	MetricsAddr string
	Debug       bool
}

// Load reads a .env file if present, then LOCKKV_-prefixed environment
// variables, falling back to the engine's built-in defaults for
// anything unset. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LOCKKV")
	v.AutomaticEnv()

	defaults := engine.DefaultConfig()
	v.SetDefault("max_transactions", defaults.MaxTransactions)
	v.SetDefault("max_keys", defaults.MaxKeys)
	v.SetDefault("key_length_max", defaults.KeyLengthMax)
	v.SetDefault("max_writes_per_txn", defaults.MaxWritesPerTxn)
	v.SetDefault("wait_poll_interval_ms", defaults.WaitPollInterval.Milliseconds())
	v.SetDefault("host", "localhost")
	v.SetDefault("port", "8081")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("debug", false)

	return Config{
		Engine: engine.Config{
			MaxTransactions:  v.GetInt("max_transactions"),
			MaxKeys:          v.GetInt("max_keys"),
			KeyLengthMax:     v.GetInt("key_length_max"),
			MaxWritesPerTxn:  v.GetInt("max_writes_per_txn"),
			WaitPollInterval: time.Duration(v.GetInt64("wait_poll_interval_ms")) * time.Millisecond,
		},
		Host:        v.GetString("host"),
		Port:        v.GetString("port"),
		MetricsAddr: v.GetString("metrics_addr"),
		Debug:       v.GetBool("debug"),
	}, nil
}
