package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Trading  Trading  `mapstructure:"trading"`
	Auth     Auth     `mapstructure:"auth"`
	Logger   Logger   `mapstructure:"logger"`
}

// Server holds the configuration for the HTTP server.
type Server struct {
	Port           int     `mapstructure:"port"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Trading holds the fee model and transaction bounds for the engine.
type Trading struct {
	FeeRate          float64 `mapstructure:"fee_rate"`
	FlatSellFee      float64 `mapstructure:"flat_sell_fee"`
	TxTimeoutSeconds int     `mapstructure:"tx_timeout_seconds"`
}

// Auth holds the configuration for session tokens.
type Auth struct {
	TokenTTLHours int `mapstructure:"token_ttl_hours"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("server.port", 7000)
	viper.SetDefault("server.rate_limit", 5) // trade submissions per second per key
	viper.SetDefault("server.rate_limit_burst", 10)
	viper.SetDefault("trading.fee_rate", 0.0011842)
	viper.SetDefault("trading.flat_sell_fee", 15)
	viper.SetDefault("trading.tx_timeout_seconds", 5)
	viper.SetDefault("auth.token_ttl_hours", 7)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
