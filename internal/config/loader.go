package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("interval", "") // No background refresh by default
	v.SetDefault("http_port", 8080)
	v.SetDefault("run_immediately", true)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("price_feed.address", DefaultPriceFeedAddress)
	v.SetDefault("price_feed.decimals", 8)
	v.SetDefault("price_feed.max_age", DefaultPriceFeedMaxAge)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.backend", "memory")

	// 2. Configure config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	// SURVEY_GATE_CACHE_TTL -> cache.ttl
	v.SetEnvPrefix("SURVEY_GATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("rpc_url", "SURVEY_GATE_RPC_URL", "RPC_URL")
	v.BindEnv("rpc_urls", "SURVEY_GATE_RPC_URLS", "RPC_URLS")
	v.BindEnv("log_level", "SURVEY_GATE_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("interval", "SURVEY_GATE_INTERVAL", "INTERVAL")
	v.BindEnv("http_port", "SURVEY_GATE_HTTP_PORT", "HTTP_PORT")
	v.BindEnv("cache.redis_url", "SURVEY_GATE_CACHE_REDIS_URL", "REDIS_URL")

	// 4. Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 5. Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma-separated RPC_URLS from env
	if rpcURLsEnv := v.GetString("rpc_urls"); strings.Contains(rpcURLsEnv, ",") {
		cfg.RPCUrls = splitList(rpcURLsEnv)
	}

	// 6. Normalize
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("config normalization failed: %w", err)
	}

	// 7. Validate with validator
	validate := NewValidator()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with DATABASE_URL from environment
func LoadWithDefaults(configPath string) (*Config, string, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, "", err
	}

	databaseURL, err := DatabaseURL()
	if err != nil {
		return nil, "", err
	}

	return cfg, databaseURL, nil
}

// DatabaseURL returns DATABASE_URL, which is required for every command touching storage
func DatabaseURL() (string, error) {
	v := viper.New()
	v.BindEnv("database_url", "DATABASE_URL")
	dsn := v.GetString("database_url")
	if dsn == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return dsn, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
