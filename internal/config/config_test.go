package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		RPCUrls: []string{"https://rpc.example.com"},
		Tokens:  []TokenConfig{{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18}},
		PriceFeed: PriceFeedConfig{
			Address:  DefaultPriceFeedAddress,
			Decimals: 8,
			MaxAge:   time.Hour,
		},
		Cache: CacheConfig{TTL: 5 * time.Minute, Backend: "memory"},
	}
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantError bool
		check     func(*Config)
	}{
		{
			name: "single rpc_url converts to rpc_urls",
			cfg:  &Config{RPCUrl: "https://rpc1.example.com"},
			check: func(c *Config) {
				assert.Empty(t, c.RPCUrl)
				assert.Equal(t, []string{"https://rpc1.example.com"}, c.RPCUrls)
			},
		},
		{
			name: "rpc_urls takes precedence over rpc_url",
			cfg: &Config{
				RPCUrl:  "https://rpc1.example.com",
				RPCUrls: []string{"https://rpc2.example.com", "https://rpc3.example.com"},
			},
			check: func(c *Config) {
				assert.Empty(t, c.RPCUrl)
				assert.Equal(t, []string{"https://rpc2.example.com", "https://rpc3.example.com"}, c.RPCUrls)
			},
		},
		{
			name:      "both empty returns error",
			cfg:       &Config{},
			wantError: true,
		},
		{
			name: "default tokens filled when none configured",
			cfg:  &Config{RPCUrls: []string{"https://rpc.example.com"}},
			check: func(c *Config) {
				assert.Equal(t, DefaultTokens(), c.Tokens)
			},
		},
		{
			name: "configured tokens are kept",
			cfg: &Config{
				RPCUrls: []string{"https://rpc.example.com"},
				Tokens:  []TokenConfig{{Symbol: "X", Address: "0x0000000000000000000000000000000000000001"}},
			},
			check: func(c *Config) {
				require.Len(t, c.Tokens, 1)
				assert.Equal(t, "X", c.Tokens[0].Symbol)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Normalize()
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(tt.cfg)
			}
		})
	}
}

func TestDefaultTokensAreValid(t *testing.T) {
	v := NewValidator()
	for _, tok := range DefaultTokens() {
		assert.NoError(t, v.Struct(tok), tok.Symbol)
	}
}

func TestConfigGetTimezone(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		want     string
	}{
		{"empty defaults to UTC", "", "UTC"},
		{"valid timezone", "Europe/Brussels", "Europe/Brussels"},
		{"invalid falls back to UTC", "Mars/Olympus", "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Timezone: tt.timezone}
			assert.Equal(t, tt.want, cfg.GetTimezone().String())
		})
	}
}

func TestConfigShouldRunImmediately(t *testing.T) {
	yes, no := true, false

	assert.True(t, (&Config{}).ShouldRunImmediately())
	assert.True(t, (&Config{RunImmediately: &yes}).ShouldRunImmediately())
	assert.False(t, (&Config{RunImmediately: &no}).ShouldRunImmediately())
}

func TestEthAddressValidator(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		address   string
		wantError bool
	}{
		{"checksummed", "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0", false},
		{"lowercase", "0x742d35cc6634c0532925a3b844bc9e7595f0beb0", false},
		{"without prefix", "742d35Cc6634C0532925a3b844Bc9e7595f0bEb0", false},
		{"too short", "0x742d35Cc", true},
		{"invalid hex", "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEg0", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Tokens[0].Address = tt.address

			err := v.Struct(cfg)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduleValidator(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		interval  string
		wantError bool
	}{
		{"", false},
		{"5m", false},
		{"1h", false},
		{"*/5 * * * *", false},
		{"7m", true},
		{"bogus", true},
	}

	for _, tt := range tests {
		t.Run(tt.interval, func(t *testing.T) {
			cfg := validConfig()
			cfg.Interval = tt.interval

			err := v.Struct(cfg)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCacheValidation(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		cache     CacheConfig
		wantError bool
	}{
		{"memory backend", CacheConfig{TTL: time.Minute, Backend: "memory"}, false},
		{"redis backend with url", CacheConfig{TTL: time.Minute, Backend: "redis", RedisURL: "redis://localhost:6379/0"}, false},
		{"redis backend without url", CacheConfig{TTL: time.Minute, Backend: "redis"}, true},
		{"unknown backend", CacheConfig{TTL: time.Minute, Backend: "memcached"}, true},
		{"zero ttl", CacheConfig{Backend: "memory"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Cache = tt.cache

			err := v.Struct(cfg)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigFieldValidation(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{"valid", func(*Config) {}, false},
		{"http port too low", func(c *Config) { c.HTTPPort = 80 }, true},
		{"http port ok", func(c *Config) { c.HTTPPort = 9090 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"json log format", func(c *Config) { c.LogFormat = "json" }, false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"negative rate limit", func(c *Config) { c.RPCRateLimit = -1 }, true},
		{"zero price feed max age", func(c *Config) { c.PriceFeed.MaxAge = 0 }, true},
		{"bad price feed address", func(c *Config) { c.PriceFeed.Address = "0x1234" }, true},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, true},
		{"no rpc urls", func(c *Config) { c.RPCUrls = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := v.Struct(cfg)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
