package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/matrixise/survey-gate/internal/scheduler"
)

// Chainlink ETH/USD aggregator on Ethereum mainnet.
const DefaultPriceFeedAddress = "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"

// DefaultPriceFeedMaxAge is the ETH/USD feed heartbeat (1h) plus a margin for
// the update that lands just after it
const DefaultPriceFeedMaxAge = 75 * time.Minute

// Config represents the application configuration
type Config struct {
	RPCUrl         string          `mapstructure:"rpc_url" validate:"omitempty,url"`
	RPCUrls        []string        `mapstructure:"rpc_urls" validate:"required,min=1,dive,url"`
	RPCRateLimit   float64         `mapstructure:"rpc_rate_limit" validate:"omitempty,gt=0"`
	Tokens         []TokenConfig   `mapstructure:"tokens" validate:"required,min=1,dive"`
	PriceFeed      PriceFeedConfig `mapstructure:"price_feed"`
	Cache          CacheConfig     `mapstructure:"cache"`
	Interval       string          `mapstructure:"interval" validate:"omitempty,schedule"`
	Timezone       string          `mapstructure:"timezone" validate:"omitempty,timezone"`
	RunImmediately *bool           `mapstructure:"run_immediately"`
	LogLevel       string          `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat      string          `mapstructure:"log_format" validate:"omitempty,oneof=text json"`
	HTTPPort       int             `mapstructure:"http_port" validate:"omitempty,min=1024,max=65535"`
}

// TokenConfig represents a tracked token valued at the native asset price
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol" validate:"required,min=1,max=32"`
	Address  string `mapstructure:"address" validate:"required,eth_addr"`
	Decimals uint8  `mapstructure:"decimals" validate:"max=36"`
}

// PriceFeedConfig points at a Chainlink-style aggregator exposing latestRoundData
type PriceFeedConfig struct {
	Address  string        `mapstructure:"address" validate:"required,eth_addr"`
	Decimals uint8         `mapstructure:"decimals" validate:"required,max=36"`
	MaxAge   time.Duration `mapstructure:"max_age" validate:"required,gt=0"`
}

// CacheConfig selects the balance snapshot cache
type CacheConfig struct {
	TTL      time.Duration `mapstructure:"ttl" validate:"required,gt=0"`
	Backend  string        `mapstructure:"backend" validate:"required,oneof=memory redis"`
	RedisURL string        `mapstructure:"redis_url" validate:"required_if=Backend redis,omitempty,url"`
}

// DefaultTokens is the liquid-staking and wrapped ETH set tracked when no
// tokens are configured.
func DefaultTokens() []TokenConfig {
	return []TokenConfig{
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		{Symbol: "STETH", Address: "0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84", Decimals: 18},
		{Symbol: "WBETH", Address: "0xa2E3356610840701BDf5611a53974510Ae27E2e1", Decimals: 18},
		{Symbol: "METH", Address: "0xd5F7838F5C461fefF7FE49ea5ebaF7728bB0ADfa", Decimals: 18},
		{Symbol: "CBETH", Address: "0xBe9895146f7AF43049ca1c1AE358B0541Ea49704", Decimals: 18},
		{Symbol: "rsETH", Address: "0xA1290d69c65A6Fe4DF752f95823fae25cB99e5A7", Decimals: 18},
		{Symbol: "pufETH", Address: "0xD9A442856C234a39a81a089C06451EBAa4306a72", Decimals: 18},
	}
}

// Normalize folds rpc_url into rpc_urls and fills the default token list
func (c *Config) Normalize() error {
	if len(c.RPCUrls) == 0 {
		if c.RPCUrl == "" {
			return fmt.Errorf("either rpc_url or rpc_urls must be set")
		}
		c.RPCUrls = []string{c.RPCUrl}
	}
	c.RPCUrl = ""

	if len(c.Tokens) == 0 {
		c.Tokens = DefaultTokens()
	}
	return nil
}

// GetTimezone returns the configured location, UTC when unset or invalid
func (c *Config) GetTimezone() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ShouldRunImmediately defaults to true
func (c *Config) ShouldRunImmediately() bool {
	if c.RunImmediately == nil {
		return true
	}
	return *c.RunImmediately
}

// ethAddressValidator validates Ethereum addresses
func ethAddressValidator(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// scheduleValidator accepts clock-aligned durations and cron expressions
func scheduleValidator(fl validator.FieldLevel) bool {
	return scheduler.ValidateScheduleInterval(fl.Field().String()) == nil
}

// NewValidator creates a validator with custom validation rules
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterValidation("eth_addr", ethAddressValidator)
	validate.RegisterValidation("schedule", scheduleValidator)
	return validate
}
