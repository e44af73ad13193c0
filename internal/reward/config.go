// Package reward tracks how many reward claims a survey has honored and
// rejects claims once its capacity is exhausted.
package reward

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Kind is the reward variant of a survey
type Kind string

const (
	KindPoints Kind = "points"
	KindPool   Kind = "pool"
	KindPrize  Kind = "prize"
)

var ErrInvalidConfig = errors.New("invalid reward config")

// Config is a survey's reward configuration. Which fields are meaningful
// depends on Kind. Claimed only ever grows.
type Config struct {
	Kind Kind `json:"kind" validate:"required,oneof=points pool prize"`

	// Points
	PointsPerUser int64 `json:"points_per_user,omitempty" validate:"required_if=Kind points,gte=0"`

	// Pool. TotalValue and the capacity are derived from Supply and AmountPerUser.
	Supply        int64           `json:"supply,omitempty" validate:"required_if=Kind pool,gte=0"`
	AmountPerUser decimal.Decimal `json:"amount_per_user"`
	TokenType     string          `json:"token_type,omitempty" validate:"required_if=Kind pool"`

	// Prize
	PrizeCount  int64  `json:"prize_count,omitempty" validate:"gte=0"`
	Description string `json:"description,omitempty"`

	TotalValue decimal.Decimal `json:"total_value"`

	// MaxUsers caps points rewards. Nil means unlimited.
	MaxUsers *int64 `json:"max_users,omitempty" validate:"omitempty,gt=0"`
	Claimed  int64  `json:"claimed" validate:"gte=0"`
}

// NewPoints creates a points reward. maxUsers may be nil for unlimited claims.
func NewPoints(pointsPerUser int64, maxUsers *int64) Config {
	return Config{Kind: KindPoints, PointsPerUser: pointsPerUser, MaxUsers: maxUsers}
}

// NewPool creates a token pool reward shared by supply users
func NewPool(supply int64, amountPerUser decimal.Decimal, tokenType string) Config {
	c := Config{Kind: KindPool, TokenType: tokenType}
	c.SetSupply(supply)
	c.SetAmountPerUser(amountPerUser)
	return c
}

// NewPrize creates a prize reward. A zero count means unlimited.
func NewPrize(count int64, description string, totalValue decimal.Decimal) Config {
	return Config{Kind: KindPrize, PrizeCount: count, Description: description, TotalValue: totalValue}
}

// SetSupply changes the pool supply and recomputes the derived fields
func (c *Config) SetSupply(supply int64) {
	c.Supply = supply
	c.derive()
}

// SetAmountPerUser changes the per-user pool amount and recomputes the total value
func (c *Config) SetAmountPerUser(amount decimal.Decimal) {
	c.AmountPerUser = amount
	c.derive()
}

// Normalize recomputes derived fields, discarding any user-entered values for them
func (c *Config) Normalize() {
	c.derive()
}

func (c *Config) derive() {
	if c.Kind != KindPool {
		return
	}
	c.TotalValue = c.AmountPerUser.Mul(decimal.NewFromInt(c.Supply))
	supply := c.Supply
	c.MaxUsers = &supply
}

// Capacity returns the maximum number of claims, or nil when unlimited
func (c Config) Capacity() *int64 {
	switch c.Kind {
	case KindPool:
		supply := c.Supply
		return &supply
	case KindPrize:
		if c.PrizeCount <= 0 {
			return nil
		}
		n := c.PrizeCount
		return &n
	default:
		if c.MaxUsers == nil {
			return nil
		}
		n := *c.MaxUsers
		return &n
	}
}

// Remaining returns how many claims are left, or nil when unlimited
func (c Config) Remaining() *int64 {
	capacity := c.Capacity()
	if capacity == nil {
		return nil
	}
	left := max(*capacity-c.Claimed, 0)
	return &left
}

// Exhausted reports whether no further claim will be accepted
func (c Config) Exhausted() bool {
	capacity := c.Capacity()
	return capacity != nil && c.Claimed >= *capacity
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config fields for its Kind
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Kind == KindPool && c.AmountPerUser.Sign() <= 0 {
		return fmt.Errorf("%w: pool amount per user must be positive", ErrInvalidConfig)
	}
	return nil
}
