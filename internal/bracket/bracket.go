// Package bracket classifies native-asset balances into the coarse size tiers
// used for survey audience targeting.
package bracket

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownBracket is returned by Parse for identifiers outside the closed set.
var ErrUnknownBracket = errors.New("unknown balance bracket")

// Bracket is a balance-size category. Boundaries are in native units (ETH),
// exclusive on the lower end and inclusive on the upper end.
type Bracket string

const (
	None    Bracket = "none"
	Shrimp  Bracket = "shrimp"  // (0, 0.1]
	Crab    Bracket = "crab"    // (0.1, 1]
	Fish    Bracket = "fish"    // (1, 10]
	Dolphin Bracket = "dolphin" // (10, 32]
	Whale   Bracket = "whale"   // (32, inf)

	// NonZero matches any positive balance. It is a filter, never a tier.
	NonZero Bracket = "non_zero"
)

var (
	shrimpMax  = decimal.RequireFromString("0.1")
	crabMax    = decimal.NewFromInt(1)
	fishMax    = decimal.NewFromInt(10)
	dolphinMax = decimal.NewFromInt(32)
)

// Tiers lists the size tiers in ascending order. NonZero is not included.
var Tiers = []Bracket{None, Shrimp, Crab, Fish, Dolphin, Whale}

var labels = map[Bracket]string{
	None:    "No Balance",
	Shrimp:  "Shrimp (0-0.1 ETH)",
	Crab:    "Crab (0.1-1 ETH)",
	Fish:    "Fish (1-10 ETH)",
	Dolphin: "Dolphin (10-32 ETH)",
	Whale:   "Whale (32+ ETH)",
	NonZero: "All Users with a Non-Zero Balance",
}

// Classify returns the size tier for a balance. Negative input is treated as zero.
func Classify(balance decimal.Decimal) Bracket {
	switch {
	case balance.Sign() <= 0:
		return None
	case balance.LessThanOrEqual(shrimpMax):
		return Shrimp
	case balance.LessThanOrEqual(crabMax):
		return Crab
	case balance.LessThanOrEqual(fishMax):
		return Fish
	case balance.LessThanOrEqual(dolphinMax):
		return Dolphin
	default:
		return Whale
	}
}

// Matches reports whether balance falls in b. NonZero matches any positive
// balance; unknown brackets never match.
func Matches(balance decimal.Decimal, b Bracket) bool {
	if b == NonZero {
		return balance.Sign() > 0
	}
	if !b.Valid() {
		return false
	}
	return Classify(balance) == b
}

// Parse converts an identifier such as "crab" or "NON_ZERO" into a Bracket.
func Parse(s string) (Bracket, error) {
	b := Bracket(strings.ToLower(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownBracket, s)
	}
	return b, nil
}

// Valid reports whether b is one of the known tiers or NonZero.
func (b Bracket) Valid() bool {
	_, ok := labels[b]
	return ok
}

// Label returns the display name of the bracket.
func (b Bracket) Label() string {
	if l, ok := labels[b]; ok {
		return l
	}
	return "Unknown"
}

func (b Bracket) String() string {
	return string(b)
}
