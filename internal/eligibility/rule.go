// Package eligibility decides which wallets a survey's targeting rule admits.
//
// A rule has two independent dimensions combined with AND. Their empty-set
// defaults differ on purpose: an empty country set admits nobody while an
// empty bracket set admits every balance.
package eligibility

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matrixise/survey-gate/internal/bracket"
	"github.com/shopspring/decimal"
)

// ErrInvalidRule is returned by Rule.Validate. Matching never returns it and
// treats a malformed rule as non-matching instead.
var ErrInvalidRule = errors.New("invalid targeting rule")

const (
	CountryModeAll      = "all"
	CountryModeSpecific = "specific"

	BalanceModeAll      = "all"
	BalanceModeBrackets = "balance"
)

// CountryFilter is either AllUsers or a set of ISO country codes
type CountryFilter struct {
	Mode      string   `json:"mode"`
	Countries []string `json:"countries,omitempty"`
}

// AllUsers admits every country
func AllUsers() CountryFilter {
	return CountryFilter{Mode: CountryModeAll}
}

// CountrySet admits only the listed countries. With no codes it admits nobody.
func CountrySet(codes ...string) CountryFilter {
	return CountryFilter{Mode: CountryModeSpecific, Countries: codes}
}

// Pass reports whether country is admitted
func (f CountryFilter) Pass(country string) bool {
	switch f.Mode {
	case CountryModeAll:
		return true
	case CountryModeSpecific:
		country = normalizeCountry(country)
		if country == "" {
			return false
		}
		for _, c := range f.Countries {
			if normalizeCountry(c) == country {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// BalanceFilter is either AllBalances or a set of bracket identifiers
type BalanceFilter struct {
	Mode     string   `json:"mode"`
	Brackets []string `json:"brackets,omitempty"`
}

// AllBalances admits every balance
func AllBalances() BalanceFilter {
	return BalanceFilter{Mode: BalanceModeAll}
}

// BracketSet admits balances matching at least one bracket. With no brackets
// it admits every balance.
func BracketSet(brackets ...bracket.Bracket) BalanceFilter {
	ids := make([]string, len(brackets))
	for i, b := range brackets {
		ids[i] = b.String()
	}
	return BalanceFilter{Mode: BalanceModeBrackets, Brackets: ids}
}

// Pass reports whether balance is admitted. Unknown bracket identifiers never
// match.
func (f BalanceFilter) Pass(balance decimal.Decimal) bool {
	switch f.Mode {
	case BalanceModeAll:
		return true
	case BalanceModeBrackets:
		if len(f.Brackets) == 0 {
			return true
		}
		for _, id := range f.Brackets {
			b, err := bracket.Parse(id)
			if err != nil {
				continue
			}
			if bracket.Matches(balance, b) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Rule is the targeting rule attached to a survey
type Rule struct {
	Country CountryFilter `json:"country"`
	Balance BalanceFilter `json:"balance"`
}

// Open is the rule that admits everybody
func Open() Rule {
	return Rule{Country: AllUsers(), Balance: AllBalances()}
}

// Validate reports the first malformed part of the rule
func (r Rule) Validate() error {
	switch r.Country.Mode {
	case CountryModeAll:
	case CountryModeSpecific:
		for _, c := range r.Country.Countries {
			if normalizeCountry(c) == "" {
				return fmt.Errorf("%w: empty country code", ErrInvalidRule)
			}
		}
	default:
		return fmt.Errorf("%w: country mode %q", ErrInvalidRule, r.Country.Mode)
	}

	switch r.Balance.Mode {
	case BalanceModeAll:
	case BalanceModeBrackets:
		for _, id := range r.Balance.Brackets {
			if _, err := bracket.Parse(id); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidRule, err)
			}
		}
	default:
		return fmt.Errorf("%w: balance mode %q", ErrInvalidRule, r.Balance.Mode)
	}
	return nil
}

func normalizeCountry(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
