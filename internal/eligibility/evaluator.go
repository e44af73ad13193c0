package eligibility

import (
	"github.com/matrixise/survey-gate/internal/metrics"
	"github.com/shopspring/decimal"
)

// User is the targeting view of a user record. An invalid Balance means the
// balance was never recorded and is evaluated as zero.
type User struct {
	Address string
	Country string
	Balance decimal.NullDecimal
}

func (u User) balance() decimal.Decimal {
	if !u.Balance.Valid {
		return decimal.Zero
	}
	return u.Balance.Decimal
}

// Matches reports whether user passes both dimensions of rule
func Matches(rule Rule, user User) bool {
	return rule.Country.Pass(user.Country) && rule.Balance.Pass(user.balance())
}

// CountEligible counts the users of population admitted by rule
func CountEligible(rule Rule, population []User) int {
	n := 0
	for _, u := range population {
		if Matches(rule, u) {
			n++
		}
	}
	metrics.EligibleReach.Observe(float64(n))
	return n
}

// Session carries the current wallet through the browsing workflow
type Session struct {
	Address string
	Country string
	Balance decimal.Decimal
}

// User converts the session into the record evaluated by Matches
func (s Session) User() User {
	return User{
		Address: s.Address,
		Country: s.Country,
		Balance: decimal.NewNullDecimal(s.Balance),
	}
}

// Targeted is anything carrying a targeting rule, typically a survey
type Targeted interface {
	TargetingRule() Rule
}

// Filter returns the items whose rule admits the session's wallet, keeping order
func Filter[T Targeted](s Session, items []T) []T {
	u := s.User()
	out := make([]T, 0, len(items))
	for _, it := range items {
		if Matches(it.TargetingRule(), u) {
			out = append(out, it)
		}
	}
	return out
}
