package storage

import (
	"time"

	"github.com/matrixise/survey-gate/internal/balance"
	"github.com/matrixise/survey-gate/internal/eligibility"
	"github.com/matrixise/survey-gate/internal/reward"
	"github.com/shopspring/decimal"
)

// User is a wallet record with its last-known balance
type User struct {
	Address          string
	Country          string
	NativeBalance    decimal.NullDecimal
	TotalUSDValue    decimal.NullDecimal
	BalanceUpdatedAt *time.Time
	CreatedAt        time.Time
}

// Targeting returns the record evaluated by eligibility rules
func (u User) Targeting() eligibility.User {
	return eligibility.User{
		Address: u.Address,
		Country: u.Country,
		Balance: u.NativeBalance,
	}
}

// Survey is a survey row with its targeting rule and reward ledger state
type Survey struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Active      bool             `json:"active"`
	Targeting   eligibility.Rule `json:"targeting"`
	Reward      reward.Config    `json:"reward"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (s Survey) TargetingRule() eligibility.Rule {
	return s.Targeting
}

// TokenBalance is one row of balance history
type TokenBalance struct {
	ID        int64
	QueriedAt time.Time
	Wallet    string
	Symbol    string
	Balance   decimal.Decimal
	USDValue  decimal.Decimal
	PriceUSD  decimal.Decimal
}

// BalancesFromSnapshot flattens the native position and every non-zero token
// of s into history rows. The native row is always present.
func BalancesFromSnapshot(s balance.Snapshot) []TokenBalance {
	rows := make([]TokenBalance, 0, len(s.Tokens)+1)
	add := func(tb balance.TokenBalance) {
		rows = append(rows, TokenBalance{
			QueriedAt: s.ComputedAt,
			Wallet:    s.WalletAddress,
			Symbol:    tb.Symbol,
			Balance:   tb.Balance,
			USDValue:  tb.USDValue,
			PriceUSD:  s.NativeUSDPrice,
		})
	}

	add(s.Native)
	for _, tb := range s.Tokens {
		if tb.Balance.IsZero() {
			continue
		}
		add(tb)
	}
	return rows
}
