// Package balance aggregates a wallet's on-chain holdings into a USD-valued
// snapshot and caches it for a short freshness window.
package balance

import (
	"time"

	"github.com/matrixise/survey-gate/internal/blockchain"
	"github.com/shopspring/decimal"
)

// TokenBalance is one position of a snapshot
type TokenBalance struct {
	Symbol   string          `json:"symbol"`
	Balance  decimal.Decimal `json:"balance"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// Snapshot is the result of one aggregation pass. It is replaced, never
// mutated, on refresh.
type Snapshot struct {
	WalletAddress  string          `json:"wallet_address"`
	Native         TokenBalance    `json:"native"`
	Tokens         []TokenBalance  `json:"tokens"`
	TotalUSDValue  decimal.Decimal `json:"total_usd_value"`
	NativeUSDPrice decimal.Decimal `json:"native_usd_price"`
	PriceUpdatedAt time.Time       `json:"price_updated_at"`
	ComputedAt     time.Time       `json:"computed_at"`

	// Stale marks an expired snapshot served because a refresh failed.
	Stale bool `json:"stale,omitempty"`
}

// NativeBalance is the balance used for bracket targeting
func (s Snapshot) NativeBalance() decimal.Decimal {
	return s.Native.Balance
}

// Age returns how long ago the snapshot was computed
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.ComputedAt)
}

// NewSnapshot values native and token balances at price. Every token is
// included in the total; only non-zero positions are kept for display.
func NewSnapshot(wallet string, nativeSymbol string, native decimal.Decimal, tokens []blockchain.RawBalance, price blockchain.Price, computedAt time.Time) Snapshot {
	s := Snapshot{
		WalletAddress: wallet,
		Native: TokenBalance{
			Symbol:   nativeSymbol,
			Balance:  native,
			USDValue: native.Mul(price.USD),
		},
		Tokens:         make([]TokenBalance, 0, len(tokens)),
		NativeUSDPrice: price.USD,
		PriceUpdatedAt: price.UpdatedAt,
		ComputedAt:     computedAt,
	}

	total := s.Native.USDValue
	for _, t := range tokens {
		usd := t.Balance.Mul(price.USD)
		total = total.Add(usd)
		if t.Balance.Sign() > 0 {
			s.Tokens = append(s.Tokens, TokenBalance{Symbol: t.Symbol, Balance: t.Balance, USDValue: usd})
		}
	}
	s.TotalUSDValue = total

	return s
}
