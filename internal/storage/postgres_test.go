package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matrixise/survey-gate/internal/balance"
	"github.com/matrixise/survey-gate/internal/bracket"
	"github.com/matrixise/survey-gate/internal/eligibility"
	"github.com/matrixise/survey-gate/internal/reward"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalancesFromSnapshot(t *testing.T) {
	computed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	snap := balance.Snapshot{
		WalletAddress:  "0x1234567890123456789012345678901234567890",
		Native:         balance.TokenBalance{Symbol: "ETH", Balance: decimal.RequireFromString("1.5"), USDValue: decimal.NewFromInt(3000)},
		NativeUSDPrice: decimal.NewFromInt(2000),
		ComputedAt:     computed,
		Tokens: []balance.TokenBalance{
			{Symbol: "WETH", Balance: decimal.RequireFromString("0.5"), USDValue: decimal.NewFromInt(1000)},
			{Symbol: "STETH", Balance: decimal.Zero, USDValue: decimal.Zero},
			{Symbol: "CBETH", Balance: decimal.NewFromInt(2), USDValue: decimal.NewFromInt(4000)},
		},
	}

	rows := BalancesFromSnapshot(snap)
	require.Len(t, rows, 3)

	symbols := []string{rows[0].Symbol, rows[1].Symbol, rows[2].Symbol}
	assert.Equal(t, []string{"ETH", "WETH", "CBETH"}, symbols)
	for _, r := range rows {
		assert.Equal(t, computed, r.QueriedAt)
		assert.Equal(t, snap.WalletAddress, r.Wallet)
		assert.True(t, r.PriceUSD.Equal(decimal.NewFromInt(2000)))
	}
	assert.True(t, rows[2].USDValue.Equal(decimal.NewFromInt(4000)))
}

func TestUserTargeting(t *testing.T) {
	t.Run("recorded balance", func(t *testing.T) {
		u := User{Address: "0xabc", Country: "FR", NativeBalance: decimal.NewNullDecimal(decimal.NewFromInt(12))}
		rule := eligibility.Rule{Country: eligibility.CountrySet("FR"), Balance: eligibility.BracketSet(bracket.Dolphin)}
		assert.True(t, eligibility.Matches(rule, u.Targeting()))
	})

	t.Run("missing balance is zero", func(t *testing.T) {
		u := User{Address: "0xdef", Country: "FR"}
		rule := eligibility.Rule{Country: eligibility.AllUsers(), Balance: eligibility.BracketSet(bracket.NonZero)}
		assert.False(t, eligibility.Matches(rule, u.Targeting()))
	})
}

func TestSurveyTargetingRule(t *testing.T) {
	rule := eligibility.Rule{Country: eligibility.CountrySet("BE"), Balance: eligibility.AllBalances()}
	surveys := []Survey{
		{ID: "a", Targeting: rule},
		{ID: "b", Targeting: eligibility.Open()},
	}

	got := eligibility.Filter(eligibility.Session{Country: "US"}, surveys)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, e := range entries {
		data, err := fs.ReadFile(migrations, "migrations/"+e.Name())
		require.NoError(t, err)
		assert.Contains(t, string(data), "-- +goose Up", e.Name())
		assert.Contains(t, string(data), "-- +goose Down", e.Name())
	}
}

// The tests below need a disposable PostgreSQL database.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, dsn))

	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestStoreConcurrentClaims(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id := fmt.Sprintf("test-claims-%d", time.Now().UnixNano())
	require.NoError(t, store.SaveSurvey(ctx, Survey{
		ID:        id,
		Title:     "Concurrent claims",
		Active:    true,
		Targeting: eligibility.Open(),
		Reward:    reward.NewPrize(1, "ticket", decimal.NewFromInt(10)),
	}))
	t.Cleanup(func() { _, _ = store.pool.Exec(ctx, `DELETE FROM surveys WHERE id = $1`, id) })

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.TryClaim(ctx, id)
			if err == nil && res.Accepted {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), accepted.Load())

	cfg, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.Claimed)
	assert.True(t, cfg.Exhausted())

	_, err = store.TryClaim(ctx, id+"-missing")
	assert.ErrorIs(t, err, reward.ErrSurveyNotFound)
}

func TestStoreSurveyRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id := fmt.Sprintf("test-roundtrip-%d", time.Now().UnixNano())
	in := Survey{
		ID:     id,
		Title:  "Pool survey",
		Active: true,
		Targeting: eligibility.Rule{
			Country: eligibility.CountrySet("FR", "BE"),
			Balance: eligibility.BracketSet(bracket.Crab, bracket.Fish),
		},
		Reward: reward.NewPool(10, decimal.NewFromInt(5), "USDC"),
	}
	require.NoError(t, store.SaveSurvey(ctx, in))
	t.Cleanup(func() { _, _ = store.pool.Exec(ctx, `DELETE FROM surveys WHERE id = $1`, id) })

	out, err := store.GetSurvey(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, in.Targeting, out.Targeting)
	assert.Equal(t, reward.KindPool, out.Reward.Kind)
	assert.True(t, out.Reward.TotalValue.Equal(decimal.NewFromInt(50)))
	require.NotNil(t, out.Reward.Capacity())
	assert.Equal(t, int64(10), *out.Reward.Capacity())

	matching, err := store.SurveysFor(ctx, eligibility.Session{Country: "fr", Balance: decimal.NewFromInt(3)})
	require.NoError(t, err)
	assert.True(t, containsSurvey(matching, id))

	other, err := store.SurveysFor(ctx, eligibility.Session{Country: "US", Balance: decimal.NewFromInt(3)})
	require.NoError(t, err)
	assert.False(t, containsSurvey(other, id))
}

func TestStoreUserBalance(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	addr := strings.ToLower(fmt.Sprintf("0x%040x", time.Now().UnixNano()))
	t.Cleanup(func() {
		_, _ = store.pool.Exec(ctx, `DELETE FROM users WHERE address = $1`, addr)
		_, _ = store.pool.Exec(ctx, `DELETE FROM token_balances WHERE wallet = $1`, addr)
	})

	now := time.Now().UTC().Truncate(time.Microsecond)
	snap := balance.Snapshot{
		WalletAddress:  addr,
		Native:         balance.TokenBalance{Symbol: "ETH", Balance: decimal.RequireFromString("0.25"), USDValue: decimal.NewFromInt(500)},
		TotalUSDValue:  decimal.NewFromInt(500),
		NativeUSDPrice: decimal.NewFromInt(2000),
		ComputedAt:     now,
	}
	require.NoError(t, store.UpsertUserBalance(ctx, addr, "FR", snap))

	u, err := store.GetUser(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "FR", u.Country)
	require.True(t, u.NativeBalance.Valid)
	assert.True(t, u.NativeBalance.Decimal.Equal(decimal.RequireFromString("0.25")))

	// An older snapshot never overwrites a newer balance, but its country applies
	older := snap
	older.ComputedAt = now.Add(-time.Hour)
	older.Stale = true
	older.Native.Balance = decimal.NewFromInt(99)
	require.NoError(t, store.UpsertUserBalance(ctx, addr, "BE", older))
	u, err = store.GetUser(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "BE", u.Country)
	assert.True(t, u.NativeBalance.Decimal.Equal(decimal.RequireFromString("0.25")))
	require.NotNil(t, u.BalanceUpdatedAt)
	assert.True(t, u.BalanceUpdatedAt.Equal(now))

	// An empty country keeps the stored one
	require.NoError(t, store.UpsertUserBalance(ctx, addr, "", snap))
	u, err = store.GetUser(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "BE", u.Country)

	require.NoError(t, store.BatchInsertBalances(ctx, BalancesFromSnapshot(snap)))
	history, err := store.BalanceHistory(ctx, addr, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "ETH", history[0].Symbol)

	stale, err := store.ListStaleUsers(ctx, now.Add(time.Minute), 10000)
	require.NoError(t, err)
	assert.Contains(t, stale, addr)

	deleted, err := store.PruneBalances(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))
	history, err = store.BalanceHistory(ctx, addr, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, history)
}

func containsSurvey(surveys []Survey, id string) bool {
	for _, s := range surveys {
		if s.ID == id {
			return true
		}
	}
	return false
}
