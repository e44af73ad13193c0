package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/matrixise/survey-gate/internal/blockchain"
	"github.com/matrixise/survey-gate/internal/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrBalanceUnavailable is returned when no snapshot can be computed and
	// no previous snapshot exists to fall back to.
	ErrBalanceUnavailable = errors.New("wallet balance unavailable")

	ErrInvalidAddress = errors.New("invalid wallet address")
)

// PriceOracle quotes the native asset in USD
type PriceOracle interface {
	NativeUSDPrice(ctx context.Context) (blockchain.Price, error)
}

// BalanceFetcher reads on-chain balances of a wallet
type BalanceFetcher interface {
	NativeBalance(ctx context.Context, wallet common.Address) (decimal.Decimal, error)
	TokenBalances(ctx context.Context, wallet common.Address, tokens []blockchain.TokenInfo) []blockchain.RawBalance
}

// Aggregator builds wallet snapshots and serves them from a cache
type Aggregator struct {
	oracle       PriceOracle
	fetcher      BalanceFetcher
	cache        Cache
	tokens       []blockchain.TokenInfo
	nativeSymbol string
	nowFn        func() time.Time
}

// NewAggregator wires an oracle, a fetcher and a cache together
func NewAggregator(oracle PriceOracle, fetcher BalanceFetcher, cache Cache, tokens []blockchain.TokenInfo) *Aggregator {
	return &Aggregator{
		oracle:       oracle,
		fetcher:      fetcher,
		cache:        cache,
		tokens:       tokens,
		nativeSymbol: "ETH",
		nowFn:        time.Now,
	}
}

// NormalizeAddress validates a hex wallet address and returns its lowercase form
func NormalizeAddress(address string) (common.Address, string, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)
	return addr, strings.ToLower(addr.Hex()), nil
}

// GetSnapshot returns the cached snapshot when it is fresh and computes a new
// one otherwise.
func (a *Aggregator) GetSnapshot(ctx context.Context, address string) (Snapshot, error) {
	_, key, err := NormalizeAddress(address)
	if err != nil {
		return Snapshot{}, err
	}

	if s, ok := a.cache.Get(ctx, key); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return s, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	return a.Refresh(ctx, address)
}

// Refresh computes a snapshot bypassing the cache and stores it. When the
// price or native balance cannot be read, the last known snapshot is
// returned flagged as stale.
func (a *Aggregator) Refresh(ctx context.Context, address string) (Snapshot, error) {
	wallet, key, err := NormalizeAddress(address)
	if err != nil {
		return Snapshot{}, err
	}

	start := time.Now()
	s, err := a.compute(ctx, wallet, key)
	metrics.AggregationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if prev, ok := a.cache.Peek(ctx, key); ok {
			slog.Warn("Serving stale snapshot", "wallet", key, "age", prev.Age(a.nowFn()).String(), "error", err)
			metrics.Aggregations.WithLabelValues("stale").Inc()
			prev.Stale = true
			return prev, nil
		}
		metrics.Aggregations.WithLabelValues("failed").Inc()
		return Snapshot{}, fmt.Errorf("%w: %s: %w", ErrBalanceUnavailable, key, err)
	}

	if err := a.cache.Put(ctx, key, s); err != nil {
		slog.Warn("Failed to cache snapshot", "wallet", key, "error", err)
	}
	metrics.Aggregations.WithLabelValues("fresh").Inc()
	return s, nil
}

func (a *Aggregator) compute(ctx context.Context, wallet common.Address, key string) (Snapshot, error) {
	var (
		price  blockchain.Price
		native decimal.Decimal
		tokens []blockchain.RawBalance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := a.oracle.NativeUSDPrice(gctx)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	g.Go(func() error {
		n, err := a.fetcher.NativeBalance(gctx, wallet)
		if err != nil {
			return err
		}
		native = n
		return nil
	})
	g.Go(func() error {
		tokens = a.fetcher.TokenBalances(gctx, wallet, a.tokens)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	for _, t := range tokens {
		if t.Err != nil {
			metrics.TokenFetchFailures.WithLabelValues(t.Symbol).Inc()
		}
	}

	s := NewSnapshot(key, a.nativeSymbol, native, tokens, price, a.nowFn())
	slog.Debug("Snapshot computed",
		"wallet", key,
		"native", s.Native.Balance.String(),
		"total_usd", s.TotalUSDValue.StringFixed(2),
		"tokens", len(s.Tokens),
	)
	return s, nil
}
