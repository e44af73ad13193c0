package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/matrixise/survey-gate/internal/balance"
	"github.com/matrixise/survey-gate/internal/blockchain"
	"github.com/matrixise/survey-gate/internal/config"
)

// Snapshots older than this are dropped from the cache and never served as stale.
const snapshotRetention = 24 * time.Hour

// engine bundles the chain client, price feed, cache and aggregator built from config
type engine struct {
	client     *blockchain.Client
	feed       *blockchain.PriceFeed
	cache      balance.Cache
	memory     *balance.MemoryCache
	redis      *balance.RedisCache
	aggregator *balance.Aggregator
}

func newEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	client, err := blockchain.NewClient(cfg.RPCUrls, blockchain.Options{RateLimit: cfg.RPCRateLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	if _, endpoint, err := client.GetHealthyEndpoint(); err == nil {
		slog.Info("RPC connection established",
			"endpoints", len(cfg.RPCUrls),
			"active", endpoint)
	}

	feed := blockchain.NewPriceFeed(client, blockchain.PriceFeedOptions{
		Address:  cfg.PriceFeed.Address,
		Decimals: cfg.PriceFeed.Decimals,
		MaxAge:   cfg.PriceFeed.MaxAge,
	})

	e := &engine{client: client, feed: feed}

	switch cfg.Cache.Backend {
	case "redis":
		rc, err := balance.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL, snapshotRetention)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		e.redis, e.cache = rc, rc
	default:
		e.memory = balance.NewMemoryCache(cfg.Cache.TTL)
		e.cache = e.memory
	}
	slog.Info("Balance cache ready", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL)

	tokens := make([]blockchain.TokenInfo, len(cfg.Tokens))
	for i, t := range cfg.Tokens {
		tokens[i] = blockchain.TokenInfo{Symbol: t.Symbol, Address: t.Address, Decimals: t.Decimals}
	}
	e.aggregator = balance.NewAggregator(feed, client, e.cache, tokens)

	return e, nil
}

func (e *engine) Close() {
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			slog.Warn("Failed to close redis", "error", err)
		}
	}
	e.client.Close()
}
