package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "survey-gate:snapshot:"

// RedisCache shares snapshots between API replicas. Keys outlive the TTL by
// the retention window so Peek can still serve a stale snapshot.
type RedisCache struct {
	client    *redis.Client
	ttl       time.Duration
	retention time.Duration
	nowFn     func() time.Time
}

// NewRedisCache connects to url and verifies the connection
func NewRedisCache(ctx context.Context, url string, ttl, retention time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return newRedisCache(client, ttl, retention), nil
}

func newRedisCache(client *redis.Client, ttl, retention time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if retention < ttl {
		retention = ttl
	}
	return &RedisCache{client: client, ttl: ttl, retention: retention, nowFn: time.Now}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping verifies the connection is alive
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, address string) (Snapshot, bool) {
	s, ok := c.Peek(ctx, address)
	if !ok || !fresh(s, c.ttl, c.nowFn()) {
		return Snapshot{}, false
	}
	return s, true
}

func (c *RedisCache) Peek(ctx context.Context, address string) (Snapshot, bool) {
	s, err := c.load(ctx, c.client, address)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Snapshot cache read failed, treating as miss", "wallet", address, "error", err)
		}
		return Snapshot{}, false
	}
	return s, true
}

// Put writes s unless the stored snapshot was priced from a newer round. The
// compare and write run in a WATCH transaction.
func (c *RedisCache) Put(ctx context.Context, address string, s Snapshot) error {
	key := redisKeyPrefix + address
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		existing, err := c.load(ctx, tx, address)
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && supersedes(existing, s) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.retention)
			return nil
		})
		return err
	}

	if err := c.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// A concurrent writer won; last writer wins
			return nil
		}
		return fmt.Errorf("store snapshot %s: %w", address, err)
	}
	return nil
}

func (c *RedisCache) load(ctx context.Context, r redis.Cmdable, address string) (Snapshot, error) {
	raw, err := r.Get(ctx, redisKeyPrefix+address).Bytes()
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", address, err)
	}
	return s, nil
}
