package balance

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAt(wallet string, total int64, priced, computed time.Time) Snapshot {
	return Snapshot{
		WalletAddress:  wallet,
		TotalUSDValue:  decimal.NewFromInt(total),
		NativeUSDPrice: decimal.NewFromInt(2000),
		PriceUpdatedAt: priced,
		ComputedAt:     computed,
		Tokens:         []TokenBalance{},
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(5 * time.Minute)
	cache.nowFn = func() time.Time { return now }

	t.Run("miss on empty cache", func(t *testing.T) {
		_, ok := cache.Get(ctx, "0xa")
		assert.False(t, ok)
		_, ok = cache.Peek(ctx, "0xa")
		assert.False(t, ok)
	})

	t.Run("fresh entry is returned", func(t *testing.T) {
		require.NoError(t, cache.Put(ctx, "0xa", snapshotAt("0xa", 10, now, now)))
		s, ok := cache.Get(ctx, "0xa")
		require.True(t, ok)
		assert.True(t, s.TotalUSDValue.Equal(decimal.NewFromInt(10)))
	})

	t.Run("expired entry is only visible through peek", func(t *testing.T) {
		now = now.Add(5 * time.Minute)
		_, ok := cache.Get(ctx, "0xa")
		assert.False(t, ok)
		_, ok = cache.Peek(ctx, "0xa")
		assert.True(t, ok)
	})

	t.Run("older price round does not replace newer one", func(t *testing.T) {
		newer := snapshotAt("0xb", 20, now, now)
		older := snapshotAt("0xb", 30, now.Add(-time.Hour), now)

		require.NoError(t, cache.Put(ctx, "0xb", newer))
		require.NoError(t, cache.Put(ctx, "0xb", older))

		s, ok := cache.Get(ctx, "0xb")
		require.True(t, ok)
		assert.True(t, s.TotalUSDValue.Equal(decimal.NewFromInt(20)))
	})

	t.Run("same round replaces", func(t *testing.T) {
		require.NoError(t, cache.Put(ctx, "0xb", snapshotAt("0xb", 40, now, now)))
		s, _ := cache.Get(ctx, "0xb")
		assert.True(t, s.TotalUSDValue.Equal(decimal.NewFromInt(40)))
	})

	t.Run("prune drops entries past retention", func(t *testing.T) {
		now = now.Add(time.Hour)
		removed := cache.Prune(30 * time.Minute)
		assert.Equal(t, 2, removed)
		assert.Equal(t, 0, cache.Len())
	})
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(time.Minute)
	base := time.Now()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			addr := fmt.Sprintf("0x%02d", i%5)
			_ = cache.Put(ctx, addr, snapshotAt(addr, int64(i), base.Add(time.Duration(i)*time.Second), time.Now()))
		}()
		go func() {
			defer wg.Done()
			_, _ = cache.Get(ctx, fmt.Sprintf("0x%02d", i%5))
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, cache.Len())
	// Each address keeps the snapshot from its newest price round
	for j := range 5 {
		s, ok := cache.Peek(ctx, fmt.Sprintf("0x%02d", j))
		require.True(t, ok)
		assert.True(t, s.TotalUSDValue.Equal(decimal.NewFromInt(int64(45+j))), "address %d kept %s", j, s.TotalUSDValue)
	}
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	cache, err := NewRedisCache(ctx, url, time.Minute, time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	now := time.Now().UTC().Truncate(time.Second)
	cache.nowFn = func() time.Time { return now }
	addr := fmt.Sprintf("0xtest%d", now.UnixNano())
	defer cache.client.Del(ctx, redisKeyPrefix+addr)

	_, ok := cache.Get(ctx, addr)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, addr, snapshotAt(addr, 100, now, now)))
	s, ok := cache.Get(ctx, addr)
	require.True(t, ok)
	assert.True(t, s.TotalUSDValue.Equal(decimal.NewFromInt(100)))

	require.NoError(t, cache.Put(ctx, addr, snapshotAt(addr, 5, now.Add(-time.Minute), now)))
	s, _ = cache.Get(ctx, addr)
	assert.True(t, s.TotalUSDValue.Equal(decimal.NewFromInt(100)))

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get(ctx, addr)
	assert.False(t, ok)
	_, ok = cache.Peek(ctx, addr)
	assert.True(t, ok)
}
