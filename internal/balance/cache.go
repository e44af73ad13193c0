package balance

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a snapshot is served without refreshing.
const DefaultCacheTTL = 5 * time.Minute

// Cache stores the last snapshot per wallet address.
//
// Get only returns snapshots younger than the TTL. Peek ignores the TTL and
// is used to serve a stale snapshot when a refresh fails. Put must not
// replace a snapshot priced from a newer feed round with an older one.
type Cache interface {
	Get(ctx context.Context, address string) (Snapshot, bool)
	Peek(ctx context.Context, address string) (Snapshot, bool)
	Put(ctx context.Context, address string, s Snapshot) error
}

// MemoryCache is an in-process Cache safe for concurrent use
type MemoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]Snapshot
	nowFn func() time.Time
}

// NewMemoryCache creates an empty cache with the given freshness window
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		ttl:   ttl,
		items: make(map[string]Snapshot),
		nowFn: time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, address string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.items[address]
	if !ok || !fresh(s, c.ttl, c.nowFn()) {
		return Snapshot{}, false
	}
	return s, true
}

func (c *MemoryCache) Peek(_ context.Context, address string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.items[address]
	return s, ok
}

func (c *MemoryCache) Put(_ context.Context, address string, s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[address]; ok && supersedes(existing, s) {
		return nil
	}
	c.items[address] = s
	return nil
}

// Prune drops snapshots older than retention and returns how many were removed
func (c *MemoryCache) Prune(retention time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	removed := 0
	for addr, s := range c.items {
		if s.Age(now) > retention {
			delete(c.items, addr)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored snapshots, fresh or not
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func fresh(s Snapshot, ttl time.Duration, now time.Time) bool {
	return s.Age(now) < ttl
}

// supersedes reports whether existing was priced from a strictly newer round than incoming
func supersedes(existing, incoming Snapshot) bool {
	return existing.PriceUpdatedAt.After(incoming.PriceUpdatedAt)
}
