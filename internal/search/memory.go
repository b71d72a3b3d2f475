package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/listening-room-server/pkg/models"
	"github.com/listening-room-server/pkg/redis"
)

type cacheEntry struct {
	results   []models.TrackResult
	expiresAt time.Time
}

// MemoryCache is the in-process cache used when no redis is configured.
// Expired entries are dropped when read.
type MemoryCache struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[string]cacheEntry
}

func NewMemoryCache(clk clock.Clock, ttl time.Duration) *MemoryCache {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryCache{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func memoryKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func (c *MemoryCache) Get(_ context.Context, query string) ([]models.TrackResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := memoryKey(query)
	entry, ok := c.entries[key]
	if !ok {
		return nil, redis.ErrCacheMiss
	}
	if c.clock.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, redis.ErrCacheMiss
	}
	return entry.results, nil
}

func (c *MemoryCache) Set(_ context.Context, query string, results []models.TrackResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[memoryKey(query)] = cacheEntry{
		results:   results,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
	return nil
}
