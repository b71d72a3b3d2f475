package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/listening-room-server/pkg/models"
)

const searchKeyPrefix = "search:"

var ErrCacheMiss = errors.New("cache miss")

type SearchCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSearchCache creates a search result cache whose entries expire after ttl.
func NewSearchCache(client *redis.Client, ttl time.Duration) *SearchCache {
	return &SearchCache{client: client, ttl: ttl}
}

func searchKey(query string) string {
	return searchKeyPrefix + strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached results for query, or ErrCacheMiss.
func (s *SearchCache) Get(ctx context.Context, query string) ([]models.TrackResult, error) {
	resultsJSON, err := s.client.Get(ctx, searchKey(query)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get search results: %w", err)
	}

	var results []models.TrackResult
	if err := json.Unmarshal(resultsJSON, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search results: %w", err)
	}

	return results, nil
}

// Set stores results for query until the cache ttl passes.
func (s *SearchCache) Set(ctx context.Context, query string, results []models.TrackResult) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal search results: %w", err)
	}

	if err := s.client.Set(ctx, searchKey(query), resultsJSON, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store search results: %w", err)
	}

	return nil
}
