package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/listening-room-server/pkg/models"
	"github.com/listening-room-server/pkg/redis"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

var ErrEmptyQuery = errors.New("search query is required")

type Searcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]models.TrackResult, error)
}

// Cache stores search results by query. Get returns redis.ErrCacheMiss for
// unknown or expired queries.
type Cache interface {
	Get(ctx context.Context, query string) ([]models.TrackResult, error)
	Set(ctx context.Context, query string, results []models.TrackResult) error
}

type Service struct {
	searcher Searcher
	cache    Cache
}

func NewService(searcher Searcher, cache Cache) *Service {
	return &Service{searcher: searcher, cache: cache}
}

// Search returns catalog hits for query, serving repeated queries from the cache.
// Cache failures are logged and fall through to the catalog.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.TrackResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	key := fmt.Sprintf("%d:%s", limit, query)
	log := logrus.WithField("query", query)

	cached, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		log.Debug("Search served from cache")
		return cached, nil
	case !errors.Is(err, redis.ErrCacheMiss):
		log.WithError(err).Warn("Search cache read failed")
	}

	results, err := s.searcher.SearchTracks(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}

	if err := s.cache.Set(ctx, key, results); err != nil {
		log.WithError(err).Warn("Search cache write failed")
	}

	return results, nil
}
