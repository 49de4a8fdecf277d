package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/docsense/backend/internal/retrieval"
)

// resultCache is the slice of the cache layer the searcher decorator needs
type resultCache interface {
	CacheSearchResults(ctx context.Context, queryKey string, results interface{}, expiration time.Duration) error
	GetCachedSearchResults(ctx context.Context, queryKey string, result interface{}) error
}

// CachedSearcher wraps a Searcher with a short-lived result cache keyed
// on normalized query text plus style hint. Cache hits still flow
// through the ledger; only the remote search call is skipped.
type CachedSearcher struct {
	inner  retrieval.Searcher
	cache  resultCache
	ttl    time.Duration
	logger *logrus.Logger
}

func NewCachedSearcher(inner retrieval.Searcher, cache resultCache, ttl time.Duration, logger *logrus.Logger) *CachedSearcher {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &CachedSearcher{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (s *CachedSearcher) Search(ctx context.Context, queryText, styleHint string) ([]retrieval.RankedResult, error) {
	key := searchCacheKey(queryText, styleHint)

	var cached []retrieval.RankedResult
	if err := s.cache.GetCachedSearchResults(ctx, key, &cached); err == nil && len(cached) > 0 {
		s.logger.WithField("key", key).Debug("Search cache hit")
		return cached, nil
	}

	results, err := s.inner.Search(ctx, queryText, styleHint)
	if err != nil {
		return nil, err
	}

	if len(results) > 0 {
		if err := s.cache.CacheSearchResults(ctx, key, results, s.ttl); err != nil {
			s.logger.WithError(err).Warn("Failed to cache search results")
		}
	}

	return results, nil
}

func searchCacheKey(queryText, styleHint string) string {
	return fmt.Sprintf("%s|%s", NormalizeQuery(queryText), styleHint)
}
