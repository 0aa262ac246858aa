package fetchers

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
)

// cachedFetcherCapacity bounds the in-process LRU sitting in front of
// each provider's network call. Small and per-provider: this is a
// hot-query shortcut ahead of the Cache Layer's Redis-backed namespace,
// not a replacement for it.
const cachedFetcherCapacity = 256

// CachingFetcher fronts a domain.ExternalFetcher with a process-local
// LRU keyed by normalized query, so repeated lookups for the same term
// within a process lifetime skip the network call entirely.
type CachingFetcher struct {
	inner domain.ExternalFetcher
	cache *lru.Cache[string, domain.ExternalEvidence]
}

// NewCachingFetcher wraps fetcher with an LRU of cachedFetcherCapacity
// entries.
func NewCachingFetcher(fetcher domain.ExternalFetcher) *CachingFetcher {
	cache, err := lru.New[string, domain.ExternalEvidence](cachedFetcherCapacity)
	if err != nil {
		// Only returned for a non-positive size, which cachedFetcherCapacity
		// never is.
		panic(err)
	}
	return &CachingFetcher{inner: fetcher, cache: cache}
}

// Name delegates to the wrapped fetcher.
func (c *CachingFetcher) Name() string { return c.inner.Name() }

// Fetch returns a cached ExternalEvidence for query if present, else
// delegates to the wrapped fetcher and caches a successful, non-degraded
// result.
func (c *CachingFetcher) Fetch(ctx context.Context, query string) (domain.ExternalEvidence, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	evidence, err := c.inner.Fetch(ctx, query)
	if err != nil || len(evidence.Degraded) > 0 {
		return evidence, err
	}

	c.cache.Add(key, evidence)
	return evidence, nil
}
