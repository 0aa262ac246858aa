package fetchers

import (
	"context"
	"sync"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"
)

// Service fans a single query out to every configured provider
// concurrently and merges the results, bounding total wait time to the
// configured live-evidence deadline.
type Service struct {
	fetchers []domain.ExternalFetcher
	log      *logrus.Logger
}

// NewService wraps each fetcher with an in-process LRU and a circuit
// breaker, in that order, and assembles the fan-out set.
func NewService(log *logrus.Logger, raw ...domain.ExternalFetcher) *Service {
	wrapped := make([]domain.ExternalFetcher, 0, len(raw))
	for _, f := range raw {
		wrapped = append(wrapped, NewResilientFetcher(NewCachingFetcher(f), log))
	}
	return &Service{fetchers: wrapped, log: log}
}

// Gather queries every provider concurrently and merges their results.
// A provider that errors, times out, or trips its circuit breaker
// contributes to Degraded instead of failing the whole call.
func (s *Service) Gather(ctx context.Context, query string) domain.ExternalEvidence {
	var (
		mu      sync.Mutex
		merged  domain.ExternalEvidence
		wg      sync.WaitGroup
	)

	for _, f := range s.fetchers {
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			evidence, err := f.Fetch(ctx, query)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				merged.Degraded = append(merged.Degraded, f.Name())
				return
			}
			merged.Papers = append(merged.Papers, evidence.Papers...)
			merged.Trials = append(merged.Trials, evidence.Trials...)
			merged.Drugs = append(merged.Drugs, evidence.Drugs...)
			merged.Degraded = append(merged.Degraded, evidence.Degraded...)
		}()
	}

	wg.Wait()
	return merged
}
