package fetchers

import (
	"context"
	"time"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ResilientFetcher wraps a domain.ExternalFetcher with a per-provider
// circuit breaker, so a failing upstream degrades to an empty result
// instead of blocking every subsequent query behind its timeout.
type ResilientFetcher struct {
	inner   domain.ExternalFetcher
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

// NewResilientFetcher wraps fetcher with a circuit breaker: three
// consecutive failures trip it, a cooldown window lets it attempt
// recovery.
func NewResilientFetcher(fetcher domain.ExternalFetcher, log *logrus.Logger) *ResilientFetcher {
	name := fetcher.Name()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"fetcher":    name,
				"from_state": from,
				"to_state":   to,
			}).Warn("external fetcher circuit breaker state changed")
		},
	}
	return &ResilientFetcher{
		inner:   fetcher,
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log,
	}
}

// Name delegates to the wrapped fetcher.
func (r *ResilientFetcher) Name() string { return r.inner.Name() }

// Fetch executes the wrapped fetcher through the circuit breaker. A
// breaker in the open state, or any other failure, yields an empty
// ExternalEvidence rather than an error — callers treat this provider as
// degraded for the query and proceed with whatever the others returned.
func (r *ResilientFetcher) Fetch(ctx context.Context, query string) (domain.ExternalEvidence, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.Fetch(ctx, query)
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"fetcher": r.Name(),
			"error":   err.Error(),
		}).Warn("external fetcher degraded")
		return domain.ExternalEvidence{Degraded: []string{r.Name()}}, nil
	}
	return result.(domain.ExternalEvidence), nil
}
