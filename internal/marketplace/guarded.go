package marketplace

import (
	"context"
	"errors"

	"github.com/emperorhan/collection-scanner/internal/circuitbreaker"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
)

// GuardedProvider stops calling an inner provider while its circuit
// breaker is open. Throttling belongs to the provider's own RPC calls, see
// WithRateLimiter.
type GuardedProvider struct {
	inner   ListingsProvider
	breaker *circuitbreaker.Breaker
}

// NewGuardedProvider wraps inner. breaker may be nil.
func NewGuardedProvider(inner ListingsProvider, breaker *circuitbreaker.Breaker) *GuardedProvider {
	return &GuardedProvider{inner: inner, breaker: breaker}
}

func (g *GuardedProvider) Chain() string {
	return g.inner.Chain()
}

func (g *GuardedProvider) FetchActiveListings(ctx context.Context) ([]model.ListingRecord, error) {
	if g.breaker == nil {
		return g.inner.FetchActiveListings(ctx)
	}

	var records []model.ListingRecord
	err := g.breaker.Do(func() error {
		var err error
		records, err = g.inner.FetchActiveListings(ctx)
		return err
	}, countsAgainstUpstream)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// countsAgainstUpstream ignores cancellations of the caller's own context.
func countsAgainstUpstream(err error) bool {
	return !errors.Is(err, context.Canceled)
}
