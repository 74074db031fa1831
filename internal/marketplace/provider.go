// Package marketplace reads active sale listings from an NFT marketplace.
package marketplace

import (
	"context"

	"github.com/emperorhan/collection-scanner/internal/domain/model"
)

//go:generate mockgen -destination=mocks/provider_mock.go -package=mocks . ListingsProvider

// ListingsProvider returns every currently valid listing of a marketplace.
type ListingsProvider interface {
	// Chain returns the chain label used in logs and metrics.
	Chain() string

	// FetchActiveListings returns all active listings. Implementations do
	// not retry.
	FetchActiveListings(ctx context.Context) ([]model.ListingRecord, error)
}
