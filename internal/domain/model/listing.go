package model

import (
	"math/big"
	"time"
)

// ListingRecord is one active sale listing returned by a marketplace.
// The scanner only looks at AssetContract.
type ListingRecord struct {
	ListingID     *big.Int
	TokenID       *big.Int
	Quantity      *big.Int
	PricePerToken *big.Int
	Creator       string
	AssetContract string
	Currency      string
	StartTime     time.Time
	EndTime       time.Time
	Status        ListingStatus
}

type ListingStatus uint8

const (
	ListingStatusUnset ListingStatus = iota
	ListingStatusCreated
	ListingStatusCompleted
	ListingStatusCancelled
)

func (s ListingStatus) String() string {
	switch s {
	case ListingStatusCreated:
		return "created"
	case ListingStatusCompleted:
		return "completed"
	case ListingStatusCancelled:
		return "cancelled"
	default:
		return "unset"
	}
}

// CacheEntry is the memoized listing-existence result for one address.
type CacheEntry struct {
	Address     string
	HasListings bool
	ResolvedAt  time.Time
}
