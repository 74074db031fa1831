package marketplace

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// directListingsABI is the read-only subset of the thirdweb MarketplaceV3
// DirectListings extension.
const directListingsABI = `[
  {
    "type": "function",
    "name": "totalListings",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "getAllValidListings",
    "stateMutability": "view",
    "inputs": [
      {"name": "_startId", "type": "uint256"},
      {"name": "_endId", "type": "uint256"}
    ],
    "outputs": [
      {
        "name": "listings",
        "type": "tuple[]",
        "components": [
          {"name": "listingId", "type": "uint256"},
          {"name": "tokenId", "type": "uint256"},
          {"name": "quantity", "type": "uint256"},
          {"name": "pricePerToken", "type": "uint256"},
          {"name": "startTimestamp", "type": "uint128"},
          {"name": "endTimestamp", "type": "uint128"},
          {"name": "listingCreator", "type": "address"},
          {"name": "assetContract", "type": "address"},
          {"name": "currency", "type": "address"},
          {"name": "tokenType", "type": "uint8"},
          {"name": "status", "type": "uint8"},
          {"name": "reserved", "type": "bool"}
        ]
      }
    ]
  }
]`

const (
	methodTotalListings       = "totalListings"
	methodGetAllValidListings = "getAllValidListings"
)

var (
	parsedABIOnce sync.Once
	parsedABI     abi.ABI
	parsedABIErr  error
)

func directListings() (abi.ABI, error) {
	parsedABIOnce.Do(func() {
		parsedABI, parsedABIErr = abi.JSON(strings.NewReader(directListingsABI))
	})
	return parsedABI, parsedABIErr
}

// listingTuple mirrors IDirectListings.Listing. Field names follow the
// abi package's camel-casing of the component names.
type listingTuple struct {
	ListingId      *big.Int
	TokenId        *big.Int
	Quantity       *big.Int
	PricePerToken  *big.Int
	StartTimestamp *big.Int
	EndTimestamp   *big.Int
	ListingCreator common.Address
	AssetContract  common.Address
	Currency       common.Address
	TokenType      uint8
	Status         uint8
	Reserved       bool
}

func (l listingTuple) record() model.ListingRecord {
	return model.ListingRecord{
		ListingID:     l.ListingId,
		TokenID:       l.TokenId,
		Quantity:      l.Quantity,
		PricePerToken: l.PricePerToken,
		Creator:       l.ListingCreator.Hex(),
		AssetContract: l.AssetContract.Hex(),
		Currency:      l.Currency.Hex(),
		StartTime:     unixTime(l.StartTimestamp),
		EndTime:       unixTime(l.EndTimestamp),
		Status:        model.ListingStatus(l.Status),
	}
}

func unixTime(v *big.Int) time.Time {
	if v == nil || !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

func unpackTotalListings(contract abi.ABI, data []byte) (*big.Int, error) {
	out, err := contract.Unpack(methodTotalListings, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", methodTotalListings, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 value, got %d", methodTotalListings, len(out))
	}
	total := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return total, nil
}

func unpackListings(contract abi.ABI, data []byte) ([]listingTuple, error) {
	out, err := contract.Unpack(methodGetAllValidListings, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", methodGetAllValidListings, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 value, got %d", methodGetAllValidListings, len(out))
	}
	listings := *abi.ConvertType(out[0], new([]listingTuple)).(*[]listingTuple)
	return listings, nil
}
