package marketplace

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/marketplace/ratelimit"
	"github.com/emperorhan/collection-scanner/internal/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testMarketplace = common.HexToAddress("0x1000000000000000000000000000000000000001")
	collectionA     = common.HexToAddress("0xA00000000000000000000000000000000000000A")
	collectionB     = common.HexToAddress("0xB00000000000000000000000000000000000000B")
)

// fakeMarketplace answers eth_call for totalListings/getAllValidListings
// from an in-memory listing table.
type fakeMarketplace struct {
	t        *testing.T
	mu       sync.Mutex
	total    int64
	listings []listingTuple
	ranges   [][2]int64
	calls    int
	err      error
}

func (f *fakeMarketplace) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	require.NotNil(f.t, call.To)
	assert.Equal(f.t, testMarketplace, *call.To)

	contract, err := directListings()
	require.NoError(f.t, err)
	method, err := contract.MethodById(call.Data[:4])
	require.NoError(f.t, err)

	switch method.Name {
	case methodTotalListings:
		return method.Outputs.Pack(big.NewInt(f.total))
	case methodGetAllValidListings:
		args, err := method.Inputs.Unpack(call.Data[4:])
		require.NoError(f.t, err)
		start := args[0].(*big.Int).Int64()
		end := args[1].(*big.Int).Int64()
		f.ranges = append(f.ranges, [2]int64{start, end})

		page := make([]listingTuple, 0)
		for _, l := range f.listings {
			id := l.ListingId.Int64()
			if id >= start && id <= end {
				page = append(page, l)
			}
		}
		return method.Outputs.Pack(page)
	}
	f.t.Fatalf("unexpected method %s", method.Name)
	return nil, nil
}

func testListing(id int64, asset common.Address) listingTuple {
	return listingTuple{
		ListingId:      big.NewInt(id),
		TokenId:        big.NewInt(id * 10),
		Quantity:       big.NewInt(1),
		PricePerToken:  big.NewInt(1_000_000),
		StartTimestamp: big.NewInt(1_700_000_000),
		EndTimestamp:   big.NewInt(1_800_000_000),
		ListingCreator: common.HexToAddress("0xC0FFEE0000000000000000000000000000000000"),
		AssetContract:  asset,
		Currency:       common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"),
		TokenType:      0,
		Status:         uint8(model.ListingStatusCreated),
	}
}

func TestEVMProvider_FetchActiveListings_Pages(t *testing.T) {
	fake := &fakeMarketplace{
		t:     t,
		total: 5,
		listings: []listingTuple{
			testListing(0, collectionA),
			testListing(3, collectionB),
			testListing(4, collectionA),
		},
	}
	p, err := NewEVMProvider(fake, testMarketplace, "base", slog.Default(), WithPageSize(2))
	require.NoError(t, err)

	records, err := p.FetchActiveListings(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, collectionA.Hex(), records[0].AssetContract)
	assert.Equal(t, collectionB.Hex(), records[1].AssetContract)
	assert.Equal(t, int64(30), records[1].TokenID.Int64())
	assert.Equal(t, model.ListingStatusCreated, records[2].Status)
	assert.Equal(t, int64(1_700_000_000), records[0].StartTime.Unix())

	assert.Equal(t, [][2]int64{{0, 1}, {2, 3}, {4, 4}}, fake.ranges)
}

func TestEVMProvider_NoListings(t *testing.T) {
	fake := &fakeMarketplace{t: t, total: 0}
	p, err := NewEVMProvider(fake, testMarketplace, "base", nil)
	require.NoError(t, err)

	records, err := p.FetchActiveListings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, fake.ranges, "no range query when the id space is empty")
}

func TestEVMProvider_CallError(t *testing.T) {
	rpcErr := errors.New("dial tcp: connection refused")
	fake := &fakeMarketplace{t: t, err: rpcErr}
	p, err := NewEVMProvider(fake, testMarketplace, "base", nil)
	require.NoError(t, err)

	_, err = p.FetchActiveListings(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, rpcErr)
	assert.Contains(t, err.Error(), methodTotalListings)
}

func TestEVMProvider_RateLimitsEveryCall(t *testing.T) {
	fake := &fakeMarketplace{
		t:        t,
		total:    5,
		listings: []listingTuple{testListing(1, collectionA)},
	}
	// One token per 50ms with no burst beyond the first call.
	limiter := ratelimit.NewLimiter(20, 1, "per-call-test")
	p, err := NewEVMProvider(fake, testMarketplace, "base", nil, WithPageSize(2), WithRateLimiter(limiter))
	require.NoError(t, err)

	waits := metrics.MarketplaceRateLimitWaits.WithLabelValues("per-call-test")
	before := testutil.ToFloat64(waits)
	start := time.Now()

	_, err = p.FetchActiveListings(context.Background())
	require.NoError(t, err)

	// totalListings plus three pages: every call after the first waits.
	assert.Equal(t, 4, fake.calls)
	assert.Equal(t, before+3, testutil.ToFloat64(waits))
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

func TestEVMProvider_RateLimitHonoursContext(t *testing.T) {
	fake := &fakeMarketplace{t: t, total: 5}
	limiter := ratelimit.NewLimiter(0.001, 1, "base")
	require.NoError(t, limiter.Wait(context.Background()))

	p, err := NewEVMProvider(fake, testMarketplace, "base", nil, WithRateLimiter(limiter))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.FetchActiveListings(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.calls, "no eth_call without a token")
}

func TestNewEVMProvider_Validation(t *testing.T) {
	_, err := NewEVMProvider(nil, testMarketplace, "base", nil)
	assert.Error(t, err)

	_, err = NewEVMProvider(&fakeMarketplace{t: t}, common.Address{}, "base", nil)
	assert.Error(t, err)
}

func TestDialEVMProvider_InvalidAddress(t *testing.T) {
	_, _, err := DialEVMProvider(context.Background(), "http://127.0.0.1:8545", "not-an-address", "base", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid contract address")
}
