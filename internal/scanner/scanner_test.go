package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emperorhan/collection-scanner/internal/cache"
	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/probe"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner(p probe.Prober, c *cache.ListingCache, batchSize int) *BatchScanner {
	return New(p, c, Config{BatchSize: batchSize, BatchDelay: 0}, discardLogger())
}

func TestScan_TwelveCollectionsThreeBatches(t *testing.T) {
	prober := newFakeProber("addr3", "addr9")
	s := newTestScanner(prober, cache.NewListingCache(100, time.Minute), 5)
	rec := &recorder{}

	results, err := s.Scan(context.Background(), refs(12), rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"addr3", "addr9"}, addresses(results))
	assert.Equal(t, []string{
		"Processing batch 1/3",
		"Processing batch 2/3",
		"Processing batch 3/3",
	}, rec.statuses())

	require.Len(t, rec.progress, 3)
	assert.Equal(t, []string{"addr3"}, addresses(rec.progress[0].Results))
	assert.Equal(t, []string{"addr3", "addr9"}, addresses(rec.progress[1].Results))
	assert.Equal(t, []string{"addr3", "addr9"}, addresses(rec.progress[2].Results))
	for i, p := range rec.progress {
		assert.Equal(t, i+1, p.BatchIndex)
		assert.Equal(t, 3, p.TotalBatches)
	}

	require.Len(t, rec.completed, 1)
	assert.Equal(t, []string{"addr3", "addr9"}, addresses(rec.completed[0]))
	assert.Empty(t, rec.warnings)
	assert.Empty(t, rec.errors)
	assert.Equal(t, 12, prober.totalCalls())
}

func TestScan_EmptyInput(t *testing.T) {
	prober := newFakeProber()
	s := newTestScanner(prober, nil, 5)
	rec := &recorder{}

	results, err := s.Scan(context.Background(), nil, rec)
	require.NoError(t, err)

	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Equal(t, []string{"complete"}, rec.sequence)
	assert.Empty(t, rec.completed[0])
	assert.Zero(t, prober.totalCalls())
}

func TestScan_ProbeFailureIsIsolatedAndNotCached(t *testing.T) {
	prober := newFakeProber("addr2", "addr6")
	prober.failures["addr5"] = &probe.ProbeFailure{Address: "addr5", Err: errors.New("rpc down")}
	c := cache.NewListingCache(100, time.Minute)
	s := newTestScanner(prober, c, 5)
	rec := &recorder{}

	results, err := s.Scan(context.Background(), refs(8), rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"addr2", "addr6"}, addresses(results))
	require.Len(t, rec.warnings, 1)
	assert.Equal(t, []string{"addr5"}, rec.warnings[0])
	assert.Equal(t, []string{"progress", "progress", "warning", "complete"}, rec.sequence)

	_, ok := c.Get("addr5")
	assert.False(t, ok, "failed probe must not be cached")

	for _, addr := range []string{"addr4", "addr6", "addr7"} {
		e, ok := c.Get(addr)
		require.True(t, ok, addr)
		assert.Equal(t, addr == "addr6", e.HasListings, addr)
	}
}

func TestScan_CachedPositivesInFirstUpdateWithoutProbing(t *testing.T) {
	prober := newFakeProber("addr1")
	c := cache.NewListingCache(100, time.Minute)
	c.Put("addr9", true)
	c.Put("addr7", false)
	s := newTestScanner(prober, c, 5)
	rec := &recorder{}

	results, err := s.Scan(context.Background(), refs(12), rec)
	require.NoError(t, err)

	require.NotEmpty(t, rec.progress)
	assert.Equal(t, []string{"addr1", "addr9"}, addresses(rec.progress[0].Results))
	assert.Equal(t, []string{"addr1", "addr9"}, addresses(results))
	assert.Zero(t, prober.callsFor("addr9"))
	assert.Zero(t, prober.callsFor("addr7"))
	assert.Equal(t, 10, prober.totalCalls())
	assert.Len(t, rec.progress, 3, "batch count does not depend on cache hits")
}

func TestScan_Idempotent(t *testing.T) {
	prober := newFakeProber("addr0", "addr4", "addr10")
	c := cache.NewListingCache(100, time.Minute)
	s := newTestScanner(prober, c, 4)

	first, err := s.Scan(context.Background(), refs(11), nil)
	require.NoError(t, err)
	calls := prober.totalCalls()

	second, err := s.Scan(context.Background(), refs(11), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"addr0", "addr4", "addr10"}, addresses(second))
	assert.Equal(t, calls, prober.totalCalls(), "second scan should be served from cache")
}

func TestScan_ProbesWithinBatchRunConcurrently(t *testing.T) {
	const batchSize = 5
	prober := newFakeProber()

	var inFlight, maxInFlight atomic.Int32
	var mu sync.Mutex
	arrived := 0
	allArrived := make(chan struct{})
	prober.before = func(ctx context.Context, address string) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		mu.Lock()
		arrived++
		if arrived == batchSize {
			close(allArrived)
		}
		mu.Unlock()
		// The first batch only finishes once all of its probes are in flight.
		select {
		case <-allArrived:
		case <-time.After(2 * time.Second):
		}
		inFlight.Add(-1)
	}

	s := newTestScanner(prober, nil, batchSize)
	_, err := s.Scan(context.Background(), refs(12), nil)
	require.NoError(t, err)

	assert.Equal(t, int32(batchSize), maxInFlight.Load())
}

func TestScan_BatchesRunSequentially(t *testing.T) {
	prober := newFakeProber()
	var order []string
	var mu sync.Mutex
	prober.before = func(ctx context.Context, address string) {
		mu.Lock()
		order = append(order, address)
		mu.Unlock()
	}

	s := newTestScanner(prober, nil, 3)
	_, err := s.Scan(context.Background(), refs(9), nil)
	require.NoError(t, err)

	require.Len(t, order, 9)
	batchOf := map[string]int{}
	for i, r := range refs(9) {
		batchOf[r.Address] = i / 3
	}
	for i := 1; i < len(order); i++ {
		assert.LessOrEqual(t, batchOf[order[i-1]], batchOf[order[i]], "probe order %v", order)
	}
}

func TestScan_PanicAbortsWithPartialResults(t *testing.T) {
	prober := newFakeProber("addr1")
	prober.panicOn = "addr6"
	s := newTestScanner(prober, nil, 5)
	rec := &recorder{}

	results, err := s.Scan(context.Background(), refs(12), rec)
	require.Error(t, err)

	var abort *BatchAbort
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, 2, abort.Batch)
	assert.Equal(t, []string{"addr1"}, addresses(results))

	assert.Equal(t, []string{"progress", "error"}, rec.sequence)
	assert.Zero(t, prober.callsFor("addr10"), "batches after the abort must not run")
}

func TestScan_CancelStopsFurtherUpdates(t *testing.T) {
	prober := newFakeProber("addr2")
	s := newTestScanner(prober, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	obs := ObserverFuncs{
		Progress: func(p event.Progress) {
			rec.OnProgress(p)
			if p.BatchIndex == 1 {
				cancel()
			}
		},
		Complete: rec.OnComplete,
		Warning:  rec.OnWarning,
		Error:    rec.OnError,
	}

	_, err := s.Scan(ctx, refs(6), obs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, []string{"progress"}, rec.sequence)
	assert.Zero(t, prober.callsFor("addr4"))
}

func TestScan_CancelledBatchIsNotCached(t *testing.T) {
	all := refs(3)
	prober := newFakeProber(addresses(all)...)
	listingCache := cache.NewListingCache(100, time.Minute)
	s := newTestScanner(prober, listingCache, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Every probe in the batch succeeds, but only after the scan was cancelled.
	prober.before = func(context.Context, string) { cancel() }

	rec := &recorder{}
	_, err := s.Scan(ctx, all, rec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, prober.totalCalls())
	assert.Zero(t, listingCache.Len())
	assert.Empty(t, rec.sequence)
}

func TestScan_InterBatchDelay(t *testing.T) {
	prober := newFakeProber()
	s := New(prober, nil, Config{BatchSize: 2, BatchDelay: 10 * time.Millisecond}, discardLogger())

	var delays []time.Duration
	s.sleepFn = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := s.Scan(context.Background(), refs(5), nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, delays, "no delay after the last batch")
}

func TestScan_UsesScanIDFromContext(t *testing.T) {
	s := newTestScanner(newFakeProber(), nil, 5)
	id := uuid.New()
	rec := &recorder{}

	_, err := s.Scan(WithScanID(context.Background(), id), refs(3), rec)
	require.NoError(t, err)
	require.Len(t, rec.progress, 1)
	assert.Equal(t, id, rec.progress[0].ScanID)
}

func TestTotalBatches(t *testing.T) {
	s := newTestScanner(newFakeProber(), nil, 5)
	for n := 1; n <= 23; n++ {
		want := n / 5
		if n%5 != 0 {
			want++
		}
		assert.Equal(t, want, s.TotalBatches(n), "n=%d", n)
	}
	assert.Equal(t, 0, s.TotalBatches(0))
}

func TestNew_Defaults(t *testing.T) {
	s := New(newFakeProber(), nil, Config{BatchSize: 0, BatchDelay: -time.Second}, nil)
	assert.Equal(t, DefaultBatchSize, s.BatchSize())
	assert.Equal(t, time.Duration(0), s.batchDelay)
	assert.NotNil(t, s.cache)
}

func TestScan_PreservesInputOrder(t *testing.T) {
	in := []model.CollectionRef{{Address: "z"}, {Address: "a"}, {Address: "m"}, {Address: "b"}}
	prober := newFakeProber("z", "m", "b")
	s := newTestScanner(prober, nil, 3)

	results, err := s.Scan(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "m", "b"}, addresses(results))
}
