// Package main drives the batch scanner against a synthetic marketplace to
// measure scan latency, probe volume and cache effectiveness.
//
// Usage:
//
//	go run ./test/loadtest \
//	  -collections 200 \
//	  -listed-ratio 0.3 \
//	  -fail-ratio 0.02 \
//	  -latency 40ms \
//	  -batch-size 5 \
//	  -rounds 3
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"math/rand/v2"
	"os"
	"os/signal"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/emperorhan/collection-scanner/internal/cache"
	"github.com/emperorhan/collection-scanner/internal/circuitbreaker"
	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/marketplace"
	"github.com/emperorhan/collection-scanner/internal/marketplace/ratelimit"
	"github.com/emperorhan/collection-scanner/internal/probe"
	"github.com/emperorhan/collection-scanner/internal/scanner"
)

// syntheticMarketplace lists one record per listed collection and fails
// a fixed share of calls. Each fetch stands for a single RPC.
type syntheticMarketplace struct {
	listings []model.ListingRecord
	latency  time.Duration
	failPct  float64
	limiter  *ratelimit.Limiter
	calls    atomic.Int64
}

func (m *syntheticMarketplace) Chain() string { return "loadtest" }

func (m *syntheticMarketplace) FetchActiveListings(ctx context.Context) ([]model.ListingRecord, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	m.calls.Add(1)
	jitter := time.Duration(rand.Int64N(int64(m.latency)/2 + 1))
	select {
	case <-time.After(m.latency + jitter):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if rand.Float64() < m.failPct {
		return nil, errors.New("synthetic upstream failure")
	}
	return m.listings, nil
}

func syntheticCollections(n int, listedRatio float64) ([]model.CollectionRef, []model.ListingRecord) {
	refs := make([]model.CollectionRef, n)
	var listings []model.ListingRecord
	for i := range refs {
		addr := fmt.Sprintf("0x%040x", i+1)
		refs[i] = model.CollectionRef{Address: addr, Name: fmt.Sprintf("collection-%d", i+1)}
		if float64(i) < listedRatio*float64(n) {
			listings = append(listings, model.ListingRecord{
				ListingID:     big.NewInt(int64(i)),
				TokenID:       big.NewInt(1),
				Quantity:      big.NewInt(1),
				PricePerToken: big.NewInt(1e18),
				AssetContract: addr,
				Status:        model.ListingStatusCreated,
			})
		}
	}
	rand.Shuffle(len(refs), func(i, j int) { refs[i], refs[j] = refs[j], refs[i] })
	return refs, listings
}

type roundStats struct {
	duration time.Duration
	results  int
	failed   int
	probes   int64
	aborted  bool
}

func main() {
	var (
		collections = flag.Int("collections", 200, "Number of owned collections to scan")
		listedRatio = flag.Float64("listed-ratio", 0.3, "Share of collections with active listings")
		failRatio   = flag.Float64("fail-ratio", 0.02, "Share of marketplace calls that fail")
		latency     = flag.Duration("latency", 40*time.Millisecond, "Base latency of one marketplace call")
		batchSize   = flag.Int("batch-size", scanner.DefaultBatchSize, "Probes per batch")
		batchDelay  = flag.Duration("batch-delay", scanner.DefaultBatchDelay, "Pause between batches")
		timeout     = flag.Duration("probe-timeout", 10*time.Second, "Per-probe timeout")
		rps         = flag.Float64("rps", 0, "Marketplace rate limit in calls/sec (0 disables)")
		rounds      = flag.Int("rounds", 3, "Scans to run back to back over the same cache")
		cacheTTL    = flag.Duration("cache-ttl", cache.DefaultListingCacheTTL, "Listing cache TTL")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	refs, listings := syntheticCollections(*collections, *listedRatio)
	market := &syntheticMarketplace{listings: listings, latency: *latency, failPct: *failRatio}

	var provider marketplace.ListingsProvider = market
	if *rps > 0 {
		market.limiter = ratelimit.NewLimiter(*rps, max(1, int(*rps)), market.Chain())
		breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1 << 20})
		provider = marketplace.NewGuardedProvider(market, breaker)
	}

	listingCache := cache.NewListingCache(*collections*2, *cacheTTL)
	sc := scanner.New(probe.New(provider, *timeout), listingCache, scanner.Config{
		BatchSize:  *batchSize,
		BatchDelay: *batchDelay,
	}, logger)

	fmt.Fprintf(os.Stderr, "scanning %d collections (%d listed) in %d batches, %d rounds\n",
		len(refs), len(listings), sc.TotalBatches(len(refs)), *rounds)

	var (
		batchMu      sync.Mutex
		batchLatency []int64
		stats        []roundStats
	)

	for round := 0; round < *rounds && ctx.Err() == nil; round++ {
		var rs roundStats
		callsBefore := market.calls.Load()
		last := time.Now()

		obs := scanner.ObserverFuncs{
			Progress: func(event.Progress) {
				now := time.Now()
				batchMu.Lock()
				batchLatency = append(batchLatency, now.Sub(last).Nanoseconds())
				batchMu.Unlock()
				last = now
			},
			Warning: func(failed []string) { rs.failed = len(failed) },
			Error:   func(error) { rs.aborted = true },
		}

		start := time.Now()
		results, err := sc.Scan(ctx, refs, obs)
		rs.duration = time.Since(start)
		rs.results = len(results)
		rs.probes = market.calls.Load() - callsBefore
		if err != nil && !scanner.IsCancelled(err) {
			rs.aborted = true
		}
		stats = append(stats, rs)
	}

	slices.Sort(batchLatency)

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("       SCAN LOAD TEST RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Collections:    %d (%d listed)\n", len(refs), len(listings))
	fmt.Printf("Batch size:     %d\n", *batchSize)
	fmt.Printf("Call latency:   %s (+ up to 50%% jitter)\n", *latency)
	fmt.Println("----------------------------------------")
	aborted := 0
	for i, rs := range stats {
		fmt.Printf("Round %d:        %s, %d results, %d probes, %d failed\n",
			i+1, rs.duration.Round(time.Millisecond), rs.results, rs.probes, rs.failed)
		if rs.aborted {
			aborted++
		}
	}
	fmt.Println("----------------------------------------")
	fmt.Println("Latency (per batch):")
	fmt.Printf("  p50:          %s\n", formatNanos(percentile(batchLatency, 50)))
	fmt.Printf("  p95:          %s\n", formatNanos(percentile(batchLatency, 95)))
	fmt.Printf("  p99:          %s\n", formatNanos(percentile(batchLatency, 99)))
	fmt.Println("----------------------------------------")
	fmt.Printf("Cache entries:  %d\n", listingCache.Len())
	fmt.Printf("Aborted scans:  %d\n", aborted)
	fmt.Println("========================================")

	if aborted > 0 {
		os.Exit(1)
	}
}

func percentile(sorted []int64, pct float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func formatNanos(ns int64) string {
	d := time.Duration(ns)
	if d < time.Millisecond {
		return fmt.Sprintf("%.1fus", float64(d.Microseconds()))
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
