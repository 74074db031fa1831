// Package scanner finds which collections currently have active listings,
// probing them in fixed-size batches.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emperorhan/collection-scanner/internal/cache"
	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/metrics"
	"github.com/emperorhan/collection-scanner/internal/probe"
	"github.com/emperorhan/collection-scanner/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = 50 * time.Millisecond
)

// BatchAbort reports a scan halted by an unexpected failure inside the
// batch loop. Progress emitted before the abort remains valid.
type BatchAbort struct {
	ScanID uuid.UUID
	Batch  int
	Err    error
}

func (e *BatchAbort) Error() string {
	return fmt.Sprintf("scan %s aborted in batch %d: %v", e.ScanID, e.Batch, e.Err)
}

func (e *BatchAbort) Unwrap() error {
	return e.Err
}

type Config struct {
	BatchSize  int
	BatchDelay time.Duration
}

// BatchScanner runs batches sequentially and the probes within a batch
// concurrently. Only successful probes are written to the cache.
type BatchScanner struct {
	prober     probe.Prober
	cache      *cache.ListingCache
	batchSize  int
	batchDelay time.Duration
	logger     *slog.Logger
	sleepFn    func(ctx context.Context, d time.Duration) error
}

func New(prober probe.Prober, listingCache *cache.ListingCache, cfg Config, logger *slog.Logger) *BatchScanner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if listingCache == nil {
		listingCache = cache.NewListingCache(0, cache.DefaultListingCacheTTL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchScanner{
		prober:     prober,
		cache:      listingCache,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
		logger:     logger.With("component", "scanner"),
		sleepFn:    sleepContext,
	}
}

func (s *BatchScanner) BatchSize() int {
	return s.batchSize
}

// TotalBatches is ceil(n / batch size).
func (s *BatchScanner) TotalBatches(n int) int {
	return (n + s.batchSize - 1) / s.batchSize
}

type scanIDKey struct{}

// WithScanID makes the next Scan on ctx use id instead of a fresh one.
func WithScanID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, scanIDKey{}, id)
}

func scanIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(scanIDKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.New()
}

// probeOutcome is written by exactly one probe goroutine per index.
type probeOutcome struct {
	hasListings bool
	err         error
}

// Scan returns the collections that have active listings, in input order.
// Addresses already in the cache are never probed, and cached positives are
// part of the first progress update. On cancellation Scan returns ctx.Err()
// without notifying obs further.
func (s *BatchScanner) Scan(ctx context.Context, collections []model.CollectionRef, obs Observer) (results []model.CollectionRef, err error) {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	scanID := scanIDFromContext(ctx)

	if len(collections) == 0 {
		metrics.ScannerScansTotal.WithLabelValues("completed").Inc()
		metrics.ScannerResolvedCollections.Set(0)
		obs.OnComplete([]model.CollectionRef{})
		return []model.CollectionRef{}, nil
	}

	total := s.TotalBatches(len(collections))
	log := s.logger.With("scan_id", scanID)
	ctx, span := tracing.Tracer("scanner").Start(ctx, "scanner.scan",
		otelTrace.WithAttributes(
			attribute.String("scan_id", scanID.String()),
			attribute.Int("collections", len(collections)),
			attribute.Int("batches", total),
		),
	)
	defer func() { tracing.EndSpan(span, err) }()

	known := make([]bool, len(collections))
	listed := make([]bool, len(collections))
	for i, c := range collections {
		if entry, ok := s.cache.Get(c.Address); ok {
			known[i] = true
			listed[i] = entry.HasListings
		}
	}

	log.Info("scan started", "collections", len(collections), "batches", total, "batch_size", s.batchSize)

	current := 0
	defer func() {
		if r := recover(); r != nil {
			abort := &BatchAbort{ScanID: scanID, Batch: current + 1, Err: fmt.Errorf("panic: %v", r)}
			log.Error("scan aborted", "error", abort)
			metrics.ScannerScansTotal.WithLabelValues("aborted").Inc()
			obs.OnError(abort)
			err = abort
		}
	}()

	var failed []string
	for current = 0; current < total; current++ {
		if err := ctx.Err(); err != nil {
			return s.cancelled(log, collections, known, listed, err)
		}

		lo := current * s.batchSize
		hi := min(lo+s.batchSize, len(collections))

		outcomes, batchErr := s.runBatch(ctx, scanID, current, collections[lo:hi], known[lo:hi])
		if batchErr != nil {
			abort := &BatchAbort{ScanID: scanID, Batch: current + 1, Err: batchErr}
			log.Error("scan aborted", "error", abort)
			metrics.ScannerScansTotal.WithLabelValues("aborted").Inc()
			obs.OnError(abort)
			return collect(collections, known, listed), abort
		}

		// A cancelled scan may have been superseded by an invalidation, so
		// nothing it resolved after that point is written back.
		if err := ctx.Err(); err != nil {
			return s.cancelled(log, collections, known, listed, err)
		}

		for j, out := range outcomes {
			i := lo + j
			if known[i] {
				continue
			}
			if out.err != nil {
				failed = append(failed, collections[i].Address)
				log.Warn("probe failed", "collection", collections[i].Address, "error", out.err)
				continue
			}
			s.cache.Put(collections[i].Address, out.hasListings)
			known[i] = true
			listed[i] = out.hasListings
		}

		obs.OnProgress(event.Progress{
			ScanID:       scanID,
			Results:      collect(collections, known, listed),
			Status:       fmt.Sprintf("Processing batch %d/%d", current+1, total),
			BatchIndex:   current + 1,
			TotalBatches: total,
		})

		if current < total-1 {
			if err := s.sleepFn(ctx, s.batchDelay); err != nil {
				return s.cancelled(log, collections, known, listed, err)
			}
		}
	}

	results = collect(collections, known, listed)
	if len(failed) > 0 {
		obs.OnWarning(failed)
	}
	metrics.ScannerScansTotal.WithLabelValues("completed").Inc()
	metrics.ScannerResolvedCollections.Set(float64(len(results)))
	log.Info("scan completed", "resolved", len(results), "failed", len(failed))
	obs.OnComplete(results)
	return results, nil
}

// runBatch probes every unresolved entry of batch concurrently and waits
// for all of them. Probe errors are returned per entry; the error result is
// reserved for failures that must abort the scan.
func (s *BatchScanner) runBatch(ctx context.Context, scanID uuid.UUID, index int, batch []model.CollectionRef, known []bool) ([]probeOutcome, error) {
	ctx, span := tracing.Tracer("scanner").Start(ctx, "scanner.batch",
		otelTrace.WithAttributes(
			attribute.String("scan_id", scanID.String()),
			attribute.Int("batch", index+1),
			attribute.Int("size", len(batch)),
		),
	)
	start := time.Now()

	outcomes := make([]probeOutcome, len(batch))
	var g errgroup.Group
	g.SetLimit(len(batch))
	for i := range batch {
		if known[i] {
			continue
		}
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("probe %s panicked: %v", batch[i].Address, r)
				}
			}()
			has, probeErr := s.prober.Probe(ctx, batch[i].Address)
			outcomes[i] = probeOutcome{hasListings: has, err: probeErr}
			return nil
		})
	}
	err := g.Wait()

	metrics.ScannerBatchesProcessed.Inc()
	metrics.ScannerBatchLatency.Observe(time.Since(start).Seconds())
	tracing.EndSpan(span, err)
	return outcomes, err
}

func (s *BatchScanner) cancelled(log *slog.Logger, collections []model.CollectionRef, known, listed []bool, err error) ([]model.CollectionRef, error) {
	metrics.ScannerScansTotal.WithLabelValues("cancelled").Inc()
	log.Info("scan cancelled", "cause", err)
	return collect(collections, known, listed), err
}

func collect(collections []model.CollectionRef, known, listed []bool) []model.CollectionRef {
	out := make([]model.CollectionRef, 0)
	for i, c := range collections {
		if known[i] && listed[i] {
			out = append(out, c)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsCancelled reports whether err ended a scan because its context was
// cancelled or superseded.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
