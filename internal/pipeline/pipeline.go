// Package pipeline turns collection-change notifications into scans: it
// refetches the collection list, invalidates stale listing results and
// supersedes the running scan.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emperorhan/collection-scanner/internal/alert"
	"github.com/emperorhan/collection-scanner/internal/cache"
	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/metrics"
	"github.com/emperorhan/collection-scanner/internal/store"
	"github.com/emperorhan/collection-scanner/internal/trigger"
	"github.com/google/uuid"
)

var ErrStopped = errors.New("pipeline stopped")

const alertTimeout = 5 * time.Second

// Scanner is the part of scanner.Session the pipeline drives.
type Scanner interface {
	Start(ctx context.Context, collections []model.CollectionRef) uuid.UUID
	Stop()
}

type Config struct {
	Owner    string
	Debounce time.Duration
}

type rescanRequest struct {
	reason string
	done   chan error
}

type Pipeline struct {
	cfg     Config
	source  store.CollectionSource
	scanner Scanner
	cache   *cache.ListingCache
	events  <-chan event.CollectionsChanged
	health  *Health
	alerter alert.Alerter
	logger  *slog.Logger

	rescanCh chan rescanRequest
	stopped  chan struct{}
}

type Option func(*Pipeline)

// WithAlerter reports health transitions of the collection source.
func WithAlerter(a alert.Alerter) Option {
	return func(p *Pipeline) { p.alerter = a }
}

// New builds a pipeline. events may be nil when live updates are disabled.
func New(cfg Config, source store.CollectionSource, scanner Scanner, listingCache *cache.ListingCache, events <-chan event.CollectionsChanged, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		source:   source,
		scanner:  scanner,
		cache:    listingCache,
		events:   events,
		health:   NewHealth(cfg.Owner),
		alerter:  &alert.NoopAlerter{},
		logger:   logger.With("component", "pipeline"),
		rescanCh: make(chan rescanRequest),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Health() *Health { return p.health }

// Rescan asks the running pipeline to refetch the collection list and
// start a new scan. The scan itself runs under the pipeline's context.
func (p *Pipeline) Rescan(ctx context.Context, reason string) error {
	req := rescanRequest{reason: reason, done: make(chan error, 1)}
	select {
	case p.rescanCh <- req:
	case <-p.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run scans once at startup and again for every debounced change event and
// rescan request, until ctx is done. Refreshes are serialized, so a slow
// source fetch can never start a scan over a newer one.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.stopped)
	defer p.scanner.Stop()

	p.logger.Info("pipeline started", "owner", p.cfg.Owner, "debounce", p.cfg.Debounce)
	_ = p.refresh(ctx, "startup", nil)

	var changes <-chan trigger.ChangeSet
	if p.events != nil {
		changes = trigger.Debounce(ctx, p.events, p.cfg.Debounce, p.concerns)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopped", "cause", ctx.Err())
			return ctx.Err()
		case set, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			metrics.TriggerRescansTotal.Inc()
			_ = p.refresh(ctx, "collections_changed", &set)
		case req := <-p.rescanCh:
			req.done <- p.refresh(ctx, req.reason, nil)
		}
	}
}

// concerns runs before debouncing, so a change for another owner can never
// take the place of one for ours.
func (p *Pipeline) concerns(ev event.CollectionsChanged) bool {
	if ev.Owner == "" || p.cfg.Owner == "" || model.SameAddress(ev.Owner, p.cfg.Owner) {
		return true
	}
	p.logger.Debug("ignoring change for another owner", "event_owner", ev.Owner)
	return false
}

// refresh fetches the collection list and supersedes the running scan. On
// a source failure the current scan and view are left alone.
func (p *Pipeline) refresh(ctx context.Context, reason string, change *trigger.ChangeSet) error {
	start := time.Now()
	collections, err := p.source.ListCollections(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.SourceFetchErrors.Inc()
		if p.health.RecordFailure(err) {
			p.logger.Error("collection source unhealthy", "error", err)
			p.notify(ctx, alert.Alert{
				Type:    alert.AlertTypeUnhealthy,
				Owner:   p.cfg.Owner,
				Title:   "Collection source unhealthy",
				Message: err.Error(),
			})
		}
		p.logger.Warn("collection source fetch failed, keeping previous results", "reason", reason, "error", err)
		return fmt.Errorf("fetch collections: %w", err)
	}
	if p.health.RecordSuccess() {
		p.logger.Info("collection source recovered")
		p.notify(ctx, alert.Alert{
			Type:    alert.AlertTypeRecovery,
			Owner:   p.cfg.Owner,
			Title:   "Collection source recovered",
			Message: fmt.Sprintf("%d collections loaded", len(collections)),
		})
	}
	p.health.RecordLatency(time.Since(start))

	if change != nil {
		// The old scan must be gone before invalidating, or it could write
		// back a result resolved against the old state.
		p.scanner.Stop()
		p.invalidate(*change)
	}

	scanID := p.scanner.Start(ctx, collections)
	p.logger.Info("scan scheduled", "scan_id", scanID, "reason", reason, "collections", len(collections))
	return nil
}

// invalidate drops cached listing results a change may have made stale:
// only the named collections, or everything when any change was owner-wide.
func (p *Pipeline) invalidate(change trigger.ChangeSet) {
	if p.cache == nil {
		return
	}
	if change.OwnerWide {
		n := p.cache.Purge()
		p.logger.Debug("listing cache purged", "entries", n, "events", change.Events)
		return
	}
	for _, address := range change.Collections {
		p.cache.Invalidate(address)
	}
	p.logger.Debug("listing cache invalidated", "collections", len(change.Collections), "events", change.Events)
}

func (p *Pipeline) notify(ctx context.Context, a alert.Alert) {
	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()
	if err := p.alerter.Send(ctx, a); err != nil {
		p.logger.Warn("health alert not delivered", "type", a.Type, "error", err)
	}
}
