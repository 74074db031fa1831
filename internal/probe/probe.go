// Package probe answers "does this collection have any active listing?"
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/marketplace"
	"github.com/emperorhan/collection-scanner/internal/metrics"
	"github.com/emperorhan/collection-scanner/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const DefaultTimeout = 10 * time.Second

// ProbeFailure means the listing state of Address is unknown. It must not
// be treated as "no listings".
type ProbeFailure struct {
	Address string
	Err     error
}

func (e *ProbeFailure) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Address, e.Err)
}

func (e *ProbeFailure) Unwrap() error {
	return e.Err
}

// Timeout reports whether the probe ran out of time.
func (e *ProbeFailure) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Prober is the unit of work the scanner fans out.
type Prober interface {
	Probe(ctx context.Context, address string) (bool, error)
}

// ListingProbe checks one address against the marketplace's active listings.
type ListingProbe struct {
	provider marketplace.ListingsProvider
	timeout  time.Duration
}

// New builds a ListingProbe. timeout <= 0 uses DefaultTimeout.
func New(provider marketplace.ListingsProvider, timeout time.Duration) *ListingProbe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ListingProbe{provider: provider, timeout: timeout}
}

// Probe fetches the active listings once and reports whether any of them
// belongs to address. Errors are always *ProbeFailure. There is no retry.
func (p *ListingProbe) Probe(ctx context.Context, address string) (hasListings bool, err error) {
	ctx, span := tracing.Tracer("probe").Start(ctx, "probe.probe",
		otelTrace.WithAttributes(attribute.String("collection", address)),
	)
	start := time.Now()
	defer func() {
		metrics.ProbeLatency.Observe(time.Since(start).Seconds())
		metrics.ProbeCallsTotal.WithLabelValues(resultLabel(hasListings, err)).Inc()
		span.SetAttributes(attribute.Bool("has_listings", hasListings))
		tracing.EndSpan(span, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	listings, err := p.provider.FetchActiveListings(ctx)
	if err != nil {
		return false, &ProbeFailure{Address: address, Err: err}
	}
	return containsCollection(listings, address), nil
}

func containsCollection(listings []model.ListingRecord, address string) bool {
	for _, l := range listings {
		if model.SameAddress(l.AssetContract, address) {
			return true
		}
	}
	return false
}

func resultLabel(hasListings bool, err error) string {
	var failure *ProbeFailure
	switch {
	case errors.As(err, &failure) && failure.Timeout():
		return "timeout"
	case err != nil:
		return "failed"
	case hasListings:
		return "listed"
	default:
		return "unlisted"
	}
}
