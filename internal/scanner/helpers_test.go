package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func refs(n int) []model.CollectionRef {
	out := make([]model.CollectionRef, n)
	for i := range out {
		out[i] = model.CollectionRef{Address: fmt.Sprintf("addr%d", i), Name: fmt.Sprintf("Collection %d", i)}
	}
	return out
}

func addresses(in []model.CollectionRef) []string {
	out := make([]string, len(in))
	for i, r := range in {
		out[i] = r.Address
	}
	return out
}

type fakeProber struct {
	mu       sync.Mutex
	listed   map[string]bool
	failures map[string]error
	panicOn  string
	calls    map[string]int
	before   func(ctx context.Context, address string)
}

func newFakeProber(listed ...string) *fakeProber {
	p := &fakeProber{
		listed:   make(map[string]bool),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
	for _, a := range listed {
		p.listed[a] = true
	}
	return p
}

func (p *fakeProber) Probe(ctx context.Context, address string) (bool, error) {
	if p.before != nil {
		p.before(ctx, address)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[address]++
	if address == p.panicOn {
		panic("boom")
	}
	if err, ok := p.failures[address]; ok {
		return false, err
	}
	return p.listed[address], nil
}

func (p *fakeProber) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

func (p *fakeProber) callsFor(address string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[address]
}

// recorder captures observer calls in order.
type recorder struct {
	mu        sync.Mutex
	progress  []event.Progress
	warnings  [][]string
	completed [][]model.CollectionRef
	errors    []error
	sequence  []string
}

func (r *recorder) OnProgress(p event.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
	r.sequence = append(r.sequence, "progress")
}

func (r *recorder) OnWarning(failed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, failed)
	r.sequence = append(r.sequence, "warning")
}

func (r *recorder) OnComplete(results []model.CollectionRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, results)
	r.sequence = append(r.sequence, "complete")
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	r.sequence = append(r.sequence, "error")
}

func (r *recorder) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.progress))
	for i, p := range r.progress {
		out[i] = p.Status
	}
	return out
}
