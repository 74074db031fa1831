package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/google/uuid"
)

// Session owns at most one running scan for a consumer. Starting a scan
// cancels the previous one, and anything the previous scan emits afterwards
// is dropped before it reaches the observer.
//
// Observer calls are made with the session lock held, so an observer must
// not call back into the session.
type Session struct {
	scanner *BatchScanner
	obs     Observer
	logger  *slog.Logger

	mu          sync.Mutex
	generation  uint64
	cancel      context.CancelFunc
	done        chan struct{}
	collections []model.CollectionRef
	state       model.ScanState
}

func NewSession(scanner *BatchScanner, obs Observer, logger *slog.Logger) *Session {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Session{
		scanner: scanner,
		obs:     obs,
		logger:  logger.With("component", "scan_session"),
		done:    done,
	}
}

// Start supersedes any running scan and scans collections in the background.
// It returns the new scan's ID.
func (s *Session) Start(ctx context.Context, collections []model.CollectionRef) uuid.UUID {
	scanID := uuid.New()
	input := append([]model.CollectionRef(nil), collections...)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.logger.Info("superseding running scan", "previous_scan_id", s.state.ScanID, "scan_id", scanID)
	}
	s.generation++
	gen := s.generation

	scanCtx, cancel := context.WithCancel(WithScanID(ctx, scanID))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.collections = input
	s.state = model.ScanState{
		ScanID:       scanID,
		Pending:      append([]model.CollectionRef(nil), input...),
		Resolved:     []model.CollectionRef{},
		TotalBatches: s.scanner.TotalBatches(len(input)),
		IsScanning:   len(input) > 0,
		StartedAt:    time.Now(),
	}
	if so, ok := s.obs.(StartObserver); ok {
		so.OnStart(scanID, len(input), s.state.TotalBatches)
	}
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		_, _ = s.scanner.Scan(scanCtx, input, &generationObserver{session: s, gen: gen})
	}()
	return scanID
}

// Stop cancels the running scan, if any, drops its remaining updates and
// waits for it to return. Once Stop returns the cancelled scan writes
// nothing more to the listing cache.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.state.IsScanning = false
	done := s.done
	s.mu.Unlock()
	<-done
}

// Wait blocks until the most recently started scan returns or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a snapshot of the current scan.
func (s *Session) State() model.ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// generationObserver forwards calls only while its scan is still current.
type generationObserver struct {
	session *Session
	gen     uint64
}

func (o *generationObserver) current() bool {
	return o.gen == o.session.generation
}

func (o *generationObserver) OnProgress(p event.Progress) {
	s := o.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if !o.current() {
		return
	}
	processed := min(p.BatchIndex*s.scanner.BatchSize(), len(s.collections))
	s.state.BatchIndex = p.BatchIndex
	s.state.Resolved = p.Results
	s.state.Pending = append([]model.CollectionRef(nil), s.collections[processed:]...)
	s.obs.OnProgress(p)
}

func (o *generationObserver) OnWarning(failed []string) {
	s := o.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if !o.current() {
		return
	}
	s.state.Failed = failed
	s.obs.OnWarning(failed)
}

func (o *generationObserver) OnComplete(results []model.CollectionRef) {
	s := o.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if !o.current() {
		return
	}
	s.state.Resolved = results
	s.state.Pending = nil
	s.state.IsScanning = false
	s.cancel = nil
	s.obs.OnComplete(results)
}

func (o *generationObserver) OnError(err error) {
	s := o.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if !o.current() {
		return
	}
	s.state.IsScanning = false
	s.cancel = nil
	s.obs.OnError(err)
}
