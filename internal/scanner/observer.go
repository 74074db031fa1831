package scanner

import (
	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/google/uuid"
)

// Observer receives the progress of one scan. Calls for a scan are made
// from a single goroutine, in order: zero or more OnProgress, then at most
// one OnWarning, then exactly one of OnComplete or OnError. A cancelled scan
// stops without a terminal call.
type Observer interface {
	OnProgress(p event.Progress)
	OnWarning(failed []string)
	OnComplete(results []model.CollectionRef)
	OnError(err error)
}

// StartObserver is optionally implemented by observers attached to a
// Session. OnStart runs before any other call for the scan.
type StartObserver interface {
	OnStart(scanID uuid.UUID, collections, totalBatches int)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(p event.Progress)
	Warning  func(failed []string)
	Complete func(results []model.CollectionRef)
	Error    func(err error)
}

func (o ObserverFuncs) OnProgress(p event.Progress) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

func (o ObserverFuncs) OnWarning(failed []string) {
	if o.Warning != nil {
		o.Warning(failed)
	}
}

func (o ObserverFuncs) OnComplete(results []model.CollectionRef) {
	if o.Complete != nil {
		o.Complete(results)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

// MultiObserver fans every call out to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) OnStart(scanID uuid.UUID, collections, totalBatches int) {
	for _, o := range m {
		if so, ok := o.(StartObserver); ok {
			so.OnStart(scanID, collections, totalBatches)
		}
	}
}

func (m MultiObserver) OnProgress(p event.Progress) {
	for _, o := range m {
		o.OnProgress(p)
	}
}

func (m MultiObserver) OnWarning(failed []string) {
	for _, o := range m {
		o.OnWarning(failed)
	}
}

func (m MultiObserver) OnComplete(results []model.CollectionRef) {
	for _, o := range m {
		o.OnComplete(results)
	}
}

func (m MultiObserver) OnError(err error) {
	for _, o := range m {
		o.OnError(err)
	}
}
