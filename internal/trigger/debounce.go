package trigger

import (
	"context"
	"slices"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
)

// ChangeSet is every change accepted during one debounce window.
type ChangeSet struct {
	// Collections lists the distinct named collections, in arrival order.
	// It is empty when OwnerWide is set.
	Collections []string
	// OwnerWide is set once any change in the window named no collection.
	OwnerWide bool
	// Reason is the reason of the last change.
	Reason string
	Events int
}

func (c *ChangeSet) add(ev event.CollectionsChanged) {
	c.Events++
	c.Reason = ev.Reason
	if c.OwnerWide {
		return
	}
	if ev.Collection == "" {
		c.OwnerWide = true
		c.Collections = nil
		return
	}
	if !slices.ContainsFunc(c.Collections, func(a string) bool { return model.SameAddress(a, ev.Collection) }) {
		c.Collections = append(c.Collections, ev.Collection)
	}
}

// Debounce merges bursts on in: once in has been quiet for wait, the
// returned channel receives a ChangeSet of everything accepted since the
// last one. Events for which keep returns false never enter a window; a
// nil keep accepts all. A pending set is flushed when in closes. The output
// closes when in closes or ctx is done.
func Debounce(ctx context.Context, in <-chan event.CollectionsChanged, wait time.Duration, keep func(event.CollectionsChanged) bool) <-chan ChangeSet {
	out := make(chan ChangeSet, 1)
	go func() {
		defer close(out)

		var (
			pending ChangeSet
			armed   bool
			timer   *time.Timer
			fire    <-chan time.Time
		)
		stop := func() {
			if timer != nil {
				timer.Stop()
			}
			fire = nil
		}
		defer stop()

		emit := func() bool {
			set := pending
			pending = ChangeSet{}
			armed = false
			select {
			case out <- set:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					if armed {
						emit()
					}
					return
				}
				if keep != nil && !keep(ev) {
					continue
				}
				pending.add(ev)
				armed = true
				if wait <= 0 {
					if !emit() {
						return
					}
					continue
				}
				stop()
				timer = time.NewTimer(wait)
				fire = timer.C
			case <-fire:
				fire = nil
				if armed && !emit() {
					return
				}
			}
		}
	}()
	return out
}
