// Package trigger delivers CollectionsChanged notifications to the scan
// pipeline, independent of the transport they arrive on.
package trigger

import (
	"context"
	"sync"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
)

// Publisher announces that the owner's collections changed.
type Publisher interface {
	Publish(ctx context.Context, ev event.CollectionsChanged) error
}

// Bus is an in-process fan-out of CollectionsChanged events. Delivery never
// blocks the publisher: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan event.CollectionsChanged
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan event.CollectionsChanged)}
}

// Subscribe returns a channel of events and a function that removes the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan event.CollectionsChanged, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan event.CollectionsChanged, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *Bus) Publish(ctx context.Context, ev event.CollectionsChanged) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Close closes every subscription. Later subscriptions are closed at once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
