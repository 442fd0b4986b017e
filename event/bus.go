package event

import (
	"log/slog"
	"sync"

	"github.com/xraph/iap/id"
)

// Handler receives published events.
type Handler func(Event)

// Handlers adapts typed callbacks into a Handler. Nil fields are skipped.
type Handlers struct {
	Succeeded func(PurchaseSucceeded)
	Failed    func(PurchaseFailed)
}

// Handle dispatches e to the matching callback.
func (h Handlers) Handle(e Event) {
	switch ev := e.(type) {
	case PurchaseSucceeded:
		if h.Succeeded != nil {
			h.Succeeded(ev)
		}
	case PurchaseFailed:
		if h.Failed != nil {
			h.Failed(ev)
		}
	}
}

type subscription struct {
	id id.ID
	fn Handler
}

// Bus is an in-process publish/subscribe hub.
//
// The subscriber list is copy-on-write: Publish takes the current slice and
// iterates it without holding the lock, so handlers may subscribe or
// unsubscribe (including themselves) while being called. Changes apply
// from the next Publish.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// NewBus returns an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn and returns a handle for Unsubscribe.
func (b *Bus) Subscribe(fn Handler) id.ID {
	sid := id.NewSubscriptionID()

	b.mu.Lock()
	defer b.mu.Unlock()

	next := make([]subscription, len(b.subs), len(b.subs)+1)
	copy(next, b.subs)
	b.subs = append(next, subscription{id: sid, fn: fn})
	return sid
}

// Unsubscribe removes the handler registered under sid. It reports whether
// a handler was removed.
func (b *Bus) Unsubscribe(sid id.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id.String() != sid.String() {
			continue
		}
		next := make([]subscription, 0, len(b.subs)-1)
		next = append(next, b.subs[:i]...)
		b.subs = append(next, b.subs[i+1:]...)
		return true
	}
	return false
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers e to every current subscriber on the calling goroutine.
// A panicking handler is logged and does not stop delivery to the others.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	snapshot := b.subs
	b.mu.RUnlock()

	for _, s := range snapshot {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"subscription", s.id.String(),
				"event", string(e.Kind()),
				"panic", r,
			)
		}
	}()
	s.fn(e)
}
