package event

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler receives events of the kind it was subscribed to.
type Handler func(Event) error

// Bus is a synchronous publish/subscribe registry. The zero value is not
// usable; construct with [NewBus]. All methods are safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Kind][]subscriber
	now    func() time.Time
}

type subscriber struct {
	id uint64
	h  Handler
}

// Option is a functional option for configuring a Bus.
type Option func(*Bus)

// WithClock overrides the time source used to stamp contained subscriber
// failures. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// NewBus returns an empty Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[Kind][]subscriber),
		now:  time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscription is the handle returned by [Bus.Subscribe].
type Subscription struct {
	bus  *Bus
	kind Kind
	id   uint64
	once sync.Once
}

// Unsubscribe removes the handler. Subsequent calls are no-ops.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.kind, s.id) })
}

// Subscribe registers h for events of kind k.
func (b *Bus) Subscribe(k Kind, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[k] = append(b.subs[k], subscriber{id: id, h: h})
	return &Subscription{bus: b, kind: k, id: id}
}

func (b *Bus) remove(k Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[k]
	for i, s := range list {
		if s.id == id {
			// Copy instead of splicing in place so snapshots held by an
			// in-flight Emit stay intact.
			next := make([]subscriber, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			b.subs[k] = next
			return
		}
	}
}

// Count returns the number of handlers subscribed to k.
func (b *Bus) Count(k Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[k])
}

// Emit delivers ev to every handler subscribed to ev.Kind, in subscription
// order, on the calling goroutine. Handler failures are reported as
// KindError events wrapping [ErrSubscriber]; failures of KindError handlers
// are only logged.
func (b *Bus) Emit(ev Event) {
	for _, s := range b.snapshot(ev.Kind) {
		err := invoke(s.h, ev)
		if err == nil {
			continue
		}
		if ev.Kind == KindError {
			slog.Error("event: error handler failed", "error", err, "original", ev.Err)
			continue
		}
		slog.Warn("event: handler failed", "kind", ev.Kind, "error", err)
		b.reportFailure(ev.Kind, err)
	}
}

// reportFailure delivers a contained handler failure to the error
// subscribers. It never recurses.
func (b *Bus) reportFailure(k Kind, err error) {
	fail := Event{
		Kind:      KindError,
		Timestamp: b.now(),
		Err:       fmt.Errorf("%w: %s handler: %w", ErrSubscriber, k, err),
	}
	for _, s := range b.snapshot(KindError) {
		if herr := invoke(s.h, fail); herr != nil {
			slog.Error("event: error handler failed", "error", herr, "original", fail.Err)
		}
	}
}

func (b *Bus) snapshot(k Kind) []subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs[k]
}

// invoke calls h and converts a panic into an error.
func invoke(h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ev)
}
