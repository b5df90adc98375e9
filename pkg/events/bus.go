package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler receives events. Handlers run on the publisher's goroutine.
type Handler func(Event)

type subscriber struct {
	id   uint64
	kind Kind // empty for SubscribeAll
	fn   Handler
}

// Bus is a typed publish/subscribe hub with an explicit lifecycle.
//
// Publish iterates over the listener set as it was when Publish was called:
// listeners added during a dispatch first see the next event, and listeners
// removed during a dispatch still receive the event in flight. No listener is
// skipped or invoked twice for a single Publish.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscriber // copy-on-write
	nextID uint64
	closed bool

	listeners map[uint64]func()

	published atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64

	logger *slog.Logger
}

// dropLogEvery throttles the Warn line for dropped listener events.
const dropLogEvery = 100

// NewBus creates a bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: make(map[uint64]func()),
		logger:    logger.With("component", "events.bus"),
	}
}

// Subscription is returned by Subscribe and removes the handler when cancelled.
type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

// Unsubscribe removes the handler. Safe to call more than once and from
// inside a handler.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.bus.remove(s.id) })
}

// Subscribe registers fn for events of the given kind.
func (b *Bus) Subscribe(kind Kind, fn Handler) *Subscription {
	return b.add(kind, fn)
}

// SubscribeAll registers fn for every event.
func (b *Bus) SubscribeAll(fn Handler) *Subscription {
	return b.add("", fn)
}

func (b *Bus) add(kind Kind, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{bus: b, id: b.nextID}
	if b.closed {
		return sub
	}

	next := make([]*subscriber, len(b.subs), len(b.subs)+1)
	copy(next, b.subs)
	b.subs = append(next, &subscriber{id: sub.id, kind: kind, fn: fn})
	return sub
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.id != id {
			next = append(next, s)
		}
	}
	b.subs = next
}

// Publish delivers e synchronously to every matching handler.
// Publishing on a closed bus is a no-op.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Debug("publish on closed bus", "kind", e.Kind())
		return
	}
	snapshot := b.subs
	b.mu.Unlock()

	b.published.Add(1)
	kind := e.Kind()
	for _, s := range snapshot {
		if s.kind != "" && s.kind != kind {
			continue
		}
		b.invoke(s, e)
	}
}

func (b *Bus) invoke(s *subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.logger.Error("event handler panicked", "kind", e.Kind(), "panic", r)
		}
	}()
	s.fn(e)
}

// Listen returns a buffered channel that receives every event, and a cancel
// function that unsubscribes and closes the channel. Events are dropped
// when the buffer is full so a slow reader never blocks publishers.
func (b *Bus) Listen(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	var (
		mu     sync.Mutex
		closed bool
	)
	sub := b.SubscribeAll(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
			if b.dropped.Add(1)%dropLogEvery == 1 {
				b.logger.Warn("listener buffer full, dropping events", "kind", e.Kind(), "dropped", b.dropped.Load())
			} else {
				b.logger.Debug("listener buffer full, dropping event", "kind", e.Kind())
			}
		}
	})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			sub.Unsubscribe()
			b.mu.Lock()
			delete(b.listeners, sub.id)
			b.mu.Unlock()

			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return ch, cancel
	}
	b.listeners[sub.id] = cancel
	b.mu.Unlock()

	return ch, cancel
}

// Close drops every subscriber and closes Listen channels.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.subs = nil
	cancels := make([]func(), 0, len(b.listeners))
	for _, c := range b.listeners {
		cancels = append(cancels, c)
	}
	b.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Stats contains bus counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Panics      uint64 `json:"panics"`
}

// GetStats returns bus counters.
func (b *Bus) GetStats() Stats {
	return Stats{
		Subscribers: b.Len(),
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
		Panics:      b.panics.Load(),
	}
}
