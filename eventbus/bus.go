// Package eventbus implements the in-process publish/subscribe channel that
// decouples the desktop registries from their observers.
//
// Listeners run synchronously on the emitting goroutine, in subscription
// order. A listener that panics is recovered and logged so the remaining
// listeners still run. Listeners that need to do slow or blocking work must
// start their own goroutine.
package eventbus

import (
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"
)

// Listener receives the arguments passed to Emit.
type Listener func(args ...any)

type subscription struct {
	id uint64
	fn Listener
}

// Bus is a publish/subscribe registry keyed by free-form event names.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]subscription
	known     map[string]struct{}
	nextID    uint64
	logger    *slog.Logger
}

// New creates an empty bus. A nil logger discards log output.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		listeners: make(map[string][]subscription),
		known:     make(map[string]struct{}),
		logger:    logger,
	}
}

// Subscribe registers fn for the named event and returns a function that
// removes exactly this subscription. Subscribing the same function twice
// yields two independent subscriptions.
func (b *Bus) Subscribe(name string, fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], subscription{id: id, fn: fn})
	b.known[name] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[name]
	for i, sub := range subs {
		if sub.id == id {
			// Build a new slice so snapshots held by in-flight emits stay intact.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.listeners, name)
			} else {
				b.listeners[name] = next
			}
			return
		}
	}
}

// Emit calls every listener currently subscribed to name. Emitting an event
// nobody listens to is fine and still records the name as known.
func (b *Bus) Emit(name string, args ...any) {
	b.mu.Lock()
	b.known[name] = struct{}{}
	snapshot := slices.Clone(b.listeners[name])
	b.mu.Unlock()

	for _, sub := range snapshot {
		b.invoke(name, sub, args)
	}
}

func (b *Bus) invoke(name string, sub subscription, args []any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked", "event", name, "subscription", sub.id, "panic", r)
		}
	}()
	sub.fn(args...)
}

// RegisterEvent records event names as known without subscribing to them,
// so discovery tooling can list them before anything is emitted.
func (b *Bus) RegisterEvent(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		b.known[name] = struct{}{}
	}
}

// KnownEvents returns every event name that was ever subscribed, emitted or
// registered, sorted.
func (b *Bus) KnownEvents() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.known))
	for name := range b.known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SearchEvents fuzzy-matches query against the known event names, best
// match first. An empty query returns all known events.
func (b *Bus) SearchEvents(query string) []string {
	names := b.KnownEvents()
	if query == "" {
		return names
	}

	matches := fuzzy.Find(query, names)
	result := make([]string, 0, len(matches))
	for _, m := range matches {
		result = append(result, m.Str)
	}
	return result
}

// ListenerCount returns the number of live subscriptions for name.
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Clear drops every listener and all known-event bookkeeping.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[string][]subscription)
	b.known = make(map[string]struct{})
}
