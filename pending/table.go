// Package pending correlates asynchronous responses with the requests that
// are waiting for them.
package pending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by Wait when no response arrives in time.
	ErrTimeout = errors.New("request timed out")
	// ErrDuplicateID is returned by Register for an id that is already
	// pending.
	ErrDuplicateID = errors.New("request id already pending")
	// ErrUnknownID is returned by Wait for an id that was never registered.
	ErrUnknownID = errors.New("unknown request id")
)

// DefaultTimeout bounds a round trip when the table has no other setting.
const DefaultTimeout = 30 * time.Second

type outcome[T any] struct {
	value T
	err   error
}

type entry[T any] struct {
	ch       chan outcome[T]
	deadline time.Time
	done     bool
}

// Table maps request ids to one-shot result channels. Each id lives for a
// single round trip: it is removed when its waiter receives the result,
// times out or gives up.
type Table[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	timeout time.Duration
}

// New creates a table whose waits give up after timeout. A non-positive
// timeout selects DefaultTimeout.
func New[T any](timeout time.Duration) *Table[T] {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Table[T]{
		entries: make(map[string]*entry[T]),
		timeout: timeout,
	}
}

// Timeout returns the table's per-request timeout.
func (t *Table[T]) Timeout() time.Duration { return t.timeout }

// Register creates a pending entry for id. It must be called before the
// request is sent so a fast response cannot be lost.
func (t *Table[T]) Register(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	t.entries[id] = &entry[T]{
		ch:       make(chan outcome[T], 1),
		deadline: time.Now().Add(t.timeout),
	}
	return nil
}

// Resolve delivers value to the waiter for id. It reports false when id is
// not pending, which happens for late responses after a timeout.
func (t *Table[T]) Resolve(id string, value T) bool {
	return t.complete(id, outcome[T]{value: value})
}

// Reject delivers err to the waiter for id.
func (t *Table[T]) Reject(id string, err error) bool {
	return t.complete(id, outcome[T]{err: err})
}

// RejectAll delivers err to every request still waiting and reports how
// many there were.
func (t *Table[T]) RejectAll(err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.done {
			continue
		}
		e.done = true
		e.ch <- outcome[T]{err: err}
		n++
	}
	return n
}

func (t *Table[T]) complete(id string, o outcome[T]) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || e.done {
		return false
	}
	e.done = true
	e.ch <- o // buffered, never blocks
	return true
}

// Wait blocks until id is resolved or rejected, ctx is done, or the entry's
// deadline passes. The entry is removed in every case.
func (t *Table[T]) Wait(ctx context.Context, id string) (T, error) {
	var zero T

	t.mu.Lock()
	e, ok := t.entries[id]
	t.mu.Unlock()
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	defer t.remove(id, e)

	timer := time.NewTimer(time.Until(e.deadline))
	defer timer.Stop()

	select {
	case o := <-e.ch:
		return o.value, o.err
	case <-timer.C:
		if o, done := t.abandon(e); done {
			return o.value, o.err
		}
		return zero, fmt.Errorf("%w after %s: %s", ErrTimeout, t.timeout, id)
	case <-ctx.Done():
		if o, done := t.abandon(e); done {
			return o.value, o.err
		}
		return zero, ctx.Err()
	}
}

// abandon marks e finished unless a result already arrived, in which case
// that result is returned.
func (t *Table[T]) abandon(e *entry[T]) (outcome[T], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.done {
		return <-e.ch, true
	}
	e.done = true
	return outcome[T]{}, false
}

func (t *Table[T]) remove(id string, e *entry[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.entries[id]; ok && current == e {
		delete(t.entries, id)
	}
}

// Len returns the number of requests still waiting.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Pending reports whether id is waiting for a response.
func (t *Table[T]) Pending(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}
