package bridge

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when posting on a closed port.
var ErrClosed = errors.New("port closed")

// DefaultBuffer is the per-direction queue length used when none is given.
const DefaultBuffer = 64

// Port is one end of an ordered, asynchronous message channel. Messages
// posted on one end arrive on the other end's Messages channel in send
// order. Messages is closed when the port closes.
type Port interface {
	Post(ctx context.Context, msg Message) error
	Messages() <-chan Message
	Close() error
}

type pipeCore struct {
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

type pipeEnd struct {
	core *pipeCore
	in   chan Message
	out  chan Message
}

// NewPipe returns two connected in-memory ports. Closing either end closes
// both.
func NewPipe(buffer int) (Port, Port) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	core := &pipeCore{done: make(chan struct{})}
	aToB := make(chan Message, buffer)
	bToA := make(chan Message, buffer)
	return &pipeEnd{core: core, in: bToA, out: aToB},
		&pipeEnd{core: core, in: aToB, out: bToA}
}

func (p *pipeEnd) Post(ctx context.Context, msg Message) error {
	p.core.mu.RLock()
	defer p.core.mu.RUnlock()
	if p.core.closed {
		return ErrClosed
	}

	select {
	case p.out <- msg:
		return nil
	case <-p.core.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Messages() <-chan Message {
	return p.in
}

func (p *pipeEnd) Close() error {
	p.core.once.Do(func() {
		// Unblock pending posts before taking the write lock.
		close(p.core.done)

		p.core.mu.Lock()
		p.core.closed = true
		close(p.in)
		close(p.out)
		p.core.mu.Unlock()
	})
	return nil
}
