package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// StreamPort is a Port over a byte stream, for a worker living in another
// process. Outgoing messages are written as one JSON object per line;
// incoming messages may be line-delimited or Content-Length framed.
type StreamPort struct {
	r      io.Reader
	w      io.Writer
	writeM sync.Mutex

	in     chan Message
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewStreamPort starts reading messages from r. Malformed messages are
// logged and skipped. The port's Messages channel closes when r is
// exhausted or the port is closed.
func NewStreamPort(r io.Reader, w io.Writer, buffer int, logger *slog.Logger) *StreamPort {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &StreamPort{
		r:      r,
		w:      w,
		in:     make(chan Message, buffer),
		done:   make(chan struct{}),
		logger: logger.With("component", "stream-port"),
	}
	go p.readLoop()
	return p
}

func (p *StreamPort) readLoop() {
	defer close(p.in)
	reader := bufio.NewReader(p.r)
	for {
		raw, err := ReadStdioMessage(reader, MaxBodySize)
		if errors.Is(err, ErrMessageTooLarge) {
			p.logger.Warn("dropping oversized message", "limit", MaxBodySize)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				select {
				case <-p.done:
				default:
					p.logger.Error("stream read failed", "error", err)
				}
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			p.logger.Warn("dropping malformed message", "error", err, "bytes", len(raw))
			continue
		}
		if msg.Type == "" {
			p.logger.Warn("dropping message without type")
			continue
		}

		select {
		case p.in <- msg:
		case <-p.done:
			return
		}
	}
}

// Post writes msg as a single JSON line.
func (p *StreamPort) Post(ctx context.Context, msg Message) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	p.writeM.Lock()
	defer p.writeM.Unlock()
	_, err = p.w.Write(data)
	return err
}

// Messages returns the incoming message channel.
func (p *StreamPort) Messages() <-chan Message {
	return p.in
}

// Close stops the port and closes the underlying reader and writer when
// they implement io.Closer.
func (p *StreamPort) Close() error {
	var errs []error
	p.once.Do(func() {
		close(p.done)
		if c, ok := p.r.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		if c, ok := p.w.(io.Closer); ok && any(p.w) != any(p.r) {
			errs = append(errs, c.Close())
		}
	})
	return errors.Join(errs...)
}
