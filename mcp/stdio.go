package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"deskos/bridge"
)

// ServeStdio reads JSON-RPC messages from r and writes one response line
// per request to w. Requests are handled concurrently so a slow tool call
// does not block tools/list; responses carry their request id and may be
// written in any order. It returns when r is exhausted or ctx is done.
func (b *Bridge) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	var writeMu sync.Mutex
	var wg sync.WaitGroup
	defer wg.Wait()

	write := func(resp Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			b.logger.Error("encoding response", "error", err)
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := w.Write(append(data, '\n')); err != nil {
			b.logger.Error("writing response", "error", err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := bridge.ReadStdioMessage(reader, bridge.MaxBodySize)
		if errors.Is(err, bridge.ErrMessageTooLarge) {
			write(errorResponse(mcptypes.NewRequestId(nil), mcptypes.INVALID_REQUEST, "Invalid request: message too large"))
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if resp, ok := b.ProcessMessage(ctx, raw); ok {
				write(resp)
			}
		}()
	}
}
