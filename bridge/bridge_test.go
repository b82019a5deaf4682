package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskos/component"
)

const testMaxBodySize = 1024 * 1024

func frameMessage(payload string) string {
	return fmt.Sprintf("Content-Length: %d\r\nContent-Type: application/json\r\n\r\n%s", len(payload), payload)
}

func TestReadStdioMessage(t *testing.T) {
	first := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`
	second := `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "line delimited",
			input: first + "\n" + second + "\n",
			want:  []string{first, second},
		},
		{
			name:  "content length framed",
			input: frameMessage(first) + frameMessage(second),
			want:  []string{first, second},
		},
		{
			name:  "mixed with blank lines",
			input: "\n\n" + first + "\n" + frameMessage(second),
			want:  []string{first, second},
		},
		{
			name:  "last line without newline",
			input: first + "\n" + second,
			want:  []string{first, second},
		},
		{
			name:  "malformed length is returned as a line",
			input: "Content-Length: many\n" + first + "\n",
			want:  []string{"Content-Length: many", first},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			for _, want := range tt.want {
				msg, err := ReadStdioMessage(r, testMaxBodySize)
				require.NoError(t, err)
				assert.Equal(t, want, string(msg))
			}
			_, err := ReadStdioMessage(r, testMaxBodySize)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestReadStdioMessageTooLarge(t *testing.T) {
	const limit = 64
	small := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	big := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"text":"` + strings.Repeat("x", 200) + `"}}`

	tests := []struct {
		name  string
		input string
	}{
		{name: "long line", input: big + "\n" + small + "\n"},
		{name: "long framed body", input: frameMessage(big) + frameMessage(small)},
		{name: "long plain text line", input: "Content-Type: " + strings.Repeat("y", 100) + "\n" + small + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A buffer smaller than the limit makes lines arrive in pieces.
			r := bufio.NewReaderSize(strings.NewReader(tt.input), 16)

			_, err := ReadStdioMessage(r, limit)
			require.ErrorIs(t, err, ErrMessageTooLarge)

			msg, err := ReadStdioMessage(r, limit)
			require.NoError(t, err)
			assert.Equal(t, small, string(msg))

			_, err = ReadStdioMessage(r, limit)
			assert.ErrorIs(t, err, io.EOF)
		})
	}

	t.Run("long last line", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader(big))
		_, err := ReadStdioMessage(r, limit)
		require.ErrorIs(t, err, ErrMessageTooLarge)
		_, err = ReadStdioMessage(r, limit)
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestPipeDeliversInOrder(t *testing.T) {
	main, worker := NewPipe(4)
	defer main.Close()
	ctx := context.Background()

	go func() {
		for i := 0; i < 10; i++ {
			_ = worker.Post(ctx, ToolRequest(fmt.Sprintf("r%d", i), "notepad", "getValue", nil))
		}
	}()

	for i := 0; i < 10; i++ {
		select {
		case msg := <-main.Messages():
			assert.Equal(t, fmt.Sprintf("r%d", i), msg.RequestID)
			assert.Equal(t, TypeToolRequest, msg.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestPipeClose(t *testing.T) {
	main, worker := NewPipe(1)
	ctx := context.Background()

	require.NoError(t, worker.Post(ctx, ComponentUnregistered("a")))

	blocked := make(chan error, 1)
	go func() { blocked <- worker.Post(ctx, ComponentUnregistered("b")) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, main.Close())
	require.NoError(t, worker.Close())

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked post was not released by close")
	}

	assert.ErrorIs(t, worker.Post(ctx, ComponentUnregistered("c")), ErrClosed)

	// Buffered messages drain, then the channel reports closed.
	drained := 0
	for range main.Messages() {
		drained++
	}
	assert.LessOrEqual(t, drained, 1)
}

func TestPipePostHonorsContext(t *testing.T) {
	main, worker := NewPipe(1)
	defer main.Close()

	require.NoError(t, worker.Post(context.Background(), ComponentUnregistered("fill")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := worker.Post(ctx, ComponentUnregistered("overflow"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamPortRoundTrip(t *testing.T) {
	mainR, workerW := io.Pipe()
	workerR, mainW := io.Pipe()

	mainPort := NewStreamPort(mainR, mainW, 4, nil)
	workerPort := NewStreamPort(workerR, workerW, 4, nil)
	defer mainPort.Close()
	defer workerPort.Close()

	ctx := context.Background()
	go func() {
		_ = workerPort.Post(ctx, ToolRequest("req-1", "notepad", "setValue", map[string]any{"value": "hi"}))
	}()

	var req Message
	select {
	case req = <-mainPort.Messages():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for request")
	}
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, "hi", req.Params["value"])

	res := component.OK("stored")
	go func() {
		_ = mainPort.Post(ctx, ToolResponse(req.RequestID, &res, ""))
	}()

	select {
	case resp := <-workerPort.Messages():
		assert.Equal(t, TypeToolResponse, resp.Type)
		require.NotNil(t, resp.Result)
		assert.True(t, resp.Result.Success)
		assert.Equal(t, "stored", resp.Result.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestStreamPortSkipsMalformed(t *testing.T) {
	valid, err := json.Marshal(ComponentUnregistered("calc"))
	require.NoError(t, err)
	input := "not json\n" + `{"requestId":"x"}` + "\n" + frameMessage(string(valid))

	port := NewStreamPort(strings.NewReader(input), io.Discard, 4, nil)
	defer port.Close()

	var got []Message
	for msg := range port.Messages() {
		got = append(got, msg)
	}
	require.Len(t, got, 1)
	assert.Equal(t, TypeComponentUnregistered, got[0].Type)
	assert.Equal(t, "calc", got[0].ComponentID)
}

func TestStreamPortPostAfterClose(t *testing.T) {
	r, w := io.Pipe()
	port := NewStreamPort(r, w, 1, nil)
	require.NoError(t, port.Close())
	assert.ErrorIs(t, port.Post(context.Background(), ComponentUnregistered("x")), ErrClosed)
}
