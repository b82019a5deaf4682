package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"deskos/bridge"
	"deskos/component"
)

// ExecuteTool runs a tool in the main context and waits for its result.
// The call is correlated by a fresh request id, so concurrent calls may
// complete in any order. A failed action comes back as a CallToolResult
// with IsError set; a timeout, a cancelled ctx or a transport failure is
// returned as an error. The main context is not told when a call times
// out; its late reply is logged and dropped by Run.
func (b *Bridge) ExecuteTool(ctx context.Context, name string, args map[string]any) (*mcptypes.CallToolResult, error) {
	entry, ok := b.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if b.port == nil {
		return nil, fmt.Errorf("%w: no main context attached", ErrRemote)
	}
	if args == nil {
		args = map[string]any{}
	}

	requestID := uuid.NewString()
	if err := b.calls.Register(requestID); err != nil {
		return nil, err
	}

	msg := bridge.ToolRequest(requestID, entry.componentID, entry.actionID, args)
	if err := b.port.Post(ctx, msg); err != nil {
		b.calls.Reject(requestID, err)
		_, _ = b.calls.Wait(ctx, requestID)
		return nil, fmt.Errorf("posting tool request: %w", err)
	}

	b.logger.Debug("tool call sent", "tool", entry.def.Name, "request_id", requestID)

	resp, err := b.calls.Wait(ctx, requestID)
	if err != nil {
		b.logger.Warn("tool call did not complete", "tool", entry.def.Name, "request_id", requestID, "error", err)
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("%w: empty response for %s", ErrRemote, requestID)
	}
	return toolResult(*resp.Result), nil
}

// toolResult wraps an action result as MCP content. String data is passed
// through as text; anything else is JSON encoded.
func toolResult(res component.Result) *mcptypes.CallToolResult {
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "action failed"
		}
		return mcptypes.NewToolResultError(msg)
	}

	if s, ok := res.Data.(string); ok && res.Message == "" {
		return mcptypes.NewToolResultText(s)
	}

	data, err := json.Marshal(res)
	if err != nil {
		return mcptypes.NewToolResultError("encoding result: " + err.Error())
	}
	return mcptypes.NewToolResultText(string(data))
}

// Run consumes messages from the main context until ctx is done or the
// port closes. Tool responses are matched to waiting calls by request id;
// component announcements keep the tool registry in sync. Calls still
// waiting when Run returns fail at once since no reply can reach them.
func (b *Bridge) Run(ctx context.Context) error {
	if b.port == nil {
		return fmt.Errorf("%w: no main context attached", ErrRemote)
	}
	for {
		select {
		case <-ctx.Done():
			b.rejectPending(ctx.Err())
			return ctx.Err()
		case msg, ok := <-b.port.Messages():
			if !ok {
				b.rejectPending(bridge.ErrClosed)
				return nil
			}
			b.handleMessage(msg)
		}
	}
}

func (b *Bridge) rejectPending(err error) {
	if n := b.calls.RejectAll(err); n > 0 {
		b.logger.Warn("failing tool calls left without a reply", "count", n, "error", err)
	}
}

func (b *Bridge) handleMessage(msg bridge.Message) {
	switch msg.Type {
	case bridge.TypeToolResponse:
		if !b.calls.Resolve(msg.RequestID, msg) {
			b.logger.Warn("dropping orphaned tool response", "request_id", msg.RequestID)
		}
	case bridge.TypeComponentsRegistered:
		b.AutoRegisterFromComponents(msg.Components)
	case bridge.TypeComponentUnregistered:
		b.UnregisterComponentTools(msg.ComponentID)
	default:
		b.logger.Warn("unexpected message from main context", "type", msg.Type)
	}
}
