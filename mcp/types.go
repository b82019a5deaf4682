package mcp

import (
	"encoding/json"
	"errors"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

var (
	// ErrToolExists is returned when a tool name is registered twice.
	ErrToolExists = errors.New("tool already registered")
	// ErrToolNotFound is returned for an unknown tool name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidTool is returned for a tool without component or action id.
	ErrInvalidTool = errors.New("invalid tool")
	// ErrRemote wraps a failure reported by the main context.
	ErrRemote = errors.New("main context error")
)

// JSON-RPC methods served by the bridge.
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
)

// Request is an incoming JSON-RPC 2.0 message. ID is nil for
// notifications.
type Request struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      *mcptypes.RequestId `json:"id,omitempty"`
	Method  string              `json:"method"`
	Params  json.RawMessage     `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r Request) IsNotification() bool {
	return r.ID == nil
}

// Response is an outgoing JSON-RPC 2.0 message. The zero ID marshals as
// null.
type Response struct {
	JSONRPC string                        `json:"jsonrpc"`
	ID      mcptypes.RequestId            `json:"id"`
	Result  any                           `json:"result,omitempty"`
	Error   *mcptypes.JSONRPCErrorDetails `json:"error,omitempty"`
}

func resultResponse(id mcptypes.RequestId, result any) Response {
	return Response{JSONRPC: mcptypes.JSONRPC_VERSION, ID: id, Result: result}
}

func errorResponse(id mcptypes.RequestId, code int, message string) Response {
	return Response{
		JSONRPC: mcptypes.JSONRPC_VERSION,
		ID:      id,
		Error:   &mcptypes.JSONRPCErrorDetails{Code: code, Message: message},
	}
}

// ListParams are the params of tools/list.
type ListParams struct {
	Format string `json:"format,omitempty"`
	Query  string `json:"query,omitempty"`
}

// CallParams are the params of tools/call.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ListResult is the tools/list result for non-MCP formats.
type ListResult struct {
	Format string `json:"format"`
	Tools  any    `json:"tools"`
}

// AutoRegisterResult summarizes one AutoRegisterFromComponents call.
type AutoRegisterResult struct {
	Registered int      `json:"registered"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// toolEntry is one registered tool and the action it maps to.
type toolEntry struct {
	def         mcptypes.Tool
	componentID string
	actionID    string
}
