package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"deskos/pending"
)

// ProcessMessage decodes one raw JSON-RPC message and handles it. The
// second return value is false when no response must be sent, which is
// the case for notifications. Text that is not JSON is a parse error;
// valid JSON that is not a request object is an invalid request, answered
// with the request's id whenever it can be read.
func (b *Bridge) ProcessMessage(ctx context.Context, raw []byte) (Response, bool) {
	if !json.Valid(raw) {
		return errorResponse(mcptypes.NewRequestId(nil), mcptypes.PARSE_ERROR, "Parse error: invalid JSON"), true
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return errorResponse(mcptypes.NewRequestId(nil), mcptypes.INVALID_REQUEST, "Invalid request: expected a JSON object"), true
	}

	var id *mcptypes.RequestId
	if rawID, ok := fields["id"]; ok {
		parsed := mcptypes.NewRequestId(nil)
		if err := json.Unmarshal(rawID, &parsed); err != nil {
			return errorResponse(mcptypes.NewRequestId(nil), mcptypes.INVALID_REQUEST, "Invalid request id"), true
		}
		id = &parsed
	}

	var version, method string
	if err := decodeStringField(fields, "jsonrpc", &version); err != nil {
		return errorResponse(idOrNull(id), mcptypes.INVALID_REQUEST, "Invalid request: jsonrpc must be a string"), true
	}
	if err := decodeStringField(fields, "method", &method); err != nil {
		return errorResponse(idOrNull(id), mcptypes.INVALID_REQUEST, "Invalid request: method must be a string"), true
	}

	return b.HandleRequest(ctx, Request{
		JSONRPC: version,
		ID:      id,
		Method:  method,
		Params:  fields["params"],
	})
}

// decodeStringField leaves into untouched when key is absent.
func decodeStringField(fields map[string]json.RawMessage, key string, into *string) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, into)
}

func idOrNull(id *mcptypes.RequestId) mcptypes.RequestId {
	if id == nil {
		return mcptypes.NewRequestId(nil)
	}
	return *id
}

// HandleRequest dispatches a decoded request by method. It never panics;
// internal failures become JSON-RPC errors.
func (b *Bridge) HandleRequest(ctx context.Context, req Request) (resp Response, ok bool) {
	id := idOrNull(req.ID)

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("request handler panicked", "method", req.Method, "panic", r)
			resp, ok = errorResponse(id, mcptypes.INTERNAL_ERROR, fmt.Sprintf("Internal error: %v", r)), true
		}
	}()

	if req.JSONRPC != mcptypes.JSONRPC_VERSION || req.Method == "" {
		return errorResponse(id, mcptypes.INVALID_REQUEST, "Invalid request: jsonrpc must be \"2.0\" and method is required"), true
	}

	if req.IsNotification() {
		if !strings.HasPrefix(req.Method, "notifications/") {
			b.logger.Debug("ignoring notification", "method", req.Method)
		}
		return Response{}, false
	}

	switch req.Method {
	case MethodInitialize:
		return resultResponse(id, b.initializeResult()), true
	case MethodPing:
		return resultResponse(id, struct{}{}), true
	case string(mcptypes.MethodToolsList):
		return b.handleToolsList(id, req.Params), true
	case string(mcptypes.MethodToolsCall):
		return b.handleToolsCall(ctx, id, req.Params), true
	default:
		return errorResponse(id, mcptypes.METHOD_NOT_FOUND, "Method not found: "+req.Method), true
	}
}

func (b *Bridge) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": mcptypes.LATEST_PROTOCOL_VERSION,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": true},
		},
		"serverInfo": mcptypes.Implementation{Name: ServerName, Version: b.version},
	}
}

func decodeParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, into)
}

func (b *Bridge) handleToolsList(id mcptypes.RequestId, raw json.RawMessage) Response {
	var params ListParams
	if err := decodeParams(raw, &params); err != nil {
		return errorResponse(id, mcptypes.INVALID_PARAMS, "Invalid params: "+err.Error())
	}
	if !ValidFormat(params.Format) {
		return errorResponse(id, mcptypes.INVALID_PARAMS, fmt.Sprintf("Invalid params: unsupported format %q", params.Format))
	}

	if params.Format == "" {
		params.Format = b.format
	}

	tools := b.Search(params.Query)
	if params.Format == "" || params.Format == FormatMCP {
		return resultResponse(id, mcptypes.ListToolsResult{Tools: tools})
	}

	converted, err := ConvertTools(params.Format, tools)
	if err != nil {
		return errorResponse(id, mcptypes.INTERNAL_ERROR, "Internal error: "+err.Error())
	}
	return resultResponse(id, ListResult{Format: params.Format, Tools: converted})
}

func (b *Bridge) handleToolsCall(ctx context.Context, id mcptypes.RequestId, raw json.RawMessage) Response {
	var params CallParams
	if err := decodeParams(raw, &params); err != nil {
		return errorResponse(id, mcptypes.INVALID_PARAMS, "Invalid params: "+err.Error())
	}
	if params.Name == "" {
		return errorResponse(id, mcptypes.INVALID_PARAMS, "Invalid params: tool name is required")
	}

	result, err := b.ExecuteTool(ctx, params.Name, params.Arguments)
	switch {
	case err == nil:
		return resultResponse(id, result)
	case errors.Is(err, ErrToolNotFound):
		return errorResponse(id, mcptypes.METHOD_NOT_FOUND, "Tool not found: "+params.Name)
	case errors.Is(err, pending.ErrTimeout):
		return errorResponse(id, mcptypes.INTERNAL_ERROR, "Tool execution timed out: "+params.Name)
	default:
		return errorResponse(id, mcptypes.INTERNAL_ERROR, "Tool execution failed: "+err.Error())
	}
}
