package desktop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"deskos/component"
	"deskos/config"
)

// PythonAPI is the surface handed to the embedded Python runtime. Values
// cross the boundary as JSON strings so the runtime needs no Go types.
type PythonAPI struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewPythonAPI(dispatcher Dispatcher, logger *slog.Logger) *PythonAPI {
	if logger == nil {
		logger = config.DiscardLogger()
	}
	return &PythonAPI{dispatcher: dispatcher, logger: logger.With("component", "python-api")}
}

// ExecuteAction decodes paramsJSON, runs the action and returns the
// encoded Result. An empty paramsJSON means no parameters. It always
// returns a Result document, never an error.
func (p *PythonAPI) ExecuteAction(ctx context.Context, componentID, actionID, paramsJSON string) string {
	params := map[string]any{}
	if paramsJSON != "" && paramsJSON != "null" {
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			p.logger.Warn("invalid params from python", "component_id", componentID, "action", actionID, "error", err)
			return encodeResult(component.Fail(fmt.Errorf("invalid params JSON for %s.%s: %w", componentID, actionID, err)))
		}
	}
	return encodeResult(p.dispatcher.ExecuteAction(ctx, componentID, actionID, params))
}

// ListComponents returns every registered component as a JSON array.
func (p *PythonAPI) ListComponents() string {
	components := p.dispatcher.GetComponents()
	if components == nil {
		components = []component.Component{}
	}
	return encode(components, "[]")
}

// GetComponentState returns the component's state object, or "null" when
// the component is unknown.
func (p *PythonAPI) GetComponentState(componentID string) string {
	c, ok := p.dispatcher.GetComponent(componentID)
	if !ok {
		return "null"
	}
	state := c.State
	if state == nil {
		state = map[string]any{}
	}
	return encode(state, "{}")
}

func encodeResult(res component.Result) string {
	data, err := json.Marshal(res)
	if err != nil {
		// Data that cannot be encoded is reported instead of dropped silently.
		data, _ = json.Marshal(component.Result{Success: false, Error: "result is not JSON encodable: " + err.Error()})
	}
	return string(data)
}

func encode(v any, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(data)
}
