// Package bridge carries messages between the main desktop context and the
// MCP worker context. The two sides share nothing but a Port.
package bridge

import (
	"deskos/component"
)

// Message types exchanged over a Port.
const (
	TypeToolRequest           = "mcp-tool-request"
	TypeToolResponse          = "mcp-tool-response"
	TypeComponentsRegistered  = "mcp-components-registered"
	TypeComponentUnregistered = "mcp-component-unregistered"
)

// Message is the envelope posted across contexts.
type Message struct {
	Type        string                `json:"type"`
	RequestID   string                `json:"requestId,omitempty"`
	ComponentID string                `json:"componentId,omitempty"`
	Action      string                `json:"action,omitempty"`
	Params      map[string]any        `json:"params,omitempty"`
	Result      *component.Result     `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	Components  []component.Component `json:"components,omitempty"`
}

// ToolRequest builds the message asking the main context to run an action.
func ToolRequest(requestID, componentID, action string, params map[string]any) Message {
	return Message{
		Type:        TypeToolRequest,
		RequestID:   requestID,
		ComponentID: componentID,
		Action:      action,
		Params:      params,
	}
}

// ToolResponse builds the reply to a tool request. errMsg is set when the
// main context could not produce a result at all.
func ToolResponse(requestID string, result *component.Result, errMsg string) Message {
	return Message{
		Type:      TypeToolResponse,
		RequestID: requestID,
		Result:    result,
		Error:     errMsg,
	}
}

// ComponentsRegistered announces components to the worker.
func ComponentsRegistered(components ...component.Component) Message {
	return Message{Type: TypeComponentsRegistered, Components: components}
}

// ComponentUnregistered tells the worker a component went away.
func ComponentUnregistered(componentID string) Message {
	return Message{Type: TypeComponentUnregistered, ComponentID: componentID}
}
