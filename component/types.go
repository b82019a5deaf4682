// Package component holds the API component registry and the action
// dispatcher. A component's declared shape and its runtime handlers are
// registered independently: either may exist without the other.
package component

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// SourceSuffix marks a component id as an alias of its unsuffixed form when
// resolving handlers.
const SourceSuffix = "@src"

var (
	// ErrInvalidComponent is returned when a component fails validation.
	ErrInvalidComponent = errors.New("invalid component")
	// ErrDuplicate is returned by RegisterComponent under policy.RejectWithError.
	ErrDuplicate = errors.New("component already registered")
)

// Parameter declares one named argument of an action.
type Parameter struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Enum        []string `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items       string   `json:"items,omitempty" yaml:"items,omitempty"` // element type for arrays
}

// ActionSpec declares an action for discovery and tool listing.
type ActionSpec struct {
	ID          string      `json:"id" yaml:"id"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Component is an externally callable capability surface.
type Component struct {
	ID          string         `json:"id" yaml:"id"`
	Type        string         `json:"type" yaml:"type"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Actions     []ActionSpec   `json:"actions" yaml:"actions"`
	State       map[string]any `json:"state,omitempty" yaml:"state,omitempty"`
}

// Action returns the declared action with the given id.
func (c Component) Action(id string) (ActionSpec, bool) {
	for _, a := range c.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return ActionSpec{}, false
}

// Clone returns a copy that shares no mutable state with c.
func (c Component) Clone() Component {
	out := c
	out.Actions = make([]ActionSpec, len(c.Actions))
	for i, a := range c.Actions {
		a.Parameters = slices.Clone(a.Parameters)
		out.Actions[i] = a
	}
	out.State = maps.Clone(c.State)
	return out
}

var validParamTypes = map[string]bool{
	"":        true,
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"object":  true,
	"array":   true,
}

// Validate checks the component's shape.
func (c Component) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidComponent)
	}

	seen := make(map[string]bool, len(c.Actions))
	for _, a := range c.Actions {
		if a.ID == "" {
			return fmt.Errorf("%w: %s has an action without id", ErrInvalidComponent, c.ID)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: %s declares action %q twice", ErrInvalidComponent, c.ID, a.ID)
		}
		seen[a.ID] = true

		params := make(map[string]bool, len(a.Parameters))
		for _, p := range a.Parameters {
			if p.Name == "" {
				return fmt.Errorf("%w: %s.%s has a parameter without name", ErrInvalidComponent, c.ID, a.ID)
			}
			if params[p.Name] {
				return fmt.Errorf("%w: %s.%s declares parameter %q twice", ErrInvalidComponent, c.ID, a.ID, p.Name)
			}
			params[p.Name] = true
			if !validParamTypes[p.Type] {
				return fmt.Errorf("%w: %s.%s parameter %q has unknown type %q", ErrInvalidComponent, c.ID, a.ID, p.Name, p.Type)
			}
		}
	}
	return nil
}

// Result is the uniform outcome of an action.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	// Cause keeps the structured failure for in-process callers. It is not
	// serialized.
	Cause error `json:"-"`
}

// OK builds a successful result.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// Fail builds a failed result from an error.
func Fail(err error) Result {
	return Result{Success: false, Error: err.Error(), Cause: err}
}

// Handler implements one action of one component. Returning an error is
// equivalent to returning a failed Result.
type Handler func(ctx context.Context, params map[string]any) (Result, error)

// HandlerRegistration is the payload of the api:registerActionHandler event.
type HandlerRegistration struct {
	ComponentID string
	ActionID    string
	Handler     Handler
}

// Error codes carried by ActionError.
const (
	CodeNoHandler     = "no_handler"
	CodeHandlerFailed = "handler_failed"
	CodeHandlerPanic  = "handler_panic"
	CodeCanceled      = "canceled"
)

// ActionError is the structured failure produced at the dispatcher
// boundary. Result.Error carries only Message.
type ActionError struct {
	Code        string
	ComponentID string
	ActionID    string
	Message     string
	Cause       error
}

func (e *ActionError) Error() string { return e.Message }

func (e *ActionError) Unwrap() error { return e.Cause }

// ActionEvent is the payload of the api:action:* events.
type ActionEvent struct {
	ComponentID string
	ActionID    string
	Params      map[string]any
	Result      *Result
	Err         error
}

// StateChange is the payload of api:component:stateChanged.
type StateChange struct {
	ComponentID string
	State       map[string]any
}

// Capability says which halves of a component are present.
type Capability int

const (
	None Capability = iota
	DeclareOnly
	HandlerOnly
	Both
)

func (c Capability) String() string {
	switch c {
	case DeclareOnly:
		return "declare-only"
	case HandlerOnly:
		return "handler-only"
	case Both:
		return "both"
	default:
		return "none"
	}
}
