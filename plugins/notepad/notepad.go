// Package notepad is the reference plugin: a single text document exposed
// through setValue, getValue and clear actions. The text lives in the
// component's state so it is visible to every caller of the registry.
package notepad

import (
	"context"
	"fmt"

	"deskos/component"
	"deskos/eventbus"
	"deskos/plugin"
	"deskos/window"
)

const ID = "notepad"

// Registrar is the registry surface the notepad uses.
type Registrar interface {
	RegisterComponent(c component.Component) (bool, error)
	UpdateComponentState(id string, partial map[string]any) bool
	GetComponent(id string) (component.Component, bool)
}

// Handle is what Render returns for the shell to mount.
type Handle struct {
	ComponentID string
	Widget      string
}

type Notepad struct {
	registry Registrar
	bus      *eventbus.Bus
}

func New(registry Registrar, bus *eventbus.Bus) *Notepad {
	return &Notepad{registry: registry, bus: bus}
}

func (n *Notepad) ID() string { return ID }

func (n *Notepad) Manifest() plugin.Manifest {
	return plugin.Manifest{
		Name:          "Notepad",
		Version:       "1.0.0",
		Description:   "Plain text editor",
		PreferredSize: &window.Size{Width: 600, Height: 400},
	}
}

func (n *Notepad) Render() plugin.UIHandle {
	return Handle{ComponentID: ID, Widget: "textarea"}
}

// Component is the declaration registered on Init.
func Component() component.Component {
	return component.Component{
		ID:          ID,
		Type:        "editor",
		Name:        "Notepad",
		Description: "Plain text editor with a single document",
		Actions: []component.ActionSpec{
			{
				ID:          "setValue",
				Description: "Replace the document text",
				Parameters: []component.Parameter{
					{Name: "value", Type: "string", Description: "New document text", Required: true},
				},
			},
			{ID: "getValue", Description: "Read the document text"},
			{ID: "clear", Description: "Empty the document"},
		},
		State: map[string]any{"value": ""},
	}
}

// Init declares the component and installs its handlers through the bus.
// Activating again keeps the existing declaration and state.
func (n *Notepad) Init(ctx context.Context) error {
	if _, err := n.registry.RegisterComponent(Component()); err != nil {
		return fmt.Errorf("registering notepad component: %w", err)
	}

	handlers := map[string]component.Handler{
		"setValue": n.setValue,
		"getValue": n.getValue,
		"clear":    n.clear,
	}
	for action, h := range handlers {
		n.bus.Emit(eventbus.RegisterActionHandler, component.HandlerRegistration{
			ComponentID: ID,
			ActionID:    action,
			Handler:     h,
		})
	}
	return nil
}

func (n *Notepad) setValue(_ context.Context, params map[string]any) (component.Result, error) {
	value, ok := params["value"].(string)
	if !ok {
		return component.Result{}, fmt.Errorf("value must be a string, got %T", params["value"])
	}
	if !n.registry.UpdateComponentState(ID, map[string]any{"value": value}) {
		return component.Result{}, fmt.Errorf("notepad component is not registered")
	}
	return component.Result{Success: true, Message: fmt.Sprintf("document set (%d characters)", len([]rune(value)))}, nil
}

func (n *Notepad) getValue(context.Context, map[string]any) (component.Result, error) {
	c, ok := n.registry.GetComponent(ID)
	if !ok {
		return component.Result{}, fmt.Errorf("notepad component is not registered")
	}
	value, _ := c.State["value"].(string)
	return component.OK(value), nil
}

func (n *Notepad) clear(context.Context, map[string]any) (component.Result, error) {
	if !n.registry.UpdateComponentState(ID, map[string]any{"value": ""}) {
		return component.Result{}, fmt.Errorf("notepad component is not registered")
	}
	return component.Result{Success: true, Message: "document cleared"}, nil
}
