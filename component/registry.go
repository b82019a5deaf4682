package component

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"deskos/eventbus"
	"deskos/policy"
)

type handlerKey struct {
	component string
	action    string
}

// Registry stores components and action handlers and dispatches actions.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*Component
	order      []string
	handlers   map[handlerKey]Handler

	componentPolicy policy.Duplicate
	handlerPolicy   policy.Duplicate

	bus         *eventbus.Bus
	logger      *slog.Logger
	unsubscribe func()
}

// Option configures a Registry.
type Option func(*Registry)

// WithComponentPolicy overrides the default IgnoreFirstWins policy for
// component registration.
func WithComponentPolicy(p policy.Duplicate) Option {
	return func(r *Registry) { r.componentPolicy = p }
}

// WithHandlerPolicy overrides the default OverwriteWithWarning policy for
// handler binding.
func WithHandlerPolicy(p policy.Duplicate) Option {
	return func(r *Registry) { r.handlerPolicy = p }
}

// NewRegistry creates a registry and starts listening for
// api:registerActionHandler on bus.
func NewRegistry(bus *eventbus.Bus, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if bus == nil {
		bus = eventbus.New(logger)
	}
	r := &Registry{
		components:      make(map[string]*Component),
		handlers:        make(map[handlerKey]Handler),
		componentPolicy: policy.IgnoreFirstWins,
		handlerPolicy:   policy.OverwriteWithWarning,
		bus:             bus,
		logger:          logger.With("component", "api-registry"),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.unsubscribe = bus.Subscribe(eventbus.RegisterActionHandler, r.onRegisterHandlerEvent)
	return r
}

// Close stops listening on the bus.
func (r *Registry) Close() {
	r.unsubscribe()
}

func (r *Registry) onRegisterHandlerEvent(args ...any) {
	if len(args) == 0 {
		r.logger.Warn("handler registration event without payload")
		return
	}
	var reg HandlerRegistration
	switch v := args[0].(type) {
	case HandlerRegistration:
		reg = v
	case *HandlerRegistration:
		if v == nil {
			r.logger.Warn("nil handler registration")
			return
		}
		reg = *v
	default:
		r.logger.Warn("unexpected handler registration payload", "type", fmt.Sprintf("%T", args[0]))
		return
	}
	if err := r.RegisterActionHandler(reg.ComponentID, reg.ActionID, reg.Handler); err != nil {
		r.logger.Warn("handler registration through bus failed", "error", err)
	}
}

// RegisterComponent validates c and adds it. With the default policy an id
// that is already present is left untouched and false is returned; the
// registered event fires only when the component is stored.
func (r *Registry) RegisterComponent(c Component) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	stored := c.Clone()
	if stored.State == nil {
		stored.State = make(map[string]any)
	}

	r.mu.Lock()
	if _, exists := r.components[c.ID]; exists {
		switch r.componentPolicy {
		case policy.IgnoreFirstWins:
			r.mu.Unlock()
			r.logger.Debug("component already registered, keeping first", "component_id", c.ID)
			return false, nil
		case policy.RejectWithError:
			r.mu.Unlock()
			return false, fmt.Errorf("%w: %s", ErrDuplicate, c.ID)
		default:
			r.logger.Warn("component already registered, overwriting", "component_id", c.ID)
		}
	} else {
		r.order = append(r.order, c.ID)
	}
	r.components[c.ID] = &stored
	event := stored.Clone()
	r.mu.Unlock()

	r.logger.Info("component registered", "component_id", c.ID, "actions", len(c.Actions))
	r.bus.Emit(eventbus.ComponentRegistered, event)
	return true, nil
}

// RegisterRemoteComponent registers c under "remoteID.c.ID" and returns the
// namespaced id.
func (r *Registry) RegisterRemoteComponent(remoteID string, c Component) (string, bool, error) {
	if remoteID == "" {
		return "", false, fmt.Errorf("%w: empty remote id", ErrInvalidComponent)
	}
	if c.ID == "" {
		return "", false, fmt.Errorf("%w: empty id", ErrInvalidComponent)
	}
	c.ID = remoteID + "." + c.ID
	inserted, err := r.RegisterComponent(c)
	return c.ID, inserted, err
}

// RedeclareComponent replaces the declaration of a registered component
// while keeping its handlers and state. Observers see the component
// unregistered and registered again so derived views such as tool lists
// are rebuilt. It returns false for an unknown id.
func (r *Registry) RedeclareComponent(c Component) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	stored := c.Clone()

	r.mu.Lock()
	current, ok := r.components[c.ID]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	state := maps.Clone(c.State)
	if state == nil {
		state = make(map[string]any, len(current.State))
	}
	maps.Copy(state, current.State)
	stored.State = state
	r.components[c.ID] = &stored
	event := stored.Clone()
	r.mu.Unlock()

	r.logger.Info("component redeclared", "component_id", c.ID, "actions", len(c.Actions))
	r.bus.Emit(eventbus.ComponentUnregistered, c.ID)
	r.bus.Emit(eventbus.ComponentRegistered, event)
	return true, nil
}

// UnregisterComponent removes the component and every handler bound to it,
// including handlers bound under its @src alias.
func (r *Registry) UnregisterComponent(id string) bool {
	r.mu.Lock()
	_, existed := r.components[id]
	delete(r.components, id)
	if existed {
		for i, oid := range r.order {
			if oid == id {
				r.order = append(r.order[:i:i], r.order[i+1:]...)
				break
			}
		}
	}
	removed := 0
	for k := range r.handlers {
		if k.component == id || k.component == id+SourceSuffix {
			delete(r.handlers, k)
			removed++
		}
	}
	r.mu.Unlock()

	if !existed && removed == 0 {
		r.logger.Warn("cannot unregister unknown component", "component_id", id)
		return false
	}

	r.logger.Info("component unregistered", "component_id", id, "handlers_removed", removed)
	r.bus.Emit(eventbus.ComponentUnregistered, id)
	return true
}

// UpdateComponentState shallow-merges partial into the component's state.
func (r *Registry) UpdateComponentState(id string, partial map[string]any) bool {
	r.mu.Lock()
	c, ok := r.components[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("state update for unknown component", "component_id", id)
		return false
	}
	if c.State == nil {
		c.State = make(map[string]any, len(partial))
	}
	maps.Copy(c.State, partial)
	state := maps.Clone(c.State)
	r.mu.Unlock()

	r.bus.Emit(eventbus.ComponentStateChanged, StateChange{ComponentID: id, State: state})
	return true
}

// RegisterActionHandler binds h to (componentID, actionID). With the default
// policy a later binding replaces an earlier one with a warning.
func (r *Registry) RegisterActionHandler(componentID, actionID string, h Handler) error {
	if componentID == "" || actionID == "" {
		return fmt.Errorf("%w: handler needs component and action ids", ErrInvalidComponent)
	}
	if h == nil {
		return fmt.Errorf("%w: nil handler for %s.%s", ErrInvalidComponent, componentID, actionID)
	}
	key := handlerKey{component: componentID, action: actionID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		switch r.handlerPolicy {
		case policy.IgnoreFirstWins:
			r.logger.Debug("handler already bound, keeping first", "component_id", componentID, "action", actionID)
			return nil
		case policy.RejectWithError:
			return fmt.Errorf("%w: handler %s.%s", ErrDuplicate, componentID, actionID)
		default:
			r.logger.Warn("replacing action handler", "component_id", componentID, "action", actionID)
		}
	}
	r.handlers[key] = h
	r.logger.Debug("action handler bound", "component_id", componentID, "action", actionID)
	return nil
}

// UnregisterActionHandler removes a single binding.
func (r *Registry) UnregisterActionHandler(componentID, actionID string) bool {
	key := handlerKey{component: componentID, action: actionID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[key]; !ok {
		return false
	}
	delete(r.handlers, key)
	return true
}

func (r *Registry) resolve(componentID, actionID string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[handlerKey{component: componentID, action: actionID}]; ok {
		return h, true
	}
	if base, found := strings.CutSuffix(componentID, SourceSuffix); found {
		if h, ok := r.handlers[handlerKey{component: base, action: actionID}]; ok {
			return h, true
		}
	}
	return nil, false
}

// ExecuteAction runs the handler bound to (componentID, actionID). It never
// panics and never returns an error: every failure is a Result with
// Success false, and Result.Cause holds an *ActionError.
func (r *Registry) ExecuteAction(ctx context.Context, componentID, actionID string, params map[string]any) Result {
	h, ok := r.resolve(componentID, actionID)
	if !ok {
		err := &ActionError{
			Code:        CodeNoHandler,
			ComponentID: componentID,
			ActionID:    actionID,
			Message:     fmt.Sprintf("No handler registered for %s.%s", componentID, actionID),
		}
		r.logger.Warn("no handler registered", "component_id", componentID, "action", actionID)
		return Fail(err)
	}
	if params == nil {
		params = map[string]any{}
	}

	r.bus.Emit(eventbus.ActionExecuting, ActionEvent{ComponentID: componentID, ActionID: actionID, Params: params})

	result, err := r.invoke(ctx, h, componentID, actionID, params)
	if err != nil {
		result = Fail(err)
		r.logger.Error("action failed", "component_id", componentID, "action", actionID, "error", err)
		r.bus.Emit(eventbus.ActionFailed, ActionEvent{
			ComponentID: componentID,
			ActionID:    actionID,
			Params:      params,
			Result:      &result,
			Err:         err,
		})
		return result
	}

	r.bus.Emit(eventbus.ActionExecuted, ActionEvent{
		ComponentID: componentID,
		ActionID:    actionID,
		Params:      params,
		Result:      &result,
	})
	return result
}

func (r *Registry) invoke(ctx context.Context, h Handler, componentID, actionID string, params map[string]any) (result Result, err error) {
	if cerr := ctx.Err(); cerr != nil {
		return Result{}, &ActionError{
			Code:        CodeCanceled,
			ComponentID: componentID,
			ActionID:    actionID,
			Message:     cerr.Error(),
			Cause:       cerr,
		}
	}

	defer func() {
		if p := recover(); p != nil {
			result = Result{}
			err = &ActionError{
				Code:        CodeHandlerPanic,
				ComponentID: componentID,
				ActionID:    actionID,
				Message:     fmt.Sprint(p),
			}
		}
	}()

	result, err = h(ctx, params)
	if err != nil {
		return Result{}, &ActionError{
			Code:        CodeHandlerFailed,
			ComponentID: componentID,
			ActionID:    actionID,
			Message:     err.Error(),
			Cause:       err,
		}
	}
	return result, nil
}

// GetComponents returns copies of all components in registration order.
func (r *Registry) GetComponents() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Component, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.components[id].Clone())
	}
	return out
}

// GetComponent returns a copy of the component registered under id.
func (r *Registry) GetComponent(id string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[id]
	if !ok {
		return Component{}, false
	}
	return c.Clone(), true
}

// Capability reports whether id has a declaration, handlers, both or
// neither.
func (r *Registry) Capability(id string) Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, declared := r.components[id]
	handled := false
	for k := range r.handlers {
		if k.component == id || k.component == id+SourceSuffix {
			handled = true
			break
		}
	}

	switch {
	case declared && handled:
		return Both
	case declared:
		return DeclareOnly
	case handled:
		return HandlerOnly
	default:
		return None
	}
}

// HasHandler reports whether (componentID, actionID) resolves to a handler.
func (r *Registry) HasHandler(componentID, actionID string) bool {
	_, ok := r.resolve(componentID, actionID)
	return ok
}
