package desktop

import (
	"context"
	"log/slog"
	"sync"

	"deskos/bridge"
	"deskos/component"
	"deskos/config"
	"deskos/eventbus"
)

// Dispatcher is the part of the component registry the main side exposes.
type Dispatcher interface {
	ExecuteAction(ctx context.Context, componentID, actionID string, params map[string]any) component.Result
	GetComponents() []component.Component
	GetComponent(id string) (component.Component, bool)
}

// APIBridge is the main-context end of the worker channel. It executes
// tool requests against the dispatcher and keeps the worker's tool list in
// step with component registrations.
type APIBridge struct {
	port       bridge.Port
	dispatcher Dispatcher
	bus        *eventbus.Bus
	logger     *slog.Logger

	// outbox keeps announcements in emit order without blocking the bus.
	mu     sync.Mutex
	outbox []bridge.Message
	wake   chan struct{}
}

func NewAPIBridge(port bridge.Port, dispatcher Dispatcher, bus *eventbus.Bus, logger *slog.Logger) *APIBridge {
	if logger == nil {
		logger = config.DiscardLogger()
	}
	return &APIBridge{
		port:       port,
		dispatcher: dispatcher,
		bus:        bus,
		logger:     logger.With("component", "api-bridge"),
		wake:       make(chan struct{}, 1),
	}
}

// Run serves the worker until ctx is done or the port closes. Every tool
// request runs on its own goroutine so a slow action does not hold up
// others; Run waits for them before returning.
func (a *APIBridge) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubRegistered := a.bus.Subscribe(eventbus.ComponentRegistered, func(args ...any) {
		if c, ok := componentArg(args); ok {
			a.enqueue(bridge.ComponentsRegistered(c))
		}
	})
	unsubUnregistered := a.bus.Subscribe(eventbus.ComponentUnregistered, func(args ...any) {
		if len(args) > 0 {
			if id, ok := args[0].(string); ok {
				a.enqueue(bridge.ComponentUnregistered(id))
			}
		}
	})
	defer unsubRegistered()
	defer unsubUnregistered()

	// Components registered before Run are announced in one message. The
	// worker skips components it has already seen.
	if existing := a.dispatcher.GetComponents(); len(existing) > 0 {
		a.enqueue(bridge.ComponentsRegistered(existing...))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.drain(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-a.port.Messages():
			if !ok {
				return nil
			}
			if msg.Type != bridge.TypeToolRequest {
				a.logger.Warn("unexpected message from worker", "type", msg.Type)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.handleToolRequest(ctx, msg)
			}()
		}
	}
}

func componentArg(args []any) (component.Component, bool) {
	if len(args) == 0 {
		return component.Component{}, false
	}
	switch v := args[0].(type) {
	case component.Component:
		return v, true
	case *component.Component:
		if v != nil {
			return *v, true
		}
	}
	return component.Component{}, false
}

func (a *APIBridge) handleToolRequest(ctx context.Context, msg bridge.Message) {
	if msg.RequestID == "" {
		a.logger.Warn("dropping tool request without id", "component_id", msg.ComponentID, "action", msg.Action)
		return
	}

	var resp bridge.Message
	if msg.ComponentID == "" || msg.Action == "" {
		resp = bridge.ToolResponse(msg.RequestID, nil, "invalid tool request: componentId and action are required")
	} else {
		res := a.dispatcher.ExecuteAction(ctx, msg.ComponentID, msg.Action, msg.Params)
		resp = bridge.ToolResponse(msg.RequestID, &res, "")
	}

	if err := a.port.Post(ctx, resp); err != nil {
		a.logger.Warn("failed to post tool response", "request_id", msg.RequestID, "error", err)
	}
}

func (a *APIBridge) enqueue(msg bridge.Message) {
	a.mu.Lock()
	a.outbox = append(a.outbox, msg)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *APIBridge) drain(ctx context.Context) {
	for {
		a.mu.Lock()
		batch := a.outbox
		a.outbox = nil
		a.mu.Unlock()

		for _, msg := range batch {
			if err := a.port.Post(ctx, msg); err != nil {
				a.logger.Warn("failed to forward announcement", "type", msg.Type, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-a.wake:
		}
	}
}
