package desktop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskos/bridge"
	"deskos/component"
	"deskos/eventbus"
)

type apiFixture struct {
	registry *component.Registry
	worker   bridge.Port
	cancel   context.CancelFunc
	done     chan error
}

func startAPIBridge(t *testing.T, setup func(r *component.Registry)) *apiFixture {
	t.Helper()
	bus := eventbus.New(nil)
	bus.RegisterEvent(eventbus.CoreEvents...)
	registry := component.NewRegistry(bus, nil)
	if setup != nil {
		setup(registry)
	}

	main, worker := bridge.NewPipe(16)
	api := NewAPIBridge(main, registry, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	f := &apiFixture{registry: registry, worker: worker, cancel: cancel, done: make(chan error, 1)}
	go func() { f.done <- api.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Error("api bridge did not stop")
		}
		_ = main.Close()
	})
	return f
}

func (f *apiFixture) next(t *testing.T) bridge.Message {
	t.Helper()
	select {
	case msg := <-f.worker.Messages():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message from main context")
		return bridge.Message{}
	}
}

func echoComponent(id string) component.Component {
	return component.Component{ID: id, Name: id, Actions: []component.ActionSpec{{ID: "echo"}}}
}

func TestAPIBridgeAnnouncesExistingComponents(t *testing.T) {
	f := startAPIBridge(t, func(r *component.Registry) {
		_, err := r.RegisterComponent(echoComponent("one"))
		require.NoError(t, err)
		_, err = r.RegisterComponent(echoComponent("two"))
		require.NoError(t, err)
	})

	msg := f.next(t)
	assert.Equal(t, bridge.TypeComponentsRegistered, msg.Type)
	require.Len(t, msg.Components, 2)
	assert.Equal(t, "one", msg.Components[0].ID)
	assert.Equal(t, "two", msg.Components[1].ID)
}

func TestAPIBridgeForwardsRegistrationsInOrder(t *testing.T) {
	f := startAPIBridge(t, func(r *component.Registry) {
		_, err := r.RegisterComponent(echoComponent("probe"))
		require.NoError(t, err)
	})
	// The initial announcement is sent after Run subscribes.
	require.Equal(t, bridge.TypeComponentsRegistered, f.next(t).Type)

	_, err := f.registry.RegisterComponent(echoComponent("a"))
	require.NoError(t, err)
	f.registry.UnregisterComponent("a")
	_, err = f.registry.RegisterComponent(echoComponent("b"))
	require.NoError(t, err)

	var got []string
	for range 3 {
		msg := f.next(t)
		switch msg.Type {
		case bridge.TypeComponentsRegistered:
			require.Len(t, msg.Components, 1)
			got = append(got, "+"+msg.Components[0].ID)
		case bridge.TypeComponentUnregistered:
			got = append(got, "-"+msg.ComponentID)
		}
	}
	assert.Equal(t, []string{"+a", "-a", "+b"}, got)
}

func TestAPIBridgeAnswersToolRequests(t *testing.T) {
	f := startAPIBridge(t, func(r *component.Registry) {
		_, err := r.RegisterComponent(echoComponent("echo"))
		require.NoError(t, err)
		require.NoError(t, r.RegisterActionHandler("echo", "echo", func(_ context.Context, params map[string]any) (component.Result, error) {
			return component.OK(params["text"]), nil
		}))
	})
	f.next(t) // initial announcement

	ctx := context.Background()
	require.NoError(t, f.worker.Post(ctx, bridge.ToolRequest("r1", "echo", "echo", map[string]any{"text": "hi"})))
	resp := f.next(t)
	assert.Equal(t, bridge.TypeToolResponse, resp.Type)
	assert.Equal(t, "r1", resp.RequestID)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Success)
	assert.Equal(t, "hi", resp.Result.Data)

	require.NoError(t, f.worker.Post(ctx, bridge.ToolRequest("r2", "echo", "missing", nil)))
	resp = f.next(t)
	assert.Equal(t, "r2", resp.RequestID)
	require.NotNil(t, resp.Result)
	assert.False(t, resp.Result.Success)
	assert.Contains(t, resp.Result.Error, "No handler registered for echo.missing")
}

func TestAPIBridgeRejectsMalformedRequests(t *testing.T) {
	f := startAPIBridge(t, nil)
	ctx := context.Background()

	// Without a request id nothing can be correlated, so nothing is sent.
	require.NoError(t, f.worker.Post(ctx, bridge.ToolRequest("", "echo", "echo", nil)))
	require.NoError(t, f.worker.Post(ctx, bridge.ToolRequest("r3", "", "echo", nil)))

	resp := f.next(t)
	assert.Equal(t, "r3", resp.RequestID)
	assert.Nil(t, resp.Result)
	assert.Contains(t, resp.Error, "componentId and action are required")
}

func TestAPIBridgeStopsWhenPortCloses(t *testing.T) {
	bus := eventbus.New(nil)
	registry := component.NewRegistry(bus, nil)
	main, _ := bridge.NewPipe(1)
	api := NewAPIBridge(main, registry, bus, nil)

	done := make(chan error, 1)
	go func() { done <- api.Run(context.Background()) }()
	require.NoError(t, main.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the port closed")
	}
	assert.Zero(t, bus.ListenerCount(eventbus.ComponentRegistered))
}
