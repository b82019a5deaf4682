package desktop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskos/component"
)

func newPythonAPI(t *testing.T) (*PythonAPI, *component.Registry) {
	t.Helper()
	registry := component.NewRegistry(nil, nil)
	t.Cleanup(registry.Close)
	return NewPythonAPI(registry, nil), registry
}

func TestPythonExecuteAction(t *testing.T) {
	api, registry := newPythonAPI(t)
	_, err := registry.RegisterComponent(component.Component{
		ID:      "calc",
		Actions: []component.ActionSpec{{ID: "add"}},
	})
	require.NoError(t, err)
	require.NoError(t, registry.RegisterActionHandler("calc", "add", func(_ context.Context, params map[string]any) (component.Result, error) {
		a, _ := params["a"].(float64)
		b, _ := params["b"].(float64)
		return component.OK(a + b), nil
	}))

	tests := []struct {
		name    string
		action  string
		params  string
		success bool
		data    any
		errPart string
	}{
		{name: "ok", action: "add", params: `{"a": 2, "b": 3}`, success: true, data: float64(5)},
		{name: "empty params", action: "add", params: "", success: true, data: float64(0)},
		{name: "null params", action: "add", params: "null", success: true, data: float64(0)},
		{name: "bad json", action: "add", params: `{"a":`, errPart: "invalid params JSON for calc.add"},
		{name: "params not an object", action: "add", params: `[1, 2]`, errPart: "invalid params JSON"},
		{name: "no handler", action: "sub", params: "{}", errPart: "No handler registered for calc.sub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res component.Result
			require.NoError(t, json.Unmarshal([]byte(api.ExecuteAction(context.Background(), "calc", tt.action, tt.params)), &res))
			assert.Equal(t, tt.success, res.Success)
			if tt.success {
				assert.Equal(t, tt.data, res.Data)
				return
			}
			assert.Contains(t, res.Error, tt.errPart)
		})
	}
}

func TestPythonUnencodableResult(t *testing.T) {
	api, registry := newPythonAPI(t)
	_, err := registry.RegisterComponent(component.Component{ID: "odd", Actions: []component.ActionSpec{{ID: "chan"}}})
	require.NoError(t, err)
	require.NoError(t, registry.RegisterActionHandler("odd", "chan", func(context.Context, map[string]any) (component.Result, error) {
		return component.OK(make(chan int)), nil
	}))

	var res component.Result
	require.NoError(t, json.Unmarshal([]byte(api.ExecuteAction(context.Background(), "odd", "chan", "")), &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not JSON encodable")
}

func TestPythonListComponents(t *testing.T) {
	api, registry := newPythonAPI(t)
	assert.Equal(t, "[]", api.ListComponents())

	_, err := registry.RegisterComponent(component.Component{ID: "a", Name: "A"})
	require.NoError(t, err)
	_, err = registry.RegisterComponent(component.Component{ID: "b", Name: "B"})
	require.NoError(t, err)

	var components []component.Component
	require.NoError(t, json.Unmarshal([]byte(api.ListComponents()), &components))
	require.Len(t, components, 2)
	assert.Equal(t, "a", components[0].ID)
	assert.Equal(t, "B", components[1].Name)
}

func TestPythonGetComponentState(t *testing.T) {
	api, registry := newPythonAPI(t)
	assert.Equal(t, "null", api.GetComponentState("missing"))

	_, err := registry.RegisterComponent(component.Component{ID: "empty"})
	require.NoError(t, err)
	assert.Equal(t, "{}", api.GetComponentState("empty"))

	_, err = registry.RegisterComponent(component.Component{ID: "doc", State: map[string]any{"value": "x"}})
	require.NoError(t, err)
	registry.UpdateComponentState("doc", map[string]any{"dirty": true})
	assert.JSONEq(t, `{"value": "x", "dirty": true}`, api.GetComponentState("doc"))
}
