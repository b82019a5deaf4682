package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskos/eventbus"
	"deskos/policy"
)

type fakePlugin struct {
	id        string
	initErr   error
	initPanic bool
	inits     int
	destroys  int
}

func (p *fakePlugin) ID() string { return p.id }

func (p *fakePlugin) Manifest() Manifest {
	return Manifest{Name: p.id, Version: "1.0.0"}
}

func (p *fakePlugin) Init(context.Context) error {
	p.inits++
	if p.initPanic {
		panic("init exploded")
	}
	return p.initErr
}

func (p *fakePlugin) Render() UIHandle { return "<" + p.id + ">" }

func (p *fakePlugin) OnDestroy(context.Context) error {
	p.destroys++
	return nil
}

type recorder struct {
	events []string
}

func (r *recorder) attach(bus *eventbus.Bus, names ...string) {
	for _, name := range names {
		bus.Subscribe(name, func(args ...any) {
			r.events = append(r.events, name+":"+args[0].(string))
		})
	}
}

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *recorder) {
	t.Helper()
	bus := eventbus.New(nil)
	rec := &recorder{}
	rec.attach(bus,
		eventbus.PluginRegistered,
		eventbus.PluginActivated,
		eventbus.PluginActivationFailed,
		eventbus.PluginDeactivated,
		eventbus.PluginUnregistered,
	)
	return NewManager(bus, nil, opts...), rec
}

func TestLifecycle(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()
	p := &fakePlugin{id: "notepad"}

	require.NoError(t, m.RegisterPlugin(p))
	assert.Equal(t, Registered, m.State("notepad"))

	m.ActivatePlugin(ctx, "notepad")
	assert.True(t, m.IsPluginActive("notepad"))
	assert.Equal(t, Active, m.State("notepad"))
	assert.Len(t, m.GetActivePlugins(), 1)

	m.DeactivatePlugin(ctx, "notepad")
	assert.False(t, m.IsPluginActive("notepad"))
	assert.Equal(t, Registered, m.State("notepad"))
	assert.Equal(t, 1, p.destroys)

	m.UnregisterPlugin(ctx, "notepad")
	assert.Equal(t, Unregistered, m.State("notepad"))
	_, ok := m.GetPlugin("notepad")
	assert.False(t, ok)

	assert.Equal(t, []string{
		"plugin:registered:notepad",
		"plugin:activated:notepad",
		"plugin:deactivated:notepad",
		"plugin:unregistered:notepad",
	}, rec.events)
}

func TestMisappliedTransitionsAreNoops(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		active bool
		run    func(m *Manager)
	}{
		{
			name: "activate unknown",
			run:  func(m *Manager) { m.ActivatePlugin(ctx, "ghost") },
		},
		{
			name: "deactivate unknown",
			run:  func(m *Manager) { m.DeactivatePlugin(ctx, "ghost") },
		},
		{
			name: "deactivate inactive",
			run:  func(m *Manager) { m.DeactivatePlugin(ctx, "calc") },
		},
		{
			name:   "activate active",
			active: true,
			run:    func(m *Manager) { m.ActivatePlugin(ctx, "calc") },
		},
		{
			name: "unregister unknown",
			run:  func(m *Manager) { m.UnregisterPlugin(ctx, "ghost") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec := newTestManager(t)
			p := &fakePlugin{id: "calc"}
			require.NoError(t, m.RegisterPlugin(p))
			if tt.active {
				m.ActivatePlugin(ctx, "calc")
			}
			before := len(rec.events)
			inits := p.inits

			assert.NotPanics(t, func() { tt.run(m) })

			assert.Equal(t, tt.active, m.IsPluginActive("calc"))
			assert.Len(t, rec.events, before)
			assert.Equal(t, inits, p.inits)
		})
	}
}

func TestActivateDeactivateRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.RegisterPlugin(&fakePlugin{id: id}))
	}
	m.ActivatePlugin(ctx, "a")

	before := m.GetActivePlugins()
	m.ActivatePlugin(ctx, "b")
	m.DeactivatePlugin(ctx, "b")

	assert.Equal(t, before, m.GetActivePlugins())
}

func TestInitFailureLeavesPluginRegistered(t *testing.T) {
	tests := []struct {
		name   string
		plugin *fakePlugin
	}{
		{name: "error", plugin: &fakePlugin{id: "bad", initErr: errors.New("no audio device")}},
		{name: "panic", plugin: &fakePlugin{id: "bad", initPanic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec := newTestManager(t)
			require.NoError(t, m.RegisterPlugin(tt.plugin))

			assert.NotPanics(t, func() { m.ActivatePlugin(context.Background(), "bad") })

			assert.False(t, m.IsPluginActive("bad"))
			assert.Equal(t, Registered, m.State("bad"))
			assert.Contains(t, rec.events, "plugin:activationFailed:bad")
			assert.NotContains(t, rec.events, "plugin:activated:bad")
		})
	}
}

func TestUnregisterActivePluginDestroysIdempotently(t *testing.T) {
	m, rec := newTestManager(t)
	ctx := context.Background()
	p := &fakePlugin{id: "term"}
	require.NoError(t, m.RegisterPlugin(p))
	m.ActivatePlugin(ctx, "term")

	m.UnregisterPlugin(ctx, "term")

	// Once from deactivation, once from unregistration.
	assert.Equal(t, 2, p.destroys)
	assert.Equal(t, Unregistered, m.State("term"))
	assert.Equal(t, []string{
		"plugin:registered:term",
		"plugin:activated:term",
		"plugin:deactivated:term",
		"plugin:unregistered:term",
	}, rec.events)
}

func TestDuplicatePolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    policy.Duplicate
		wantErr   error
		wantFirst bool
	}{
		{name: "overwrite", policy: policy.OverwriteWithWarning},
		{name: "reject", policy: policy.RejectWithError, wantErr: ErrDuplicate, wantFirst: true},
		{name: "ignore", policy: policy.IgnoreFirstWins, wantFirst: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, WithDuplicatePolicy(tt.policy))
			first := &fakePlugin{id: "dup"}
			second := &fakePlugin{id: "dup"}

			require.NoError(t, m.RegisterPlugin(first))
			err := m.RegisterPlugin(second)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			got, ok := m.GetPlugin("dup")
			require.True(t, ok)
			if tt.wantFirst {
				assert.Same(t, first, got)
			} else {
				assert.Same(t, second, got)
			}
			assert.Len(t, m.GetAllPlugins(), 1)
		})
	}
}

func TestRegisterInvalid(t *testing.T) {
	m, _ := newTestManager(t)
	assert.ErrorIs(t, m.RegisterPlugin(nil), ErrInvalid)
	assert.ErrorIs(t, m.RegisterPlugin(&fakePlugin{}), ErrInvalid)
}

func TestGetAllPluginsSorted(t *testing.T) {
	m, _ := newTestManager(t)
	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, m.RegisterPlugin(&fakePlugin{id: id}))
	}

	var ids []string
	for _, p := range m.GetAllPlugins() {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}

type hookedPlugin struct {
	fakePlugin
	calls    []Hook
	closeErr error
}

func (p *hookedPlugin) OnOpen(context.Context) error {
	p.calls = append(p.calls, HookOpen)
	return nil
}

func (p *hookedPlugin) OnClose(context.Context) error {
	p.calls = append(p.calls, HookClose)
	return p.closeErr
}

func (p *hookedPlugin) OnMaximize(context.Context) error {
	panic("maximize exploded")
}

func TestRunHook(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := &hookedPlugin{fakePlugin: fakePlugin{id: "calc"}, closeErr: errors.New("unsaved")}
	require.NoError(t, m.RegisterPlugin(p))

	assert.NoError(t, m.RunHook(ctx, "calc", HookOpen))
	assert.EqualError(t, m.RunHook(ctx, "calc", HookClose), "unsaved")
	// Not implemented by the plugin.
	assert.NoError(t, m.RunHook(ctx, "calc", HookMinimize))
	assert.ErrorContains(t, m.RunHook(ctx, "calc", HookMaximize), "maximize exploded")
	assert.ErrorIs(t, m.RunHook(ctx, "ghost", HookOpen), ErrNotFound)

	assert.Equal(t, []Hook{HookOpen, HookClose}, p.calls)
}
