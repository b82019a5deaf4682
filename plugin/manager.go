package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"deskos/eventbus"
	"deskos/policy"
)

var (
	// ErrDuplicate is returned by RegisterPlugin under policy.RejectWithError.
	ErrDuplicate = errors.New("plugin already registered")
	// ErrInvalid is returned for a nil plugin or an empty id.
	ErrInvalid = errors.New("invalid plugin")
)

// Manager owns the plugin registry and the active set. Lifecycle hooks run
// outside the manager's lock; a faulty hook is logged and never stops the
// shell.
type Manager struct {
	mu         sync.RWMutex
	plugins    map[string]Plugin
	active     map[string]bool
	activating map[string]bool

	bus    *eventbus.Bus
	logger *slog.Logger
	policy policy.Duplicate
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDuplicatePolicy overrides the default OverwriteWithWarning policy.
func WithDuplicatePolicy(p policy.Duplicate) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// NewManager creates a manager that announces lifecycle changes on bus.
func NewManager(bus *eventbus.Bus, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if bus == nil {
		bus = eventbus.New(logger)
	}
	m := &Manager{
		plugins:    make(map[string]Plugin),
		active:     make(map[string]bool),
		activating: make(map[string]bool),
		bus:        bus,
		logger:     logger.With("component", "plugin-manager"),
		policy:     policy.OverwriteWithWarning,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterPlugin adds p to the registry. What happens to an existing id
// depends on the manager's duplicate policy; the default overwrites it and
// logs a warning. An overwritten plugin keeps its active flag.
func (m *Manager) RegisterPlugin(p Plugin) error {
	if p == nil || p.ID() == "" {
		return ErrInvalid
	}
	id := p.ID()

	m.mu.Lock()
	if _, exists := m.plugins[id]; exists {
		switch m.policy {
		case policy.RejectWithError:
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicate, id)
		case policy.IgnoreFirstWins:
			m.mu.Unlock()
			m.logger.Debug("plugin already registered, keeping first", "plugin", id)
			return nil
		default:
			m.logger.Warn("plugin already registered, overwriting", "plugin", id)
		}
	}
	m.plugins[id] = p
	m.mu.Unlock()

	m.logger.Info("plugin registered", "plugin", id, "version", p.Manifest().Version)
	m.bus.Emit(eventbus.PluginRegistered, id)
	return nil
}

// ActivatePlugin runs the plugin's Init hook and marks it active. Unknown or
// already active ids are a logged no-op. When Init fails the plugin stays
// registered, the error is logged and plugin:activationFailed is emitted.
func (m *Manager) ActivatePlugin(ctx context.Context, id string) {
	m.mu.Lock()
	p, ok := m.plugins[id]
	switch {
	case !ok:
		m.mu.Unlock()
		m.logger.Warn("cannot activate unknown plugin", "plugin", id)
		return
	case m.active[id]:
		m.mu.Unlock()
		m.logger.Warn("plugin already active", "plugin", id)
		return
	case m.activating[id]:
		m.mu.Unlock()
		m.logger.Warn("plugin activation already in progress", "plugin", id)
		return
	}
	m.activating[id] = true
	m.mu.Unlock()

	err := safeHook(func() error { return p.Init(ctx) })

	m.mu.Lock()
	delete(m.activating, id)
	if _, still := m.plugins[id]; !still {
		m.mu.Unlock()
		m.logger.Warn("plugin unregistered during activation", "plugin", id)
		return
	}
	if err == nil {
		m.active[id] = true
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("plugin init failed", "plugin", id, "error", err)
		m.bus.Emit(eventbus.PluginActivationFailed, id, err)
		return
	}

	m.logger.Info("plugin activated", "plugin", id)
	m.bus.Emit(eventbus.PluginActivated, id)
}

// DeactivatePlugin runs the destroy hook and removes id from the active set.
// Unknown or inactive ids are a logged no-op.
func (m *Manager) DeactivatePlugin(ctx context.Context, id string) {
	m.mu.Lock()
	p, ok := m.plugins[id]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("cannot deactivate unknown plugin", "plugin", id)
		return
	}
	if !m.active[id] {
		m.mu.Unlock()
		m.logger.Warn("plugin not active", "plugin", id)
		return
	}
	delete(m.active, id)
	m.mu.Unlock()

	m.destroy(ctx, p)
	m.logger.Info("plugin deactivated", "plugin", id)
	m.bus.Emit(eventbus.PluginDeactivated, id)
}

// UnregisterPlugin deactivates id if needed, runs the destroy hook again and
// removes the descriptor. Destroy hooks must tolerate being called twice.
func (m *Manager) UnregisterPlugin(ctx context.Context, id string) {
	if m.IsPluginActive(id) {
		m.DeactivatePlugin(ctx, id)
	}

	m.mu.Lock()
	p, ok := m.plugins[id]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("cannot unregister unknown plugin", "plugin", id)
		return
	}
	delete(m.plugins, id)
	delete(m.active, id)
	m.mu.Unlock()

	m.destroy(ctx, p)
	m.logger.Info("plugin unregistered", "plugin", id)
	m.bus.Emit(eventbus.PluginUnregistered, id)
}

func (m *Manager) destroy(ctx context.Context, p Plugin) {
	d, ok := p.(Destroyer)
	if !ok {
		return
	}
	if err := safeHook(func() error { return d.OnDestroy(ctx) }); err != nil {
		m.logger.Error("plugin destroy hook failed", "plugin", p.ID(), "error", err)
	}
}

// GetPlugin returns the plugin registered under id.
func (m *Manager) GetPlugin(id string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[id]
	return p, ok
}

// GetAllPlugins returns every registered plugin sorted by id.
func (m *Manager) GetAllPlugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(string) bool { return true })
}

// GetActivePlugins returns the active plugins sorted by id.
func (m *Manager) GetActivePlugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(id string) bool { return m.active[id] })
}

func (m *Manager) sorted(keep func(id string) bool) []Plugin {
	ids := make([]string, 0, len(m.plugins))
	for id := range m.plugins {
		if keep(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]Plugin, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.plugins[id])
	}
	return out
}

// IsPluginActive reports whether id is in the active set.
func (m *Manager) IsPluginActive(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[id]
}

// State returns id's lifecycle state.
func (m *Manager) State(id string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.active[id]:
		return Active
	case m.plugins[id] != nil:
		return Registered
	default:
		return Unregistered
	}
}

// safeHook runs a lifecycle hook, turning a panic into an error.
func safeHook(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return fn()
}
