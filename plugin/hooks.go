package plugin

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by RunHook for an unregistered id.
var ErrNotFound = errors.New("plugin not found")

// Hook names a window-driven optional hook.
type Hook int

const (
	HookOpen Hook = iota
	HookClose
	HookMinimize
	HookMaximize
)

func (h Hook) String() string {
	switch h {
	case HookOpen:
		return "open"
	case HookClose:
		return "close"
	case HookMinimize:
		return "minimize"
	case HookMaximize:
		return "maximize"
	default:
		return "unknown"
	}
}

// hookFunc returns the plugin's implementation of h, or nil.
func hookFunc(p Plugin, h Hook) func(context.Context) error {
	switch h {
	case HookOpen:
		if o, ok := p.(Opener); ok {
			return o.OnOpen
		}
	case HookClose:
		if c, ok := p.(Closer); ok {
			return c.OnClose
		}
	case HookMinimize:
		if m, ok := p.(Minimizer); ok {
			return m.OnMinimize
		}
	case HookMaximize:
		if m, ok := p.(Maximizer); ok {
			return m.OnMaximize
		}
	}
	return nil
}

// RunHook calls hook h on plugin id if the plugin implements it. The hook
// runs outside the manager's lock and a panic comes back as an error.
// Hook failures are logged here as well so callers may ignore them.
func (m *Manager) RunHook(ctx context.Context, id string, h Hook) error {
	p, ok := m.GetPlugin(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn := hookFunc(p, h)
	if fn == nil {
		return nil
	}
	if err := safeHook(func() error { return fn(ctx) }); err != nil {
		m.logger.Error("plugin hook failed", "plugin", id, "hook", h, "error", err)
		return err
	}
	return nil
}
