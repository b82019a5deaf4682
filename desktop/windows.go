package desktop

import (
	"context"
	"fmt"

	"deskos/plugin"
	"deskos/window"
)

// OpenPlugin activates id if needed, registers its window, restores the
// saved layout and session state on first open, then opens and focuses
// the window and runs OnOpen.
func (d *Desktop) OpenPlugin(ctx context.Context, id string) error {
	p, ok := d.plugins.GetPlugin(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}

	if !d.plugins.IsPluginActive(id) {
		d.plugins.ActivatePlugin(ctx, id)
		if !d.plugins.IsPluginActive(id) {
			return fmt.Errorf("%w: %s", ErrActivation, id)
		}
	}

	_, existed := d.windows.Get(id)
	rec := d.newRecord(p)
	maximize := false
	if !existed {
		maximize = d.restore(id, &rec)
	}
	d.windows.RegisterWindow(rec)

	d.windows.SetOpen(id, true)
	if maximize {
		if cur, _ := d.windows.Get(id); !cur.IsMaximized {
			d.windows.Maximize(id)
		}
	}
	d.windows.Focus(id)

	_ = d.plugins.RunHook(ctx, id, plugin.HookOpen)
	return nil
}

func (d *Desktop) newRecord(p plugin.Plugin) window.Record {
	m := p.Manifest()
	size := DefaultWindowSize
	if m.PreferredSize != nil {
		size = *m.PreferredSize
	}

	// Cascade new windows so they do not stack exactly.
	step := d.windows.Snapshot().Len() % 10
	title := m.Name
	if title == "" {
		title = p.ID()
	}
	return window.Record{
		ID:       p.ID(),
		Title:    title,
		Content:  p.Render(),
		Position: window.Position{X: 32 + 24*step, Y: 32 + 24*step},
		Size:     size,
	}
}

// restore applies the saved geometry to rec and pushes the saved component
// state back into the registry. It reports whether the window was maximized.
func (d *Desktop) restore(id string, rec *window.Record) bool {
	if d.layout == nil {
		return false
	}

	maximized := false
	layout, err := d.layout.LoadLayout(id)
	switch {
	case err != nil:
		d.logger.Warn("failed to load window layout", "plugin", id, "error", err)
	case layout != nil:
		rec.Position = layout.Position
		if layout.Size.Width > 0 && layout.Size.Height > 0 {
			rec.Size = layout.Size
		}
		maximized = layout.IsMaximized
	}

	session, err := d.layout.LoadSession(id)
	switch {
	case err != nil:
		d.logger.Warn("failed to load plugin session", "plugin", id, "error", err)
	case session != nil && len(session.State) > 0:
		if d.components.UpdateComponentState(id, session.State) {
			d.logger.Debug("restored component state", "plugin", id)
		}
	}
	return maximized
}

// ClosePlugin closes the window, saves its layout and runs OnClose. The
// plugin stays active and the record stays registered.
func (d *Desktop) ClosePlugin(ctx context.Context, id string) error {
	if !d.windows.Close(id) {
		return fmt.Errorf("%w: %s", ErrNoWindow, id)
	}
	if d.layout != nil {
		if rec, ok := d.windows.Get(id); ok {
			if err := d.layout.SaveLayout(rec); err != nil {
				d.logger.Warn("failed to save window layout", "plugin", id, "error", err)
			}
		}
	}
	_ = d.plugins.RunHook(ctx, id, plugin.HookClose)
	return nil
}

// MinimizePlugin minimizes the window and runs OnMinimize.
func (d *Desktop) MinimizePlugin(ctx context.Context, id string) error {
	if !d.windows.Minimize(id, true) {
		return fmt.Errorf("%w: %s", ErrNoWindow, id)
	}
	_ = d.plugins.RunHook(ctx, id, plugin.HookMinimize)
	return nil
}

// MaximizePlugin toggles maximize. OnMaximize runs only when the window
// becomes maximized.
func (d *Desktop) MaximizePlugin(ctx context.Context, id string) error {
	if !d.windows.Maximize(id) {
		return fmt.Errorf("%w: %s", ErrNoWindow, id)
	}
	if rec, _ := d.windows.Get(id); rec.IsMaximized {
		_ = d.plugins.RunHook(ctx, id, plugin.HookMaximize)
	}
	return nil
}

// FocusPlugin restores a minimized window and raises it.
func (d *Desktop) FocusPlugin(id string) error {
	rec, ok := d.windows.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoWindow, id)
	}
	if rec.IsMinimized {
		d.windows.Minimize(id, false)
	}
	d.windows.Focus(id)
	return nil
}
