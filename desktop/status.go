package desktop

import "deskos/window"

// PluginStatus is one row of the plugin table.
type PluginStatus struct {
	ID      string
	Name    string
	Version string
	State   string
}

// ComponentStatus is one row of the component table.
type ComponentStatus struct {
	ID         string
	Name       string
	Capability string
	Actions    int
}

// Status is a point-in-time summary of the desktop.
type Status struct {
	Plugins      []PluginStatus
	Components   []ComponentStatus
	Windows      []window.Record
	Focused      string
	Tools        int
	PendingCalls int
}

func (d *Desktop) Status() Status {
	var s Status
	for _, p := range d.plugins.GetAllPlugins() {
		m := p.Manifest()
		s.Plugins = append(s.Plugins, PluginStatus{
			ID:      p.ID(),
			Name:    m.Name,
			Version: m.Version,
			State:   d.plugins.State(p.ID()).String(),
		})
	}
	for _, c := range d.components.GetComponents() {
		s.Components = append(s.Components, ComponentStatus{
			ID:         c.ID,
			Name:       c.Name,
			Capability: d.components.Capability(c.ID).String(),
			Actions:    len(c.Actions),
		})
	}
	snap := d.windows.Snapshot()
	s.Windows = snap.Open()
	if rec, ok := snap.Focused(); ok {
		s.Focused = rec.ID
	}
	s.Tools = len(d.mcp.Tools())
	s.PendingCalls = d.mcp.PendingCalls()
	return s
}
