package desktop

import (
	"context"
	"slices"

	"deskos/manifest"
	"deskos/plugin"
)

// declaredPlugin stands in for a plugin described only by a manifest, such
// as an app served from another origin. It has no hooks and renders
// nothing; its components are reachable through the registry once a
// handler binds to them.
type declaredPlugin struct {
	id       string
	manifest plugin.Manifest
}

func (p *declaredPlugin) ID() string { return p.id }
func (p *declaredPlugin) Manifest() plugin.Manifest { return p.manifest }
func (p *declaredPlugin) Init(context.Context) error { return nil }
func (p *declaredPlugin) Render() plugin.UIHandle { return nil }

func (d *Desktop) loadManifests() {
	dir := d.cfg.ManifestDir()
	manifests, err := manifest.LoadDir(dir)
	if err != nil {
		d.logger.Warn("some manifests failed to load", "dir", dir, "error", err)
	}
	for _, m := range manifests {
		d.applyManifest(m)
	}
}

func (d *Desktop) startWatcher() {
	w, err := manifest.NewWatcher(d.cfg.ManifestDir(), 0, d.onManifestChange, d.logger)
	if err != nil {
		d.logger.Warn("manifest hot reload disabled", "error", err)
		return
	}
	if err := w.Start(); err != nil {
		d.logger.Warn("manifest hot reload disabled", "error", err)
		_ = w.Stop()
		return
	}
	d.watcher = w
}

func (d *Desktop) onManifestChange(path string, op manifest.Operation) {
	if op == manifest.OpDelete {
		d.removeManifest(path)
		return
	}
	m, err := manifest.Load(path)
	if err != nil {
		// Keep the last good declarations until the file is fixed.
		d.logger.Warn("manifest reload failed", "path", path, "error", err)
		return
	}
	d.applyManifest(m)
}

// applyManifest registers m's components. Components this file declared
// before are redeclared in place so their handlers survive; components it
// no longer lists are unregistered. A component id already owned by a
// plugin or another manifest is left alone.
func (d *Desktop) applyManifest(m *manifest.Manifest) {
	d.mu.Lock()
	previous := d.owned[m.Path]
	d.mu.Unlock()

	var owned []string
	for _, c := range m.Components {
		if slices.Contains(previous, c.ID) {
			if _, err := d.components.RedeclareComponent(c); err != nil {
				d.logger.Warn("manifest component rejected", "path", m.Path, "component_id", c.ID, "error", err)
				continue
			}
			owned = append(owned, c.ID)
			continue
		}
		inserted, err := d.components.RegisterComponent(c)
		if err != nil {
			d.logger.Warn("manifest component rejected", "path", m.Path, "component_id", c.ID, "error", err)
			continue
		}
		if !inserted {
			d.logger.Info("component already declared, manifest entry ignored", "path", m.Path, "component_id", c.ID)
			continue
		}
		owned = append(owned, c.ID)
	}

	for _, id := range previous {
		if !slices.Contains(owned, id) {
			d.components.UnregisterComponent(id)
		}
	}

	d.mu.Lock()
	d.owned[m.Path] = owned
	d.mu.Unlock()

	if m.Plugin != nil {
		d.declarePlugin(m)
	}
	d.logger.Info("manifest applied", "path", m.Path, "components", len(owned))
}

func (d *Desktop) declarePlugin(m *manifest.Manifest) {
	id := m.Plugin.ID
	if existing, ok := d.plugins.GetPlugin(id); ok {
		if _, stub := existing.(*declaredPlugin); !stub {
			d.logger.Info("plugin already registered, manifest plugin ignored", "path", m.Path, "plugin", id)
			return
		}
	}
	if err := d.plugins.RegisterPlugin(&declaredPlugin{id: id, manifest: m.Plugin.Manifest}); err != nil {
		d.logger.Warn("manifest plugin rejected", "path", m.Path, "plugin", id, "error", err)
		return
	}
	d.mu.Lock()
	d.declared[id] = m.Path
	d.mu.Unlock()
}

func (d *Desktop) removeManifest(path string) {
	d.mu.Lock()
	owned := d.owned[path]
	delete(d.owned, path)
	var plugins []string
	for id, p := range d.declared {
		if p == path {
			plugins = append(plugins, id)
			delete(d.declared, id)
		}
	}
	d.mu.Unlock()

	for _, id := range owned {
		d.components.UnregisterComponent(id)
	}
	for _, id := range plugins {
		d.windows.Unregister(id)
		d.plugins.UnregisterPlugin(context.Background(), id)
	}
	d.logger.Info("manifest removed", "path", path, "components", len(owned))
}
