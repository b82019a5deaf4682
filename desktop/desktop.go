// Package desktop wires the core registries into one explicitly constructed
// context with a Start/Shutdown lifecycle. Nothing in the core is a
// package-level singleton; tests build as many desktops as they need.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"deskos/bridge"
	"deskos/component"
	"deskos/config"
	"deskos/eventbus"
	"deskos/manifest"
	"deskos/mcp"
	"deskos/plugin"
	"deskos/storage"
	"deskos/window"
)

var (
	ErrUnknownPlugin  = errors.New("unknown plugin")
	ErrActivation     = errors.New("plugin activation failed")
	ErrNoWindow       = errors.New("plugin has no window")
	ErrAlreadyStarted = errors.New("desktop already started")
)

// DefaultWindowSize is used when a plugin has no preferred size.
var DefaultWindowSize = window.Size{Width: 640, Height: 480}

// Option configures a Desktop.
type Option func(*Desktop)

// WithLayoutStorage injects layout storage. The caller keeps ownership and
// closes it after Shutdown.
func WithLayoutStorage(ls *storage.LayoutStorage) Option {
	return func(d *Desktop) { d.layout = ls }
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(d *Desktop) { d.version = v }
}

// WithViewport sets the maximize target for windows.
func WithViewport(size window.Size) Option {
	return func(d *Desktop) { d.viewport = size }
}

// Desktop owns one instance of every core component.
type Desktop struct {
	cfg      *config.Config
	logger   *slog.Logger
	version  string
	viewport window.Size

	bus        *eventbus.Bus
	windows    *window.Store
	plugins    *plugin.Manager
	components *component.Registry
	mcp        *mcp.Bridge
	api        *APIBridge
	python     *PythonAPI

	mainPort   bridge.Port
	workerPort bridge.Port

	layout     *storage.LayoutStorage
	ownsLayout bool
	watcher    *manifest.Watcher

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	owned    map[string][]string // manifest path -> component ids it declared
	declared map[string]string   // plugin id -> manifest path that declared it
	unwatch  func()
}

// New builds a desktop from cfg. A nil cfg uses config.Default and a nil
// logger discards output. When cfg enables layout persistence and no
// storage is injected, the layout database is opened in the data dir.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Desktop, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = config.DiscardLogger()
	}

	d := &Desktop{
		cfg:      cfg,
		logger:   logger,
		version:  mcp.ServerVersion,
		viewport: window.DefaultViewport,
		owned:    make(map[string][]string),
		declared: make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.bus = eventbus.New(logger.With("component", "event-bus"))
	d.bus.RegisterEvent(eventbus.CoreEvents...)
	d.windows = window.NewStore(window.WithLogger(logger), window.WithViewport(d.viewport))
	d.plugins = plugin.NewManager(d.bus, logger)
	d.components = component.NewRegistry(d.bus, logger)

	buffer := cfg.Bridge.ChannelBuffer
	if buffer <= 0 {
		buffer = bridge.DefaultBuffer
	}
	d.mainPort, d.workerPort = bridge.NewPipe(buffer)
	d.mcp = mcp.NewBridge(d.workerPort,
		mcp.WithTimeout(cfg.ToolTimeout()),
		mcp.WithLogger(logger),
		mcp.WithVersion(d.version),
		mcp.WithDefaultFormat(cfg.Bridge.DefaultFormat),
	)
	d.api = NewAPIBridge(d.mainPort, d.components, d.bus, logger)
	d.python = NewPythonAPI(d.components, logger)

	if d.layout == nil && cfg.Windows.PersistLayout {
		if err := config.EnsureDir(cfg.DataDir()); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		ls, err := storage.NewLayoutStorage(cfg.DataDir())
		if err != nil {
			return nil, fmt.Errorf("opening layout storage: %w", err)
		}
		d.layout = ls
		d.ownsLayout = true
	}

	d.unwatch = d.windows.Watch(func(snap window.Snapshot) {
		d.bus.Emit(eventbus.WindowChanged, snap)
	})
	return d, nil
}

func (d *Desktop) Bus() *eventbus.Bus { return d.bus }
func (d *Desktop) Windows() *window.Store { return d.windows }
func (d *Desktop) Plugins() *plugin.Manager { return d.plugins }
func (d *Desktop) Components() *component.Registry { return d.components }
func (d *Desktop) MCP() *mcp.Bridge { return d.mcp }
func (d *Desktop) Python() *PythonAPI { return d.python }
func (d *Desktop) Layout() *storage.LayoutStorage { return d.layout }
func (d *Desktop) Config() *config.Config { return d.cfg }

// RegisterPlugin adds p to the plugin manager.
func (d *Desktop) RegisterPlugin(p plugin.Plugin) error {
	return d.plugins.RegisterPlugin(p)
}

// Start launches the main and worker loops, loads manifests and opens the
// autostart plugins plus those that were open at the last shutdown.
// Background loops outlive ctx and stop in Shutdown.
func (d *Desktop) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.started = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := d.api.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("api bridge stopped", "error", err)
		}
	}()
	go func() {
		defer d.wg.Done()
		if err := d.mcp.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("mcp bridge stopped", "error", err)
		}
	}()

	d.loadManifests()
	if d.cfg.Plugins.WatchManifests {
		d.startWatcher()
	}

	for _, id := range d.restoreList() {
		if _, ok := d.plugins.GetPlugin(id); !ok {
			d.logger.Warn("autostart plugin is not registered", "plugin", id)
			continue
		}
		if err := d.OpenPlugin(ctx, id); err != nil {
			d.logger.Error("failed to open plugin at startup", "plugin", id, "error", err)
		}
	}

	d.logger.Info("desktop started",
		"plugins", len(d.plugins.GetAllPlugins()),
		"components", len(d.components.GetComponents()))
	return nil
}

func (d *Desktop) restoreList() []string {
	ids := slices.Clone(d.cfg.Plugins.Autostart)
	if d.layout != nil {
		open, err := d.layout.OpenPlugins()
		if err != nil {
			d.logger.Warn("failed to read saved sessions", "error", err)
		}
		ids = append(ids, open...)
	}
	var out []string
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// Shutdown saves window layouts and plugin sessions, deactivates plugins
// and stops the background loops. It returns ctx's error if the loops do
// not stop in time. Calling it again is a no-op.
func (d *Desktop) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn("failed to stop manifest watcher", "error", err)
		}
	}

	var errs []error
	if err := d.persist(); err != nil {
		errs = append(errs, err)
	}

	for _, p := range d.plugins.GetActivePlugins() {
		d.plugins.DeactivatePlugin(ctx, p.ID())
	}

	if cancel != nil {
		cancel()
	}
	_ = d.mainPort.Close()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for bridges: %w", ctx.Err()))
	}

	d.unwatch()
	d.components.Close()
	if d.ownsLayout {
		if err := d.layout.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.bus.Clear()
	d.logger.Info("desktop stopped")
	return errors.Join(errs...)
}

// persist writes every window's layout and every plugin's session.
func (d *Desktop) persist() error {
	if d.layout == nil {
		return nil
	}
	var errs []error
	for _, rec := range d.windows.Snapshot().All() {
		if err := d.layout.SaveLayout(rec); err != nil {
			errs = append(errs, fmt.Errorf("saving layout for %s: %w", rec.ID, err))
		}
		if _, ok := d.plugins.GetPlugin(rec.ID); !ok {
			continue
		}
		session := storage.PluginSession{PluginID: rec.ID, WasOpen: rec.IsOpen}
		if c, ok := d.components.GetComponent(rec.ID); ok {
			session.State = c.State
		}
		if err := d.layout.SaveSession(session); err != nil {
			errs = append(errs, fmt.Errorf("saving session for %s: %w", rec.ID, err))
		}
	}
	return errors.Join(errs...)
}
