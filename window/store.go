// Package window tracks the on-screen state of plugin windows.
//
// The store is a small state machine over Records. It knows nothing about
// plugins: the desktop shell maps plugin lifecycle onto these transitions.
// Each transition swaps in a new immutable Snapshot and notifies watchers.
package window

import (
	"io"
	"log/slog"
	"maps"
	"sync"
)

// DefaultViewport is the maximize target when none is configured.
var DefaultViewport = Size{Width: 1280, Height: 800}

// RemoteID returns the window id used for a component served by a remote.
func RemoteID(remoteID, componentID string) string {
	return remoteID + "." + componentID
}

// Option configures a Store.
type Option func(*Store)

// WithViewport sets the size a maximized window takes.
func WithViewport(size Size) Option {
	return func(s *Store) { s.viewport = size }
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store owns the window records. All mutation goes through its methods.
type Store struct {
	mu       sync.Mutex
	current  Snapshot
	viewport Size
	logger   *slog.Logger

	watchMu   sync.RWMutex
	watchers  map[uint64]func(Snapshot)
	nextWatch uint64
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		current:  Snapshot{windows: map[string]Record{}},
		viewport: DefaultViewport,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		watchers: make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Get returns the current record for id.
func (s *Store) Get(id string) (Record, bool) {
	return s.Snapshot().Get(id)
}

// HighestZ returns the largest z index handed out so far.
func (s *Store) HighestZ() int {
	return s.Snapshot().HighestZ()
}

// OpenWindows returns the open windows ordered back to front.
func (s *Store) OpenWindows() []Record {
	return s.Snapshot().Open()
}

// Focused returns the frontmost open window.
func (s *Store) Focused() (Record, bool) {
	return s.Snapshot().Focused()
}

// Watch calls fn after every state transition. The returned function stops
// the notifications.
func (s *Store) Watch(fn func(Snapshot)) (cancel func()) {
	s.watchMu.Lock()
	s.nextWatch++
	id := s.nextWatch
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

// mutate applies fn to a copy of the window map and publishes the result.
// fn returns false to abandon the change.
func (s *Store) mutate(op string, fn func(windows map[string]Record, highestZ *int) bool) bool {
	s.mu.Lock()
	windows := maps.Clone(s.current.windows)
	highestZ := s.current.highestZ
	if !fn(windows, &highestZ) {
		s.mu.Unlock()
		return false
	}
	s.current = Snapshot{
		windows:  windows,
		highestZ: highestZ,
		version:  s.current.version + 1,
	}
	snap := s.current
	s.mu.Unlock()

	s.logger.Debug("window state changed", "op", op, "version", snap.version)
	s.notify(snap)
	return true
}

func (s *Store) notify(snap Snapshot) {
	s.watchMu.RLock()
	fns := make([]func(Snapshot), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// update runs fn against an existing record; unknown ids are a logged no-op.
func (s *Store) update(op, id string, fn func(rec *Record, highestZ *int) bool) bool {
	return s.mutate(op, func(windows map[string]Record, highestZ *int) bool {
		rec, ok := windows[id]
		if !ok {
			s.logger.Warn("window not registered", "op", op, "window", id)
			return false
		}
		if !fn(&rec, highestZ) {
			return false
		}
		windows[id] = rec
		return true
	})
}

// RegisterWindow inserts rec if its id is new. Registering an id again is a
// merge: title and content are refreshed while position, size, z index and
// visibility are kept unless listed in overrides. This keeps re-entrant
// initialization harmless.
func (s *Store) RegisterWindow(rec Record, overrides ...Field) bool {
	if rec.ID == "" {
		s.logger.Warn("refusing to register window without id")
		return false
	}

	var override Field
	for _, f := range overrides {
		override |= f
	}

	return s.mutate("register", func(windows map[string]Record, highestZ *int) bool {
		existing, ok := windows[rec.ID]
		if !ok {
			rec.PreviousPosition = clonePosition(rec.PreviousPosition)
			rec.PreviousSize = cloneSize(rec.PreviousSize)
			rec.ZIndex = claimZ(windows, rec.ID, rec.ZIndex, highestZ)
			windows[rec.ID] = rec
			return true
		}

		if rec.Title != "" {
			existing.Title = rec.Title
		}
		if rec.Content != nil {
			existing.Content = rec.Content
		}
		if override&FieldPosition != 0 {
			existing.Position = rec.Position
		}
		if override&FieldSize != 0 {
			existing.Size = rec.Size
		}
		if override&FieldZIndex != 0 {
			existing.ZIndex = claimZ(windows, rec.ID, rec.ZIndex, highestZ)
		}
		if override&FieldVisibility != 0 {
			existing.IsOpen = rec.IsOpen
			existing.IsMinimized = rec.IsMinimized
			existing.IsMaximized = rec.IsMaximized
		}
		windows[rec.ID] = existing
		return true
	})
}

// claimZ returns the z index window id may use when it asks for z. Zero
// means never stacked. A z already held by another window is replaced by
// a fresh one above the stack so the focused window stays unambiguous.
func claimZ(windows map[string]Record, id string, z int, highestZ *int) int {
	if z == 0 {
		return 0
	}
	for otherID, other := range windows {
		if otherID != id && other.ZIndex == z {
			*highestZ++
			return *highestZ
		}
	}
	if z > *highestZ {
		*highestZ = z
	}
	return z
}

// Unregister removes a window record entirely.
func (s *Store) Unregister(id string) bool {
	return s.mutate("unregister", func(windows map[string]Record, _ *int) bool {
		if _, ok := windows[id]; !ok {
			return false
		}
		delete(windows, id)
		return true
	})
}

// SetOpen shows or hides a window. It never changes focus.
func (s *Store) SetOpen(id string, open bool) bool {
	return s.update("setOpen", id, func(rec *Record, _ *int) bool {
		rec.IsOpen = open
		if open {
			rec.IsMinimized = false
		}
		return true
	})
}

// Minimize sets the minimized flag.
func (s *Store) Minimize(id string, minimized bool) bool {
	return s.update("minimize", id, func(rec *Record, _ *int) bool {
		rec.IsMinimized = minimized
		return true
	})
}

// Maximize toggles the maximized state. Maximizing remembers the current
// position and size; toggling again restores them exactly. Z order is not
// touched.
func (s *Store) Maximize(id string) bool {
	viewport := s.viewport
	return s.update("maximize", id, func(rec *Record, _ *int) bool {
		if rec.IsMaximized {
			if rec.PreviousPosition != nil {
				rec.Position = *rec.PreviousPosition
			}
			if rec.PreviousSize != nil {
				rec.Size = *rec.PreviousSize
			}
			rec.PreviousPosition = nil
			rec.PreviousSize = nil
			rec.IsMaximized = false
			return true
		}

		pos, size := rec.Position, rec.Size
		rec.PreviousPosition = &pos
		rec.PreviousSize = &size
		rec.Position = Position{}
		rec.Size = viewport
		rec.IsMaximized = true
		return true
	})
}

// Focus brings a window to the front by giving it the next z index.
func (s *Store) Focus(id string) bool {
	return s.update("focus", id, func(rec *Record, highestZ *int) bool {
		*highestZ++
		rec.ZIndex = *highestZ
		return true
	})
}

// Move sets a window's position.
func (s *Store) Move(id string, pos Position) bool {
	return s.update("move", id, func(rec *Record, _ *int) bool {
		rec.Position = pos
		return true
	})
}

// Resize sets a window's size.
func (s *Store) Resize(id string, size Size) bool {
	return s.update("resize", id, func(rec *Record, _ *int) bool {
		rec.Size = size
		return true
	})
}

// Close hides a window but keeps its record so position and size survive a
// relaunch.
func (s *Store) Close(id string) bool {
	return s.update("close", id, func(rec *Record, _ *int) bool {
		rec.IsOpen = false
		return true
	})
}

// UpdateWindow applies a patch without touching the z index.
func (s *Store) UpdateWindow(id string, patch Patch) bool {
	return s.update("updateWindow", id, func(rec *Record, _ *int) bool {
		applyPatch(rec, patch)
		return true
	})
}

// UpdateWindows applies several patches as one transition. Unknown ids are
// skipped; it reports whether any window changed.
func (s *Store) UpdateWindows(patches map[string]Patch) bool {
	return s.mutate("updateWindows", func(windows map[string]Record, _ *int) bool {
		changed := false
		for id, patch := range patches {
			rec, ok := windows[id]
			if !ok {
				s.logger.Warn("window not registered", "op", "updateWindows", "window", id)
				continue
			}
			applyPatch(&rec, patch)
			windows[id] = rec
			changed = true
		}
		return changed
	})
}

func applyPatch(rec *Record, patch Patch) {
	if patch.Title != nil {
		rec.Title = *patch.Title
	}
	if patch.Content != nil {
		rec.Content = patch.Content
	}
	if patch.IsOpen != nil {
		rec.IsOpen = *patch.IsOpen
	}
	if patch.IsMinimized != nil {
		rec.IsMinimized = *patch.IsMinimized
	}
	if patch.Position != nil {
		rec.Position = *patch.Position
	}
	if patch.Size != nil {
		rec.Size = *patch.Size
	}
}

func clonePosition(p *Position) *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func cloneSize(s *Size) *Size {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
