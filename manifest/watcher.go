package manifest

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is what happened to a manifest file once events settled.
type Operation int

const (
	OpModify Operation = iota // created or written
	OpDelete                  // removed or renamed away
)

func (op Operation) String() string {
	switch op {
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ChangeHandler is called once per settled manifest change.
type ChangeHandler func(path string, op Operation)

// DefaultDebounce is how long a path must stay quiet before it is reported.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports changes to manifest files in one directory. Bursts of
// events for the same path are collapsed into a single callback.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	debounce  time.Duration
	onChange  ChangeHandler
	logger    *slog.Logger

	mu       sync.Mutex
	pending  map[string]time.Time
	running  bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher for dir. The directory is created if it
// does not exist so that manifests dropped in later are picked up.
func NewWatcher(dir string, debounce time.Duration, onChange ChangeHandler, logger *slog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		dir:       dir,
		debounce:  debounce,
		onChange:  onChange,
		logger:    logger.With("component", "manifest-watcher"),
		pending:   make(map[string]time.Time),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. Calling it twice is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fsWatcher.Add(w.dir); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.processDebounce()
	return nil
}

// Stop ends watching and waits for the event goroutines to exit. No
// callback runs after Stop returns.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	if wasRunning {
		w.wg.Wait()
	}
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !IsManifestFile(event.Name) || event.Op == fsnotify.Chmod {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounce() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

// flushPending reports paths that have been quiet for the debounce window.
func (w *Watcher) flushPending() {
	w.mu.Lock()
	if w.onChange == nil || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	now := time.Now()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		op := OpModify
		if _, err := os.Stat(path); os.IsNotExist(err) {
			op = OpDelete
		}
		w.logger.Debug("manifest changed", "path", path, "op", op)
		w.onChange(path, op)
	}
}
