// Package watcher provides drop-directory ingestion: PDFs placed in a
// watched directory are picked up and ingested automatically.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Writes arrive as bursts of events while the file is copied in; the last
// event wins after the debounce window.
const defaultDebounce = 400 * time.Millisecond

// Watcher watches one directory and invokes onDrop for each PDF that
// appears or changes.
type Watcher struct {
	dir      string
	onDrop   func(path string)
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the event debounce window.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher over dir. onDrop is called with the full path
// of each settled PDF file.
func NewWatcher(dir string, onDrop func(path string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:         dir,
		onDrop:      onDrop,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Files already present in the directory are handed
// to onDrop first, so a backlog from downtime is not lost. Runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Debug("watcher starting", zap.String("dir", w.dir))

	entries, err := os.ReadDir(w.dir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && isPDF(e.Name()) {
				w.onDrop(filepath.Join(w.dir, e.Name()))
			}
		}
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !isPDF(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	w.logger.Debug("file event", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[ev.Name]; ok {
		t.Stop()
	}
	path := ev.Name
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()

		// Renamed-away files fire events too; only settled files count.
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return
		}
		w.onDrop(path)
	})
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		for _, t := range w.debounceMap {
			t.Stop()
		}
		w.debounceMap = make(map[string]*time.Timer)
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
	})
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
