// Package watch triggers ingestion when spreadsheets appear or change in
// watched directories.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before OnFile runs.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors directories for created or written workbooks.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.Mutex
	debounce time.Duration
	logger   *slog.Logger

	// OnFile runs once per settled change with the absolute file path.
	OnFile  func(ctx context.Context, path string) error
	OnError func(path string, err error)
}

type fileState struct {
	lastModified time.Time
	size         int64
	processing   bool
	// pending marks a change that settled while OnFile was running.
	pending bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// NewWatcher creates a new directory watcher.
func NewWatcher(opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// IsWorkbook reports whether path names an .xlsx file that is not an
// office lock file or hidden file.
func IsWorkbook(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".xlsx")
}

// Add starts watching a directory.
func (w *Watcher) Add(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	stat, err := os.Stat(absDir)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", absDir)
	}

	if err := w.watcher.Add(absDir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	w.logger.Info("watching directory", "dir", absDir)
	return nil
}

// Run starts the watch loop. Blocks until context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	timers := make(map[string]*time.Timer)
	var timerMu sync.Mutex
	defer func() {
		timerMu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !IsWorkbook(event.Name) {
				continue
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			timerMu.Lock()
			if timer, exists := timers[absPath]; exists {
				timer.Stop()
			}
			timers[absPath] = time.AfterFunc(w.debounce, func() {
				w.handleChange(ctx, absPath)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError("", err)
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	stat, err := os.Stat(path)
	if err != nil {
		// Removed or renamed before it settled.
		if !os.IsNotExist(err) {
			w.reportError(path, err)
		}
		return
	}

	w.mu.Lock()
	state, seen := w.files[path]
	if !seen {
		state = &fileState{}
		w.files[path] = state
	}
	if state.processing {
		state.pending = true
		w.mu.Unlock()
		return
	}
	if seen && stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size {
		w.mu.Unlock()
		return
	}
	state.processing = true
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()

	w.logger.Info("workbook changed", "path", path, "size", stat.Size())
	if w.OnFile != nil {
		if err := w.OnFile(ctx, path); err != nil {
			w.reportError(path, err)
		}
	}

	w.mu.Lock()
	state.processing = false
	rerun := state.pending
	state.pending = false
	w.mu.Unlock()

	// Re-check against the recorded state so a save made mid-ingest is not lost.
	if rerun {
		w.handleChange(ctx, path)
	}
}

func (w *Watcher) reportError(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
		return
	}
	w.logger.Error("watch error", "path", path, "error", err)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
