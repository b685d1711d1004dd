// Package watcher re-runs ingestion when files under the content root change.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mike-a-ellis/ctxindex/internal/extract"
)

const defaultDebounce = 2 * time.Second

// Watcher watches a content root recursively. Bursts of changes to
// supported files collapse into one onChange call after the debounce
// period. Callbacks run on the watcher's own goroutine, one at a time.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func(ctx context.Context)
	onRemove func(ctx context.Context, path string)
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the root must be quiet before onChange runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for root. onRemove may be nil.
func New(root string, onChange func(ctx context.Context), onRemove func(ctx context.Context, path string), opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		debounce: defaultDebounce,
		onChange: onChange,
		onRemove: onRemove,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start adds watches for root and its subdirectories, then processes
// events in the background until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return errors.New("watcher already started")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addTree(fw, w.root); err != nil {
		fw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.watcher = fw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.logger.Debug("watcher started", "root", w.root, "debounce", w.debounce)

	go w.run(ctx, fw, w.done)
	return nil
}

// Stop ends event processing and waits for any running callback to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer func() {
		fw.Close()
		w.mu.Lock()
		w.watcher = nil
		w.cancel = nil
		w.mu.Unlock()
		close(done)
	}()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if w.handleEvent(ctx, fw, ev) {
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			}
		case <-fire:
			fire = nil
			w.logger.Debug("watcher running change handler")
			w.onChange(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// handleEvent reports whether ev should schedule an onChange call.
func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	w.logger.Debug("watcher event", "op", ev.Op.String(), "path", ev.Name)

	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addTree(fw, ev.Name); err != nil {
				w.logger.Warn("watcher failed to add directory", "path", ev.Name, "error", err)
			}
			return true
		}
		return extract.Supported(ev.Name)
	case ev.Has(fsnotify.Write):
		return extract.Supported(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if extract.Supported(ev.Name) && w.onRemove != nil {
			w.onRemove(ctx, ev.Name)
		}
	}
	return false
}

// addTree watches dir and every non-hidden directory below it.
func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
