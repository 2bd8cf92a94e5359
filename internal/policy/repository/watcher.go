package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change before reloading.
const DefaultDebounce = 500 * time.Millisecond

// Reloadable is anything that can re-read its policies.
type Reloadable interface {
	Reload(ctx context.Context) error
}

// Watcher reloads policies when files in the policy directory change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	target   Reloadable
	logger   *slog.Logger
	debounce time.Duration
	onReload func(error)
}

// NewWatcher watches dir and reloads target on changes to policy files.
func NewWatcher(dir string, target Reloadable, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	return &Watcher{
		watcher:  watcher,
		target:   target,
		logger:   logger,
		debounce: debounce,
	}, nil
}

// OnReload registers a callback invoked after each reload attempt. Call before Run.
func (w *Watcher) OnReload(fn func(error)) {
	w.onReload = fn
}

// Close stops watching. It is safe to call after Run has returned.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run watches for file changes and reloads. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	var (
		mu       sync.Mutex
		debounce *time.Timer
		wg       sync.WaitGroup
	)
	stop := func() {
		mu.Lock()
		if debounce != nil && debounce.Stop() {
			wg.Done()
		}
		mu.Unlock()
		wg.Wait()
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				stop()
				return nil
			}
			if !isPolicyFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			mu.Lock()
			if debounce != nil && debounce.Stop() {
				wg.Done()
			}
			wg.Add(1)
			debounce = time.AfterFunc(w.debounce, func() {
				defer wg.Done()
				w.reload(ctx)
			})
			mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				stop()
				return nil
			}
			w.logger.Warn("policy watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	err := w.target.Reload(ctx)
	if err != nil {
		w.logger.Error("policy hot-reload failed", slog.Any("error", err))
	} else {
		w.logger.Info("policy hot-reload: policies reloaded")
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
