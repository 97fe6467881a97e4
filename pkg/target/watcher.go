package target

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDebounce coalesces bursts of file events (editors and config
// pushes write state files in several steps) into one reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the target state when the state file changes. A
// failed reload keeps the last good state.
type Watcher struct {
	path    string
	loader  *Loader
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	current *State
}

// NewWatcher creates a watcher for the state file at path.
func NewWatcher(path string, loader *Loader, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:   path,
		loader: loader,
		logger: logger.With().Str("component", "state-watcher").Logger(),
	}
}

// Current returns the last successfully loaded state.
func (w *Watcher) Current() *State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start loads the state once and begins watching for changes. onReload
// is called with each successfully reloaded state; reload failures are
// logged and the last good state stays current. The initial load must
// succeed. The parent directory is watched so rename-replace writes
// stay visible.
func (w *Watcher) Start(ctx context.Context, onReload func(*State)) error {
	state, err := w.loader.Load(ctx, w.path)
	if err != nil {
		return err
	}
	w.setCurrent(state)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.processEvents(ctx, onReload)

	w.logger.Info().Str("path", w.path).Msg("watching target state")
	return nil
}

func (w *Watcher) setCurrent(state *State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = state
}

// processEvents processes file system events and triggers debounced reloads.
func (w *Watcher) processEvents(ctx context.Context, onReload func(*State)) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("state file changed")

			// Debounce reload
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDebounce, func() {
				w.reload(ctx, onReload)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

// reload re-reads the state file and swaps it in on success.
func (w *Watcher) reload(ctx context.Context, onReload func(*State)) {
	state, err := w.loader.Load(ctx, w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("state reload failed, keeping last good state")
		return
	}

	w.setCurrent(state)
	w.logger.Info().
		Int("services", len(state.Services)).
		Msg("target state reloaded")

	if onReload != nil {
		onReload(state)
	}
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
