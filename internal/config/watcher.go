package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads the debate policy knobs when features.yaml changes.
// Only the policy section is swapped at runtime; service endpoints and
// worker wiring require a restart.
type Watcher struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	current *Features
}

// NewWatcher loads the initial config and prepares the file watcher.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	initial, err := Load()
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{path: path, logger: logger, watcher: fw, current: initial}, nil
}

// Current returns the latest loaded configuration.
func (w *Watcher) Current() *Features {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start watches the config file's directory until ctx is cancelled.
// Watching the directory instead of the file survives editors and config
// mounts that replace the file atomically.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load()
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.current = next
	w.mu.Unlock()
	w.logger.Info("Config reloaded",
		zap.Int("max_rounds", next.Debate.MaxRounds),
		zap.Float64("convergence_threshold", next.Debate.ConvergenceThreshold),
	)
}
