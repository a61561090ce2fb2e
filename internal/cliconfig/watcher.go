package cliconfig

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Reloadable receives settings that may change while the engine runs.
// *lookup.Engine implements it.
type Reloadable interface {
	SetAPIKey(key string)
	SetHTTPTimeout(d time.Duration)
}

// Watcher reloads the config file on change and pushes the API key and
// HTTP timeout to a running engine. Values fixed by flags or environment
// variables are not overridden.
type Watcher struct {
	path    string
	changed map[string]bool
	target  Reloadable
	logger  zerolog.Logger
	delay   time.Duration

	mu       sync.Mutex
	current  Config
	debounce *time.Timer
}

// NewWatcher creates a watcher for path. current is the resolved
// configuration the engine was started with.
func NewWatcher(path string, current Config, changed map[string]bool, target Reloadable, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:    path,
		changed: changed,
		target:  target,
		logger:  logger.With().Str("component", "config_watcher").Str("path", path).Logger(),
		delay:   100 * time.Millisecond,
		current: current,
	}
}

// Run watches the directory of the config file until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so the directory is watched.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Debug().Msg("Watching config file")

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

// Reload reads the config file and applies changed settings.
func (w *Watcher) Reload() error {
	fc, err := LoadFileConfig(w.path)
	if err != nil {
		return fmt.Errorf("load %s: %w", w.path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	next := w.current
	if err := ApplyFileConfig(&next, fc, w.changed); err != nil {
		return err
	}
	if err := ApplyEnvConfig(&next, w.changed); err != nil {
		return err
	}

	if next.APIKey != w.current.APIKey {
		w.target.SetAPIKey(next.APIKey)
		w.current.APIKey = next.APIKey
	}
	if next.HTTPTimeout > 0 && next.HTTPTimeout != w.current.HTTPTimeout {
		w.target.SetHTTPTimeout(next.HTTPTimeout)
		w.current.HTTPTimeout = next.HTTPTimeout
	}
	return nil
}

// Current returns the configuration as last applied.
func (w *Watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, func() {
		if err := w.Reload(); err != nil {
			w.logger.Warn().Err(err).Msg("Config reload failed")
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}
