package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Toggle is the live enable switch for daemon request processing.
type Toggle struct {
	on atomic.Bool
}

func NewToggle(on bool) *Toggle {
	t := &Toggle{}
	t.on.Store(on)
	return t
}

func (t *Toggle) Enabled() bool { return t.on.Load() }

func (t *Toggle) Set(on bool) { t.on.Store(on) }

const defaultDebounce = 500 * time.Millisecond

// Watcher re-reads the config file when it changes and applies the enabled
// flag to a Toggle. Other settings only take effect on restart.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	toggle   *Toggle
	log      zerolog.Logger
	debounce time.Duration
}

// NewWatcher watches the directory holding path so editors that replace
// the file by rename are picked up too.
func NewWatcher(path string, toggle *Toggle, logger zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %q: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		watcher:  fw,
		path:     abs,
		toggle:   toggle,
		log:      logger.With().Str("component", "config_watcher").Logger(),
		debounce: defaultDebounce,
	}, nil
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.debounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("config reload failed, keeping current state")
		return
	}
	if prev := w.toggle.Enabled(); prev != cfg.Enabled {
		w.toggle.Set(cfg.Enabled)
		w.log.Info().Bool("enabled", cfg.Enabled).Msg("daemon request processing toggled")
	}
}
