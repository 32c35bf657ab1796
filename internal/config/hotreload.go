package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadHandler is called with the freshly loaded config after the file changes.
type ReloadHandler func(cfg *Config)

// Watcher reloads the config file when it changes on disk.
// The parent directory is watched so atomic rename-into-place saves are seen.
// Bursts of events are debounced.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	handlers []ReloadHandler
	stop     chan struct{}
	mu       sync.Mutex
}

// NewWatcher creates a watcher for configPath.
func NewWatcher(configPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     filepath.Clean(configPath),
		fsw:      fsw,
		debounce: 300 * time.Millisecond,
		stop:     make(chan struct{}),
	}, nil
}

// OnReload registers a handler.
func (w *Watcher) OnReload(h ReloadHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.loop()
	slog.Info("config watcher started", "path", w.path)
	return nil
}

// Stop halts the watcher.
func (w *Watcher) Stop() {
	close(w.stop)
	w.fsw.Close()
	slog.Info("config watcher stopped")
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// Keep running on the previous config.
		slog.Error("config reload failed", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	handlers := append([]ReloadHandler(nil), w.handlers...)
	w.mu.Unlock()

	for _, h := range handlers {
		h(cfg)
	}
	slog.Info("config reloaded", "path", w.path)
}
