package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ChangeListener is notified with the freshly reloaded Config whenever the
// watched file changes. Implementations must not block.
type ChangeListener func(*Config)

// Watcher hot-reloads a Config from disk on every write, rename, or create
// event fsnotify reports for its path, re-running Load (so a malformed
// rewrite is rejected and the last-good Config kept) and notifying every
// subscribed listener with the result.
type Watcher struct {
	path    string
	logger  *logrus.Logger
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	current   *Config
	listeners []ChangeListener
}

// NewWatcher loads path once and wraps the result in a Watcher. Call Watch
// to start reacting to filesystem events.
func NewWatcher(path string, logger *logrus.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, logger: logger, watcher: fsw, current: cfg}, nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers l for every future successful reload.
func (w *Watcher) Subscribe(l ChangeListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// Watch begins reacting to changes to the underlying file until stop is
// closed.
func (w *Watcher) Watch(stop <-chan struct{}) error {
	if err := w.watcher.Add(w.path); err != nil {
		return err
	}
	go func() {
		defer w.watcher.Close()
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				w.reload()
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.WithError(err).Error("config watcher error")
			case <-stop:
				return
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("reloading config failed, keeping previous configuration")
		return
	}

	w.mu.Lock()
	w.current = cfg
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()

	for _, l := range listeners {
		l(cfg)
	}
}
