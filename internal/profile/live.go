package profile

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/Ewasince/photo-compresser/internal/logger"
)

const reloadDebounce = 200 * time.Millisecond

// LiveRegistry keeps a registry in sync with its file. A reload that fails
// to parse or validate keeps the previous registry.
type LiveRegistry struct {
	path   string
	logger logrus.FieldLogger

	mu       sync.RWMutex
	registry Registry
	reloads  int

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLiveRegistry loads path. Call Watch to follow changes.
func NewLiveRegistry(path string, logger logrus.FieldLogger) (*LiveRegistry, error) {
	l := &LiveRegistry{path: path, logger: logger}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the profile file path.
func (l *LiveRegistry) Path() string {
	return l.path
}

// Current returns the registry in effect.
func (l *LiveRegistry) Current() Registry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.registry
}

// Reloads returns how many times the file was loaded successfully.
func (l *LiveRegistry) Reloads() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reloads
}

// Reload reads the file again.
func (l *LiveRegistry) Reload() error {
	reg, err := Load(l.path)
	if err != nil {
		return err
	}
	if err := reg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	l.registry = reg
	l.reloads++
	l.mu.Unlock()
	return nil
}

// Watch follows the file's directory so editors that replace the file are
// noticed too. It returns once the watcher is running.
func (l *LiveRegistry) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch folder %s: %w", dir, err)
	}

	l.watcher = w
	l.done = make(chan struct{})
	go l.processEvents()
	return nil
}

// Close stops watching.
func (l *LiveRegistry) Close() error {
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	<-l.done
	return err
}

func (l *LiveRegistry) processEvents() {
	defer close(l.done)

	target := filepath.Clean(l.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce: editors emit several events per save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := l.Reload(); err != nil {
					logger.WithFileOperation(l.logger, l.path, "reload").WithError(err).Warn("Profile reload failed, keeping previous profiles")
					return
				}
				logger.WithFileOperation(l.logger, l.path, "reload").Info("Profiles reloaded")
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warnf("Profile watcher error: %v", err)
		}
	}
}
