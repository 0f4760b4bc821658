// Package configwatch calls back when a config file changes on disk.
package configwatch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nkiryanov/authcore/internal/logger"
)

const defaultDebounce = 500 * time.Millisecond

// Watch file at path and call onChange after writes settle for debounce
// The parent directory is watched so editors replacing the file are noticed too
// Returned channel is closed when watcher stopped
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(), l logger.Logger) (<-chan struct{}, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("error while resolving config path. Err: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error while creating watcher. Err: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("error while watching config dir. Err: %w", err)
	}

	stopped := make(chan struct{})
	reload := make(chan struct{}, 1)

	go func() {
		defer close(stopped)
		defer watcher.Close() // nolint:errcheck

		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				l.Debug("Config watcher stopped by context", "path", path)
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
					select {
					case reload <- struct{}{}:
					default:
					}
				}

			case <-reload:
				if timer != nil {
					timer.Reset(debounce)
				} else {
					timer = time.NewTimer(debounce)
					fire = timer.C
				}

			case <-fire:
				timer = nil
				fire = nil
				l.Info("Config file changed, reloading", "path", path)
				onChange()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.Error("Config watcher error", "error", err)
			}
		}
	}()

	return stopped, nil
}
