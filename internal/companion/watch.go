package companion

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/deskpal/deskpal/internal/logging"
)

// watchSettings watches the settings file directory and reloads the store
// when the file is edited externally. Returns a stop function.
func (s *Session) watchSettings(ctx context.Context) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	path := s.store.Path()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(path), err)
	}
	base := filepath.Base(path)

	go func() {
		var debounceTimer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				// Our own atomic saves also land here; skip events that
				// arrive right after a write we made ourselves.
				if time.Since(s.store.LastWrite()) < 2*time.Second {
					continue
				}
				// Debounce: editors may write multiple times.
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(300*time.Millisecond, func() {
					logging.Infof("settings file changed externally, reloading")
					if err := s.store.Reload(); err != nil {
						logging.Errorf("settings reload failed: %v", err)
						return
					}
					s.RebuildSchedule()
					s.emit(Event{Kind: "reload", Text: "settings reloaded", At: s.now()})
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warnf("settings watcher error: %v", err)
			}
		}
	}()

	logging.Infof("watching %s for changes", path)
	return func() { watcher.Close() }, nil
}
