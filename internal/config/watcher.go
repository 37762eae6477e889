package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"nexus/internal/logging"
)

// debounceWindow is how long the watcher waits after the last write event
// before reloading.
const debounceWindow = 300 * time.Millisecond

// Watch monitors the config file and invokes onReload with the freshly
// loaded config whenever it changes. Parse failures keep the previous
// config; only reloadable knobs should be applied by the callback.
// Returns immediately; the watcher stops when ctx is cancelled.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors replace files on save, which drops
	// a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	log := logging.L("config")
	go func() {
		defer watcher.Close()

		// Rapid saves coalesce into one reload after a quiet period. The
		// timer resets on every matching event, so the file read always
		// sees the final write of a burst.
		var (
			debounce *time.Timer
			fire     <-chan time.Time
		)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(debounceWindow)
					fire = debounce.C
					continue
				}
				if !debounce.Stop() {
					<-debounce.C
				}
				debounce.Reset(debounceWindow)
			case <-fire:
				debounce = nil
				fire = nil

				cfg, err := Load(path)
				if err != nil {
					log.Warn("config reload failed, keeping previous",
						zap.Error(err))
					continue
				}
				log.Info("config reloaded")
				onReload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
