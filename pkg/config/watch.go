package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spideyz0r/searchbar/pkg/debounce"
	"github.com/spideyz0r/searchbar/pkg/logging"
)

// reloadDelay coalesces the burst of events an editor produces on save.
const reloadDelay = 100 * time.Millisecond

// Watch calls fn with the reloaded configuration whenever the file at path
// changes, until ctx is done. The parent directory is watched so files
// replaced by rename are picked up too. Invalid files are logged and skipped.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(*Config)) error {
	log := logging.Component(logger, "config")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	events := 0
	reload := debounce.New(events, reloadDelay)
	reload.OnSettle(func(int) {
		ClearCache()
		cfg, err := Load(path)
		if err != nil {
			log.Warn("ignoring invalid config", "path", path, "error", err)
			return
		}
		log.Info("config reloaded", "path", path)
		fn(cfg)
	})

	go func() {
		defer func() {
			reload.Stop()
			if err := watcher.Close(); err != nil {
				log.Warn("failed to close config watcher", "error", err)
			}
		}()

		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					events++
					reload.Set(events)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
