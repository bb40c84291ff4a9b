package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cybergodev/scorehider"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchSettings calls apply with the reloaded settings each time the file
// at path is written or replaced, until ctx is done. A file that fails to
// load is logged and skipped, keeping the last good settings in force.
//
// The parent directory is watched so editors that save by rename are seen.
func WatchSettings(ctx context.Context, path string, logger *zap.Logger, apply func(scorehider.Settings)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve settings path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			settings, err := LoadSettings(abs)
			if err != nil {
				logger.Warn("settings reload failed", zap.String("path", abs), zap.Error(err))
				continue
			}
			logger.Info("settings reloaded", zap.String("path", abs))
			apply(settings)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("settings watcher error", zap.Error(err))
		}
	}
}
