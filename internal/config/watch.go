package config

import (
	"context"
	"fmt"
	"path/filepath"

	"procsight/internal/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path whenever it is written and passes the new config to
// onChange. Invalid reloads are logged and skipped. Blocks until ctx ends.
func Watch(ctx context.Context, path string, log logger.ILogger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so editors that replace the file are still seen.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != abs {
				continue
			}
			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Reload(abs)
			if err != nil {
				log.Warn("Config", "Reload failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			log.Info("Config", "Config reloaded", map[string]interface{}{"path": abs})
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("Config", "Watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}
