package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"pagekit/api/internal/logging"
)

// Watch reloads the configuration whenever the overlay file changes and
// hands the result to onChange. The watcher is registered before Watch
// returns; events are processed in the background until ctx is done.
//
// The parent directory is watched so that editors that replace the file by
// rename are still observed.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", target, err)
	}

	go func() {
		defer watcher.Close()
		log := logging.FromContext(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				cfg, err := LoadWithFile(target)
				if err != nil {
					log.Warn().Err(err).Str("file", target).Msg("config reload failed")
					continue
				}
				log.Info().Str("file", target).Msg("config reloaded")
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}
