package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bassista/go_devwatch/internal/logger"
)

const watchDebounce = 200 * time.Millisecond

// Watch reloads the configuration from confPath whenever config.yaml changes
// and hands the result to onChange. Files that fail to load or validate are
// logged and ignored, the previous configuration stays in effect.
//
// The parent directory is watched, not the file, so editors that replace the
// file through a temp+rename are still observed. Cancel ctx to stop watching.
func Watch(ctx context.Context, confPath string, onChange func(*Config)) error {
	if onChange == nil {
		return errors.New("onChange callback is required")
	}
	log := logger.WithComponent("config")
	base := ConfigName + "." + ConfigType

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(confPath); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	reload := func() {
		cfg, err := Load(confPath)
		if err != nil {
			log.Warnf("config reload failed, keeping previous configuration: %v", err)
			return
		}
		log.Infof("config file %s reloaded", filepath.Join(confPath, base))
		onChange(cfg)
	}

	go func() {
		defer watcher.Close()

		// editors emit write+chmod or rename+create bursts; reload once per burst
		var debounce *time.Timer
		schedule := func() {
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, reload)
		}

		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					schedule()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("watcher error: %v", err)
			}
		}
	}()

	return nil
}
