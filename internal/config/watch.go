package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay coalesces the bursts of events editors produce on save.
const DefaultReloadDelay = 200 * time.Millisecond

// Watch reloads the merged config whenever the workspace config file
// changes and passes the result to onChange. Invalid results are skipped.
// It blocks until ctx is done.
//
// The workspace directory is watched rather than the file so that saves
// done by rename are seen.
func Watch(ctx context.Context, workspaceRoot string, delay time.Duration, onChange func(Config)) error {
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	dir := WorkspaceDir(workspaceRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Join(dir, "config.json")
	timer := time.NewTimer(delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			timer.Reset(delay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("config watcher: %w", err)
		case <-timer.C:
			cfg := Load(workspaceRoot)
			if cfg.Validate() == nil {
				onChange(cfg)
			}
		}
	}
}
