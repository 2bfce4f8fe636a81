package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for a burst of writes to settle.
const DefaultDebounce = 100 * time.Millisecond

// Watch reloads the file at path whenever it changes and calls fn with
// the result, until ctx is done. Invalid files are reported through fn's
// error and do not stop watching.
//
// The containing directory is watched, so editors that replace the file
// by renaming are handled. Writes within debounce of each other cause one
// reload; 0 uses DefaultDebounce. fn runs on Watch's goroutine.
func Watch(ctx context.Context, path string, debounce time.Duration, fn func(Config, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fn(Config{}, fmt.Errorf("config: watch %s: %w", path, err))
		case <-timer.C:
			cfg, err := Load(abs)
			fn(cfg, err)
		}
	}
}
