package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// RunWatch converges once, then again every time an attribute file
// changes, until ctx is cancelled. Failed runs are logged and the watch
// continues.
func RunWatch(ctx context.Context, o *Options) error {
	logger, err := setupLogging(o)
	if err != nil {
		return err
	}
	log := logger.WithComponent("watch")

	files := o.attributeFiles()
	if len(files) == 0 {
		return errors.New("watch needs at least one attribute file")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	// Editors replace files by rename, so watch the directories.
	watched := map[string]bool{}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		watched[abs] = true
		if err := w.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", f, err)
		}
	}

	reconverge := func() {
		if _, err := convergeOnce(ctx, o, logger); err != nil {
			log.Error("Convergence failed", "error", err)
		}
	}
	reconverge()

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watcher error", "error", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(ev.Name)] || ev.Op == fsnotify.Chmod {
				continue
			}
			log.Info("Attribute file changed", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			trigger = timer.C
		case <-trigger:
			trigger = nil
			reconverge()
		}
	}
}
