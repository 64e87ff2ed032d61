package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settle is how long a file must stay quiet before it is rebuilt. Editors
// often write a file in several steps.
const settle = 100 * time.Millisecond

// watchFiles calls rebuild with the path of every watched file that changes
// until ctx is done. Parent directories are watched so files replaced by
// rename are still seen.
func watchFiles(ctx context.Context, log *zap.Logger, paths []string, rebuild func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	targets := make(map[string]string, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = p
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
		log.Debug("watching", zap.String("dir", dir))
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if p, ok := targets[abs]; ok {
				pending[p] = true
				timer.Reset(settle)
			}

		case <-timer.C:
			for _, p := range paths {
				if pending[p] {
					delete(pending, p)
					rebuild(p)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))
		}
	}
}
