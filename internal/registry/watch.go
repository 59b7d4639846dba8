package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the definitions file and reloads the registry each time the
// file is written. It runs until ctx is cancelled.
//
// A failed reload (unreadable file, invalid YAML, bad definition) is logged
// and the previous metric set stays active; polling is never interrupted by
// a broken edit.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.path); err != nil {
		return err
	}

	slog.Info("watching metric definitions for changes", "path", s.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove):
				// An atomic save replaced the inode; the new file may not
				// be in place yet when the event arrives.
				if err := rearmWatch(watcher, s.path); err != nil {
					slog.Error("re-watching definitions file failed",
						"path", s.path, "error", err)
					continue
				}
			case !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create):
				continue
			}

			if err := s.Reload(); err != nil {
				slog.Error("definitions reload failed, keeping previous metric set",
					"path", s.path, "error", err)
			}

			// Editors that save via rename also emit a create for the new
			// file; keep the watch on the current inode.
			_ = watcher.Add(s.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("definitions watcher error", "error", err)
		}
	}
}

// rearmWatch re-adds the path after its inode was replaced, retrying
// briefly because the replacement file may land after the event.
func rearmWatch(watcher *fsnotify.Watcher, path string) error {
	var err error
	for i := 0; i < 10; i++ {
		if err = watcher.Add(path); err == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return err
}
