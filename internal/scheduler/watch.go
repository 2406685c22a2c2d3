package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces a burst of filesystem events (e.g. a user
// deleting many photos at once) into a single early wake, per
// SPEC_FULL.md §4.H's enrichment note.
const watchDebounce = 2 * time.Second

// watchSyncRoot watches syncRoot and each album directory present in it
// when the watch starts (album directories created later are not added)
// for delete events and sends to wake on each coalesced burst, per SPEC_FULL.md §4.H: "a filesystem delete event
// under a tracked album directory wakes the scheduler early ... instead
// of leaving a user-visible deletion unrecognized by the Tracker until
// the next scheduled tick." This is strictly additive — a failure to
// start the watcher degrades to fixed-interval polling with a logged
// warning, never an abort, since fsnotify is never a dependency of
// correctness (it can only trigger mark_deleted sooner, never a
// download).
func watchSyncRoot(ctx context.Context, syncRoot string, wake chan<- struct{}, logger *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("scheduler: starting fsnotify watcher failed, falling back to fixed interval",
			slog.String("error", err.Error()))

		return
	}
	defer watcher.Close()

	if err := watcher.Add(syncRoot); err != nil {
		logger.Warn("scheduler: watching sync root failed, falling back to fixed interval",
			slog.String("path", syncRoot), slog.String("error", err.Error()))

		return
	}

	if entries, err := os.ReadDir(syncRoot); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			if err := watcher.Add(filepath.Join(syncRoot, entry.Name())); err != nil {
				logger.Warn("scheduler: watching album directory failed",
					slog.String("path", entry.Name()), slog.String("error", err.Error()))
			}
		}
	}

	var debounce *time.Timer

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

			if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			if debounce == nil {
				debounce = time.AfterFunc(watchDebounce, func() {
					select {
					case wake <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(watchDebounce)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}

			logger.Warn("scheduler: fsnotify error", slog.String("error", watchErr.Error()))
		}
	}
}
