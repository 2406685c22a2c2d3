package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/HenningUe/icloud-sync-go/internal/icloud"
	"github.com/HenningUe/icloud-sync-go/pkg/filenorm"
)

// reconcileAlbum implements spec.md §4.G step 5: ensure the album's
// directory exists, enumerate its remote photos, and for each one either
// SKIP or DOWNLOAD per the Tracker-consultation rules, honoring
// max_consecutive_failures, max_downloads_per_cycle, and the cooperative
// shutdown/pause checkpoints between photos.
func (e *Engine) reconcileAlbum(
	ctx context.Context,
	album icloud.Album,
	summary *Summary,
	shutdown ShutdownSignal,
	pause PauseSignal,
) error {
	dir := e.syncRootAlbumDir(album.Name)

	if !e.opts.DryRun {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating album directory %s: %w", dir, err)
		}
	}

	photos, err := e.cloud.ListPhotos(ctx, album)
	if err != nil {
		return fmt.Errorf("listing photos for album %s: %w", album.Name, err)
	}

	photos = dedupeByFilename(photos, e.logger)

	consecutiveFailures := 0

	for _, photo := range photos {
		if shutdownRequested(shutdown) {
			return errShutdown
		}

		waitWhilePaused(ctx, pause)

		if e.opts.MaxDownloads > 0 && summary.Downloaded >= e.opts.MaxDownloads {
			return nil
		}

		if consecutiveFailures >= e.opts.MaxConsecutiveFailures {
			e.logger.Warn("syncengine: max consecutive failures reached, skipping rest of album",
				slog.String("album", album.Name))

			return nil
		}

		failed, err := e.reconcilePhoto(ctx, album, photo, dir, summary)
		if err != nil {
			e.logger.Warn("syncengine: photo reconcile error",
				slog.String("album", album.Name), slog.String("filename", photo.Filename),
				slog.String("error", err.Error()))
		}

		if failed {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}
	}

	return nil
}

// dedupeByFilename defensively collapses duplicate filenames within one
// album, preferring the first occurrence, per spec.md §9's open question
// on list_photos duplicates.
func dedupeByFilename(photos []icloud.RemotePhoto, logger *slog.Logger) []icloud.RemotePhoto {
	seen := make(map[string]bool, len(photos))
	out := make([]icloud.RemotePhoto, 0, len(photos))

	for _, p := range photos {
		if seen[p.Filename] {
			logger.Warn("syncengine: duplicate filename in album, keeping first occurrence",
				slog.String("album", p.AlbumName), slog.String("filename", p.Filename))

			continue
		}

		seen[p.Filename] = true

		out = append(out, p)
	}

	return out
}

// reconcilePhoto applies spec.md §4.G's per-photo decision tree for one
// RemotePhoto. Returns failed=true only for DOWNLOAD attempts that error,
// so the caller can track max_consecutive_failures (SKIP decisions are
// never failures).
func (e *Engine) reconcilePhoto(
	ctx context.Context,
	album icloud.Album,
	photo icloud.RemotePhoto,
	albumDir string,
	summary *Summary,
) (failed bool, err error) {
	filename, ok := filenorm.Normalize(photo.Filename)
	if !ok {
		e.logger.Warn("syncengine: skipping photo with unsafe/empty normalized name",
			slog.String("album", album.Name), slog.String("raw_filename", photo.Filename))

		return false, nil
	}

	if e.opts.MaxFileSizeMB > 0 && photo.SizeBytes > int64(e.opts.MaxFileSizeMB)*1024*1024 {
		e.logger.Info("syncengine: skipping photo exceeding max_file_size_mb",
			slog.String("album", album.Name), slog.String("filename", filename))

		if e.tracker != nil {
			_ = e.tracker.TouchSeen(ctx, filename, album.Name)
		}

		summary.Skipped++

		return false, nil
	}

	localPath := albumDir + string(os.PathSeparator) + filename

	decision, err := e.decide(ctx, filename, album.Name, photo, localPath)
	if err != nil {
		return false, err
	}

	switch decision {
	case decisionSkip:
		summary.Skipped++

		if e.tracker != nil {
			_ = e.tracker.TouchSeen(ctx, filename, album.Name)
		}

		return false, nil

	case decisionMarkDeletedAndSkip:
		summary.Skipped++

		if e.tracker != nil {
			if err := e.tracker.MarkDeleted(ctx, filename, album.Name); err != nil {
				return false, fmt.Errorf("mark_deleted(%s, %s): %w", filename, album.Name, err)
			}
		}

		return false, nil

	case decisionDownload:
		if e.opts.DryRun {
			summary.Downloaded++
			summary.BytesWritten += photo.SizeBytes

			return false, nil
		}

		written, err := e.downloadPhoto(ctx, photo, localPath)
		if err != nil {
			return true, fmt.Errorf("downloading %s/%s: %w", album.Name, filename, err)
		}

		if e.tracker != nil {
			relPath := album.Name + "/" + filename
			if err := e.tracker.RecordDownload(ctx, filename, album.Name, photo.RemoteID, written, relPath); err != nil {
				return true, fmt.Errorf("record_download(%s, %s): %w", filename, album.Name, err)
			}
		}

		summary.Downloaded++
		summary.BytesWritten += written

		return false, nil

	default:
		return false, errors.New("syncengine: unreachable decision")
	}
}

type decision int

const (
	decisionDownload decision = iota
	decisionSkip
	decisionMarkDeletedAndSkip
)

// decide implements spec.md §4.G's per-key Tracker-consultation rules.
func (e *Engine) decide(
	ctx context.Context, filename, albumName string, photo icloud.RemotePhoto, localPath string,
) (decision, error) {
	if e.tracker == nil {
		if localFileState(localPath, photo.SizeBytes) == localFileOK {
			return decisionSkip, nil
		}

		return decisionDownload, nil
	}

	rec, err := e.tracker.Get(ctx, filename, albumName)
	if err != nil {
		return decisionDownload, fmt.Errorf("tracker get(%s, %s): %w", filename, albumName, err)
	}

	if rec == nil {
		return decisionDownload, nil
	}

	if rec.DeletedLocally {
		return decisionSkip, nil
	}

	switch localFileState(localPath, photo.SizeBytes) {
	case localFileOK:
		return decisionSkip, nil
	case localFileMissing:
		// Record exists, not marked deleted, but the local file is
		// missing: the user deleted it locally since the last sync.
		// Honor that deletion rather than re-downloading, per
		// spec.md §4.G.
		return decisionMarkDeletedAndSkip, nil
	default:
		// Present but size-mismatched: not a local deletion, so fall
		// through to "otherwise -> DOWNLOAD" and re-fetch the
		// changed/partial file, per spec.md §4.G.
		return decisionDownload, nil
	}
}

type localState int

const (
	localFileOK localState = iota
	localFileMissing
	localFileMismatch
)

// localFileState classifies localPath against expectedSize, per spec.md
// §4.G's tie-break: an unknown remote size (<=0) makes mere presence
// sufficient, and only a genuinely missing file counts as a local
// deletion — a present-but-wrong-size file is a mismatch, not a deletion.
func localFileState(localPath string, expectedSize int64) localState {
	info, err := os.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return localFileMissing
		}

		return localFileMismatch
	}

	if expectedSize <= 0 || info.Size() == expectedSize {
		return localFileOK
	}

	return localFileMismatch
}
