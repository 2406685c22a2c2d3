package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const backupTimeLayout = "20060102T150405.000000000Z"

// backupPrefix/backupSuffix bracket the timestamp in a backup's filename,
// so the ring can both generate and recognize its own files.
const (
	backupPrefix = "deletion_tracker-"
	backupSuffix = ".db"
)

// Backup takes an atomic, consistent snapshot of the live database into
// t.backupDir and rotates out backups beyond t.retention (oldest first),
// per spec.md §3's "bounded ring buffer (default 5)". Grounded on the
// teacher's internal/tokenfile's write-to-temp-then-rename idiom, applied
// here to a whole-file SQLite snapshot via VACUUM INTO.
func (t *Tracker) Backup(ctx context.Context) (string, error) {
	name := backupPrefix + time.Now().UTC().Format(backupTimeLayout) + backupSuffix
	dest := filepath.Join(t.backupDir, name)
	tmp := dest + ".tmp"

	os.Remove(tmp) //nolint:errcheck // best-effort cleanup of a stale partial

	// VACUUM INTO writes a complete, consistent snapshot in one pass; it
	// cannot target an existing file, hence the tmp-then-rename step.
	if _, err := t.db.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		return "", fmt.Errorf("%w: backup vacuum: %v", ErrWriteFailed, err)
	}

	f, err := os.Open(tmp)
	if err == nil {
		_ = f.Sync()
		_ = f.Close()
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", fmt.Errorf("%w: backup rename: %v", ErrWriteFailed, err)
	}

	t.rotateBackups()

	return dest, nil
}

// rotateBackups removes the oldest backups beyond t.retention. Errors
// removing an individual file are logged, not returned: a stale backup
// left on disk is never worse than losing the whole ring to one bad
// os.Remove.
func (t *Tracker) rotateBackups() {
	files := t.listBackupsNewestFirst()
	if len(files) <= t.retention {
		return
	}

	for _, name := range files[t.retention:] {
		path := filepath.Join(t.backupDir, name)
		if err := os.Remove(path); err != nil {
			t.logger.Warn("tracker: failed to prune old backup",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

// listBackupsNewestFirst returns this tracker's backup filenames (not full
// paths), newest first. The timestamp format sorts lexically, so a plain
// string sort suffices.
func (t *Tracker) listBackupsNewestFirst() []string {
	entries, err := os.ReadDir(t.backupDir)
	if err != nil {
		return nil
	}

	var names []string

	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, backupPrefix) || !strings.HasSuffix(n, backupSuffix) {
			continue
		}

		names = append(names, n)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	return names
}

// RestoreFromBackup replaces the live store with the newest backup whose
// integrity check passes, reopening the Tracker's handle against it.
// Returns (false, nil) if no backup validates; the caller keeps using the
// existing store untouched in that case.
func (t *Tracker) RestoreFromBackup(ctx context.Context) (bool, error) {
	path, ok := t.newestValidBackup(ctx)
	if !ok {
		return false, nil
	}

	if t.db != nil {
		_ = t.db.Close()
	}

	if err := atomicCopy(path, t.dbPath); err != nil {
		return false, fmt.Errorf("%w: restoring backup: %v", ErrUnavailable, err)
	}

	if err := t.reopenFresh(ctx, false); err != nil {
		return false, err
	}

	return true, nil
}

// restoreFromBackupLocked is the recovery-path variant used from Open,
// before t.db holds a usable handle: it works directly against files on
// disk, validating candidate backups with a throwaway connection rather
// than the Tracker's own (not-yet-open) one.
func (t *Tracker) restoreFromBackupLocked(ctx context.Context) bool {
	path, ok := t.newestValidBackup(ctx)
	if !ok {
		return false
	}

	if err := atomicCopy(path, t.dbPath); err != nil {
		t.logger.Warn("tracker: failed to copy backup into place",
			slog.String("path", path), slog.String("error", err.Error()))

		return false
	}

	return true
}

// newestValidBackup scans the ring newest-first, opening each candidate
// with a scratch connection and running the same integrity check Open
// uses, returning the first one that passes.
func (t *Tracker) newestValidBackup(ctx context.Context) (string, bool) {
	for _, name := range t.listBackupsNewestFirst() {
		path := filepath.Join(t.backupDir, name)
		if validateBackupFile(ctx, path) {
			return path, true
		}

		t.logger.Warn("tracker: backup failed integrity check, skipping",
			slog.String("path", path))
	}

	return "", false
}

func validateBackupFile(ctx context.Context, path string) bool {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return false
	}
	defer db.Close()

	db.SetMaxOpenConns(1)

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return false
	}

	return result == "ok"
}

// atomicCopy copies src onto dst via a temp file in dst's directory,
// fsyncing before the rename, so a crash mid-restore never leaves a
// truncated dbPath.
func atomicCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	tmp := dst + ".restoring"

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp) //nolint:errcheck

		return fmt.Errorf("copying: %w", err)
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp) //nolint:errcheck

		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("renaming into place: %w", err)
	}

	return nil
}
