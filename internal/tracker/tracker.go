// Package tracker implements Component A of the sync engine: a durable,
// SQLite-backed store mapping (filename, album) to PhotoRecord, with
// integrity checking, rotating backups, and crash recovery.
//
// Grounded on the teacher's internal/sync/ledger.go (sole-writer *sql.DB via
// SetMaxOpenConns(1), prepared statements, transactional writes) and
// internal/sync/migrations.go (goose provider setup).
package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// defaultBackupRetention is the bounded ring size spec.md §3 prescribes
// ("default 5") for TrackerBackup retention.
const defaultBackupRetention = 5

// Tracker is a durable key-value store from (filename, album) to
// PhotoRecord. The zero value is not usable; construct with Open.
type Tracker struct {
	db        *sql.DB
	dbPath    string
	backupDir string
	retention int
	logger    *slog.Logger
}

// Options customizes Open. Zero value uses spec.md defaults.
type Options struct {
	// BackupDir overrides the rotating-backup directory. Defaults to a
	// "backups" subdirectory next to dbPath.
	BackupDir string

	// Retention overrides the bounded backup ring size. Defaults to 5.
	Retention int
}

// Open opens or creates the store at dbPath. On open it runs an integrity
// check; on failure it attempts recovery from the most recent valid backup,
// and falls back to a fresh empty store (logging the event) if no backup
// validates. Open fails with ErrUnavailable only if a fresh store cannot be
// created (disk full, permissions) — per spec.md §4.A, reads otherwise never
// fail except with a key-miss.
func Open(ctx context.Context, dbPath string, opts Options, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backupDir := opts.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(dbPath), "backups")
	}

	retention := opts.Retention
	if retention <= 0 {
		retention = defaultBackupRetention
	}

	t := &Tracker{
		dbPath:    dbPath,
		backupDir: backupDir,
		retention: retention,
		logger:    logger,
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating tracker directory: %v", ErrUnavailable, err)
	}

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating backup directory: %v", ErrUnavailable, err)
	}

	if err := t.openAndVerify(ctx); err != nil {
		return nil, err
	}

	return t, nil
}

// openAndVerify opens the database handle, runs the integrity check, and
// on failure attempts recovery before falling back to a fresh store.
func (t *Tracker) openAndVerify(ctx context.Context) error {
	db, err := sql.Open("sqlite", t.dbPath)
	if err != nil {
		return fmt.Errorf("%w: opening database: %v", ErrUnavailable, err)
	}

	// Sole-writer pattern, matching the teacher's ledger.go/baseline.go:
	// one *sql.DB, one connection, serializing all writes through it.
	db.SetMaxOpenConns(1)

	t.db = db

	if err := t.checkIntegrity(ctx); err != nil {
		t.logger.Warn("tracker: integrity check failed, attempting recovery",
			slog.String("error", err.Error()))

		db.Close()

		return t.recover(ctx)
	}

	if err := runMigrations(ctx, t.db, t.logger); err != nil {
		db.Close()
		return fmt.Errorf("%w: running migrations: %v", ErrUnavailable, err)
	}

	return nil
}

// checkIntegrity runs SQLite's own structural scan. A freshly created
// (empty) database passes trivially, which is intentional: Open's job is to
// detect corruption of an *existing* file, not to require pre-existing data.
func (t *Tracker) checkIntegrity(ctx context.Context) error {
	var result string

	if err := t.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity_check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity_check reported: %s", result)
	}

	return nil
}

// CheckIntegrity runs the same structural scan Open performs, for the
// Scheduler's maintenance pass (spec.md §4.H: "Tracker.backup() plus an
// integrity check"). It does not attempt recovery on failure — that is
// Open's job at process start — it only reports the finding so the
// maintenance loop can log it.
func (t *Tracker) CheckIntegrity(ctx context.Context) error {
	return t.checkIntegrity(ctx)
}

// recover attempts RestoreFromBackup; if that fails or no backup is usable,
// it removes the corrupt file and starts a fresh, empty store.
func (t *Tracker) recover(ctx context.Context) error {
	if restored := t.restoreFromBackupLocked(ctx); restored {
		t.logger.Info("tracker: recovered from backup", slog.String("path", t.dbPath))
		return t.reopenFresh(ctx, false)
	}

	t.logger.Warn("tracker: no valid backup found, creating fresh store",
		slog.String("path", t.dbPath))

	return t.reopenFresh(ctx, true)
}

// reopenFresh (re)opens the database file, optionally discarding it first,
// and runs migrations. wipe=true removes dbPath before opening (used when
// no backup could be restored); wipe=false just reopens the file a restore
// already replaced.
func (t *Tracker) reopenFresh(ctx context.Context, wipe bool) error {
	if wipe {
		if err := os.Remove(t.dbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: removing corrupt database: %v", ErrUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", t.dbPath)
	if err != nil {
		return fmt.Errorf("%w: reopening database: %v", ErrUnavailable, err)
	}

	db.SetMaxOpenConns(1)
	t.db = db

	if err := runMigrations(ctx, t.db, t.logger); err != nil {
		db.Close()
		return fmt.Errorf("%w: running migrations on fresh store: %v", ErrUnavailable, err)
	}

	return nil
}

// Close releases the underlying database handle. Safe to call once; the
// Tracker must not be used afterward.
func (t *Tracker) Close() error {
	if t.db == nil {
		return nil
	}

	return t.db.Close()
}
