package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PhotoRecord is the primary record in Tracker, keyed by the composite
// (Filename, AlbumName) pair, per spec.md §3.
type PhotoRecord struct {
	Filename       string
	AlbumName      string
	RemoteID       string
	SizeBytes      int64
	DownloadedAt   time.Time
	LocalRelPath   string
	DeletedLocally bool
	LastCheckedAt  time.Time
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}

	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}

	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}
	}

	return t
}

// Get returns the PhotoRecord for (filename, album), or (nil, nil) if no
// record exists. Per spec.md §4.A, reads never fail other than with
// ErrUnavailable (handled at Open) or a key-miss.
func (t *Tracker) Get(ctx context.Context, filename, album string) (*PhotoRecord, error) {
	row := t.db.QueryRowContext(ctx, `
		SELECT filename, album_name, remote_id, size_bytes, downloaded_at,
		       local_relpath, deleted_locally, last_checked_at
		FROM photo_records WHERE filename = ? AND album_name = ?`,
		filename, album)

	return scanRecord(row)
}

func scanRecord(row *sql.Row) (*PhotoRecord, error) {
	var (
		rec          PhotoRecord
		downloadedAt sql.NullString
		lastChecked  sql.NullString
		deleted      int
	)

	err := row.Scan(&rec.Filename, &rec.AlbumName, &rec.RemoteID, &rec.SizeBytes,
		&downloadedAt, &rec.LocalRelPath, &deleted, &lastChecked)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil //nolint:nilnil // sentinel for "not found"
		}

		return nil, fmt.Errorf("tracker: get: %w", err)
	}

	rec.DownloadedAt = parseTime(downloadedAt)
	rec.LastCheckedAt = parseTime(lastChecked)
	rec.DeletedLocally = deleted != 0

	return &rec, nil
}

// RecordDownload inserts or updates the record for (filename, album),
// setting deleted_locally=false and downloaded_at=now, per spec.md §4.A.
func (t *Tracker) RecordDownload(
	ctx context.Context, filename, album, remoteID string, size int64, localRelPath string,
) error {
	now := formatTime(time.Now())

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO photo_records
			(filename, album_name, remote_id, size_bytes, downloaded_at,
			 local_relpath, deleted_locally, last_checked_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(filename, album_name) DO UPDATE SET
			remote_id = excluded.remote_id,
			size_bytes = excluded.size_bytes,
			downloaded_at = excluded.downloaded_at,
			local_relpath = excluded.local_relpath,
			deleted_locally = 0,
			last_checked_at = excluded.last_checked_at`,
		filename, album, remoteID, size, now, localRelPath, now)
	if err != nil {
		return fmt.Errorf("%w: record_download(%s, %s): %v", ErrWriteFailed, filename, album, err)
	}

	return nil
}

// MarkDeleted sets deleted_locally=true, preserving all other fields for
// forensics, per spec.md §4.A. If no record exists yet for the key, one is
// created from the key alone (remote_id and size_bytes take their
// empty/zero column defaults).
func (t *Tracker) MarkDeleted(ctx context.Context, filename, album string) error {
	now := formatTime(time.Now())

	res, err := t.db.ExecContext(ctx, `
		UPDATE photo_records SET deleted_locally = 1, last_checked_at = ?
		WHERE filename = ? AND album_name = ?`,
		now, filename, album)
	if err != nil {
		return fmt.Errorf("%w: mark_deleted(%s, %s): %v", ErrWriteFailed, filename, album, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: mark_deleted(%s, %s): %v", ErrWriteFailed, filename, album, err)
	}

	if n == 0 {
		_, err := t.db.ExecContext(ctx, `
			INSERT INTO photo_records
				(filename, album_name, deleted_locally, last_checked_at)
			VALUES (?, ?, 1, ?)`,
			filename, album, now)
		if err != nil {
			return fmt.Errorf("%w: mark_deleted insert(%s, %s): %v", ErrWriteFailed, filename, album, err)
		}
	}

	return nil
}

// TouchSeen updates last_checked_at only, per spec.md §4.A.
func (t *Tracker) TouchSeen(ctx context.Context, filename, album string) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE photo_records SET last_checked_at = ?
		WHERE filename = ? AND album_name = ?`,
		formatTime(time.Now()), filename, album)
	if err != nil {
		return fmt.Errorf("%w: touch_seen(%s, %s): %v", ErrWriteFailed, filename, album, err)
	}

	return nil
}

// RecordIterator is a finite, not-restartable, filename-ordered sequence of
// PhotoRecord within one album, per spec.md §4.A's iter_album contract.
type RecordIterator struct {
	rows *sql.Rows
}

// IterAlbum returns a lazy, filename-ordered iterator over every record in
// album. The caller must call Close when done (or after draining Next to
// false), even on early abandonment.
func (t *Tracker) IterAlbum(ctx context.Context, album string) (*RecordIterator, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT filename, album_name, remote_id, size_bytes, downloaded_at,
		       local_relpath, deleted_locally, last_checked_at
		FROM photo_records WHERE album_name = ?
		ORDER BY filename ASC`, album)
	if err != nil {
		return nil, fmt.Errorf("tracker: iter_album(%s): %w", album, err)
	}

	return &RecordIterator{rows: rows}, nil
}

// Next advances the iterator. Returns (record, true, nil) while records
// remain, (nil, false, nil) when exhausted, or (nil, false, err) on a
// read error.
func (it *RecordIterator) Next() (*PhotoRecord, bool, error) {
	if !it.rows.Next() {
		return nil, false, it.rows.Err()
	}

	var (
		rec          PhotoRecord
		downloadedAt sql.NullString
		lastChecked  sql.NullString
		deleted      int
	)

	err := it.rows.Scan(&rec.Filename, &rec.AlbumName, &rec.RemoteID, &rec.SizeBytes,
		&downloadedAt, &rec.LocalRelPath, &deleted, &lastChecked)
	if err != nil {
		return nil, false, fmt.Errorf("tracker: iter_album scan: %w", err)
	}

	rec.DownloadedAt = parseTime(downloadedAt)
	rec.LastCheckedAt = parseTime(lastChecked)
	rec.DeletedLocally = deleted != 0

	return &rec, true, nil
}

// Close releases the iterator's underlying rows handle.
func (it *RecordIterator) Close() error {
	return it.rows.Close()
}

// AlbumSummary reports per-album counters, used by the CLI's `status`
// command. It is a read-only aggregate, not part of spec.md §4.A's
// core contract, but a natural extension of iter_album for reporting.
type AlbumSummary struct {
	AlbumName    string
	Tracked      int
	DeletedLocal int
	BytesOnDisk  int64
}

// Summarize aggregates every tracked album into per-album counts, ordered
// by album name.
func (t *Tracker) Summarize(ctx context.Context) ([]AlbumSummary, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT album_name,
		       COUNT(*),
		       SUM(CASE WHEN deleted_locally = 1 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN deleted_locally = 0 THEN size_bytes ELSE 0 END)
		FROM photo_records
		GROUP BY album_name
		ORDER BY album_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("tracker: summarize: %w", err)
	}
	defer rows.Close()

	var summaries []AlbumSummary

	for rows.Next() {
		var s AlbumSummary

		if err := rows.Scan(&s.AlbumName, &s.Tracked, &s.DeletedLocal, &s.BytesOnDisk); err != nil {
			return nil, fmt.Errorf("tracker: summarize scan: %w", err)
		}

		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tracker: summarize: %w", err)
	}

	return summaries, nil
}
