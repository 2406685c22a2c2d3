package scheduler

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HenningUe/icloud-sync-go/internal/albumfilter"
	"github.com/HenningUe/icloud-sync-go/internal/icloud"
	"github.com/HenningUe/icloud-sync-go/internal/syncengine"
	"github.com/HenningUe/icloud-sync-go/internal/tracker"
)

// emptyCloudSession is a minimal syncengine.CloudSession stub, enough to
// exercise Scheduler's cadence logic without a real CloudSession fake: no
// albums means RunCycle completes immediately with an empty Summary.
type emptyCloudSession struct{}

func (emptyCloudSession) LoadPersistedSession() error { return nil }
func (emptyCloudSession) HasPersistedSession() bool   { return false }

func (emptyCloudSession) Authenticate(context.Context) (icloud.AuthResult, error) {
	return icloud.AuthOK, nil
}

func (emptyCloudSession) Request2FA(context.Context) error        { return nil }
func (emptyCloudSession) Verify2FA(context.Context, string) error { return nil }
func (emptyCloudSession) TrustSession(context.Context) error      { return nil }

func (emptyCloudSession) ListAlbums(context.Context) ([]icloud.Album, error) {
	return nil, nil
}

func (emptyCloudSession) ListPhotos(context.Context, icloud.Album) ([]icloud.RemotePhoto, error) {
	return nil, nil
}

func (emptyCloudSession) Download(context.Context, string) (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(nil)), 0, nil
}

func newTestEngine(t *testing.T, syncRoot string) *syncengine.Engine {
	t.Helper()

	return syncengine.New(emptyCloudSession{}, nil, nil, nil, syncengine.Options{
		SyncRoot:           syncRoot,
		AllowMultiInstance: true,
		AlbumFilter:        albumfilter.Options{IncludePersonal: true, IncludeShared: true},
	}, nil)
}

func TestScheduler_SingleModeRunsExactlyOneCycle(t *testing.T) {
	eng := newTestEngine(t, t.TempDir())
	s := New(eng, nil, Options{Mode: ModeSingle}, nil)

	err := s.Run(context.Background())
	require.NoError(t, err)
}

func TestScheduler_ContinuousModeStopsOnCancel(t *testing.T) {
	eng := newTestEngine(t, t.TempDir())

	s := New(eng, nil, Options{
		Mode:         ModeContinuous,
		SyncInterval: time.Hour,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.NoError(t, err)
}

func TestScheduler_ContinuousModeWithWatchStopsOnCancel(t *testing.T) {
	syncRoot := t.TempDir()
	eng := newTestEngine(t, syncRoot)

	s := New(eng, nil, Options{
		Mode:          ModeContinuous,
		SyncInterval:  time.Hour,
		WatchSyncRoot: syncRoot,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.NoError(t, err)
}

// Maintenance runs Tracker.Backup plus an integrity check (spec.md §4.H);
// runMaintenance must not treat a healthy database's integrity check as a
// fatal error, and a backup file should land in the backup directory.
func TestScheduler_MaintenanceBacksUpAndChecksIntegrity(t *testing.T) {
	dbDir := t.TempDir()
	trk, err := tracker.Open(context.Background(), filepath.Join(dbDir, "tracker.db"), tracker.Options{}, nil)
	require.NoError(t, err)

	t.Cleanup(func() { trk.Close() })

	eng := newTestEngine(t, t.TempDir())

	s := New(eng, trk, Options{
		Mode:                ModeContinuous,
		SyncInterval:        time.Hour,
		MaintenanceInterval: 20 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err = s.Run(ctx)
	assert.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dbDir, "backups"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	assert.NoError(t, trk.CheckIntegrity(context.Background()))
}

func TestOptions_ApplyDefaults(t *testing.T) {
	opts := Options{}
	opts.applyDefaults()

	assert.Equal(t, defaultSyncInterval, opts.SyncInterval)
	assert.Equal(t, defaultMaintenanceInterval, opts.MaintenanceInterval)
}
