package syncengine

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HenningUe/icloud-sync-go/internal/albumfilter"
	"github.com/HenningUe/icloud-sync-go/internal/icloud"
	"github.com/HenningUe/icloud-sync-go/internal/tracker"
)

// fakeCloudSession is the in-memory CloudSession test double used in place
// of the teacher's fake Graph server, per SPEC_FULL.md §8.
type fakeCloudSession struct {
	albums []icloud.Album
	photos map[string][]icloud.RemotePhoto
	data   map[string][]byte

	authResult icloud.AuthResult
}

func (f *fakeCloudSession) LoadPersistedSession() error { return nil }
func (f *fakeCloudSession) HasPersistedSession() bool   { return false }

func (f *fakeCloudSession) Authenticate(context.Context) (icloud.AuthResult, error) {
	if f.authResult == "" {
		return icloud.AuthOK, nil
	}

	return f.authResult, nil
}

func (f *fakeCloudSession) Request2FA(context.Context) error      { return nil }
func (f *fakeCloudSession) Verify2FA(context.Context, string) error { return nil }
func (f *fakeCloudSession) TrustSession(context.Context) error   { return nil }

func (f *fakeCloudSession) ListAlbums(context.Context) ([]icloud.Album, error) {
	return f.albums, nil
}

func (f *fakeCloudSession) ListPhotos(_ context.Context, album icloud.Album) ([]icloud.RemotePhoto, error) {
	return f.photos[album.Name], nil
}

func (f *fakeCloudSession) Download(_ context.Context, remoteID string) (io.ReadCloser, int64, error) {
	data := f.data[remoteID]
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func newTestEngine(t *testing.T, cloud CloudSession, syncRoot string) (*Engine, *tracker.Tracker) {
	t.Helper()

	trk, err := tracker.Open(context.Background(), filepath.Join(t.TempDir(), "tracker.db"), tracker.Options{}, nil)
	require.NoError(t, err)

	t.Cleanup(func() { trk.Close() })

	eng := New(cloud, trk, nil, nil, Options{
		SyncRoot: syncRoot,
		LockPath: filepath.Join(syncRoot, ".lock"),
		AlbumFilter: albumfilter.Options{
			IncludePersonal: true,
			IncludeShared:   true,
		},
	}, nil)

	return eng, trk
}

func tripFixture() (*fakeCloudSession, string) {
	data := []byte(make([]byte, 1024))

	return &fakeCloudSession{
		albums: []icloud.Album{{Name: "Trip", Kind: icloud.AlbumPersonal}},
		photos: map[string][]icloud.RemotePhoto{
			"Trip": {{RemoteID: "r1", Filename: "IMG_1.JPG", SizeBytes: 1024, AlbumName: "Trip", Kind: icloud.AlbumPersonal}},
		},
		data: map[string][]byte{"r1": data},
	}, "IMG_1.JPG"
}

// S1 — fresh sync, no 2FA.
func TestRunCycle_FreshSyncDownloads(t *testing.T) {
	cloud, filename := tripFixture()
	syncRoot := t.TempDir()
	eng, trk := newTestEngine(t, cloud, syncRoot)

	ctx := context.Background()

	summary, err := eng.RunCycle(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)

	info, err := os.Stat(filepath.Join(syncRoot, "Trip", filename))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), info.Size())

	rec, err := trk.Get(ctx, filename, "Trip")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.DeletedLocally)
}

// S2 — local deletion respected.
func TestRunCycle_LocalDeletionRespected(t *testing.T) {
	cloud, filename := tripFixture()
	syncRoot := t.TempDir()
	eng, trk := newTestEngine(t, cloud, syncRoot)
	ctx := context.Background()

	_, err := eng.RunCycle(ctx, nil, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(syncRoot, "Trip", filename)))

	summary, err := eng.RunCycle(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Downloaded)

	_, statErr := os.Stat(filepath.Join(syncRoot, "Trip", filename))
	assert.True(t, os.IsNotExist(statErr))

	rec, err := trk.Get(ctx, filename, "Trip")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.DeletedLocally)
}

// A locally present file whose size no longer matches the remote listing
// is re-downloaded rather than treated as a local deletion: spec.md
// §4.G's tree only routes a MISSING local file to mark_deleted, and
// otherwise falls through to DOWNLOAD.
func TestRunCycle_SizeMismatchRedownloadsRatherThanMarkingDeleted(t *testing.T) {
	cloud, filename := tripFixture()
	syncRoot := t.TempDir()
	eng, trk := newTestEngine(t, cloud, syncRoot)
	ctx := context.Background()

	_, err := eng.RunCycle(ctx, nil, nil)
	require.NoError(t, err)

	localPath := filepath.Join(syncRoot, "Trip", filename)
	require.NoError(t, os.WriteFile(localPath, []byte("truncated"), 0o644))

	summary, err := eng.RunCycle(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)

	info, err := os.Stat(localPath)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), info.Size())

	rec, err := trk.Get(ctx, filename, "Trip")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.DeletedLocally)
}

// S3 — idempotence.
func TestRunCycle_IdempotentOnUnchangedState(t *testing.T) {
	cloud, _ := tripFixture()
	syncRoot := t.TempDir()
	eng, _ := newTestEngine(t, cloud, syncRoot)
	ctx := context.Background()

	_, err := eng.RunCycle(ctx, nil, nil)
	require.NoError(t, err)

	summary, err := eng.RunCycle(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Downloaded)
	assert.Equal(t, 1, summary.Skipped)
}

// S4 — album not in allowlist.
func TestRunCycle_AlbumNotInAllowlistIsSkipped(t *testing.T) {
	cloud := &fakeCloudSession{
		albums: []icloud.Album{
			{Name: "Keep", Kind: icloud.AlbumPersonal},
			{Name: "Skip", Kind: icloud.AlbumPersonal},
		},
		photos: map[string][]icloud.RemotePhoto{
			"Keep": {{RemoteID: "k1", Filename: "a.jpg", SizeBytes: 10, AlbumName: "Keep", Kind: icloud.AlbumPersonal}},
			"Skip": {{RemoteID: "s1", Filename: "b.jpg", SizeBytes: 10, AlbumName: "Skip", Kind: icloud.AlbumPersonal}},
		},
		data: map[string][]byte{"k1": []byte("0123456789"), "s1": []byte("0123456789")},
	}
	syncRoot := t.TempDir()
	eng, trk := newTestEngine(t, cloud, syncRoot)
	eng.opts.AlbumFilter.PersonalAllowlist = []string{"Keep"}
	ctx := context.Background()

	_, err := eng.RunCycle(ctx, nil, nil)
	require.NoError(t, err)

	rec, err := trk.Get(ctx, "b.jpg", "Skip")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = trk.Get(ctx, "a.jpg", "Keep")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

// S5 — configured album missing aborts the cycle.
func TestRunCycle_ConfiguredAlbumMissingAbortsCycle(t *testing.T) {
	cloud := &fakeCloudSession{
		albums: []icloud.Album{{Name: "Keep", Kind: icloud.AlbumPersonal}},
		photos: map[string][]icloud.RemotePhoto{},
		data:   map[string][]byte{},
	}
	syncRoot := t.TempDir()
	eng, _ := newTestEngine(t, cloud, syncRoot)
	eng.opts.AlbumFilter.PersonalAllowlist = []string{"Ghost"}
	ctx := context.Background()

	_, err := eng.RunCycle(ctx, nil, nil)
	require.Error(t, err)
}

// Composite keys: the same filename in two albums produces two distinct
// downloads.
func TestRunCycle_SameFilenameInTwoAlbumsBothDownload(t *testing.T) {
	cloud := &fakeCloudSession{
		albums: []icloud.Album{
			{Name: "A", Kind: icloud.AlbumPersonal},
			{Name: "B", Kind: icloud.AlbumPersonal},
		},
		photos: map[string][]icloud.RemotePhoto{
			"A": {{RemoteID: "a1", Filename: "same.jpg", SizeBytes: 5, AlbumName: "A", Kind: icloud.AlbumPersonal}},
			"B": {{RemoteID: "b1", Filename: "same.jpg", SizeBytes: 5, AlbumName: "B", Kind: icloud.AlbumPersonal}},
		},
		data: map[string][]byte{"a1": []byte("aaaaa"), "b1": []byte("bbbbb")},
	}
	syncRoot := t.TempDir()
	eng, trk := newTestEngine(t, cloud, syncRoot)
	ctx := context.Background()

	summary, err := eng.RunCycle(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Downloaded)

	recA, err := trk.Get(ctx, "same.jpg", "A")
	require.NoError(t, err)
	require.NotNil(t, recA)

	recB, err := trk.Get(ctx, "same.jpg", "B")
	require.NoError(t, err)
	require.NotNil(t, recB)
}

func TestRunCycle_DryRunWritesNothing(t *testing.T) {
	cloud, filename := tripFixture()
	syncRoot := t.TempDir()
	eng, trk := newTestEngine(t, cloud, syncRoot)
	eng.opts.DryRun = true
	ctx := context.Background()

	summary, err := eng.RunCycle(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded)

	_, statErr := os.Stat(filepath.Join(syncRoot, "Trip", filename))
	assert.True(t, os.IsNotExist(statErr))

	rec, err := trk.Get(ctx, filename, "Trip")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
