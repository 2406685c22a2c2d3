package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandLocalAppData_Token(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/home/u/.data")

	got := ExpandLocalAppData("%LOCALAPPDATA%")
	assert.Equal(t, "/home/u/.data", got)
}

func TestExpandLocalAppData_TokenWithSuffix(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/home/u/.data")

	got := ExpandLocalAppData(filepath.Join("%LOCALAPPDATA%", "icloud", "db"))
	assert.Equal(t, filepath.Join("/home/u/.data", "icloud", "db"), got)
}

func TestExpandLocalAppData_NoToken(t *testing.T) {
	got := ExpandLocalAppData("/srv/db")
	assert.Equal(t, "/srv/db", got)
}

func TestResolveDatabaseParentDir_Absolute(t *testing.T) {
	got := ResolveDatabaseParentDir("/srv/db", "/sync/root")
	assert.Equal(t, "/srv/db", got)
}

func TestResolveDatabaseParentDir_Relative(t *testing.T) {
	got := ResolveDatabaseParentDir("state", "/sync/root")
	assert.Equal(t, filepath.Join("/sync/root", "state"), got)
}

func TestTrackerPathAndBackupDir(t *testing.T) {
	require.Equal(t, filepath.Join("/db", "deletion_tracker.db"), TrackerPath("/db"))
	require.Equal(t, filepath.Join("/db", "backups"), TrackerBackupDir("/db"))
}

func TestBackoffFilePath_HasAppName(t *testing.T) {
	got := BackoffFilePath()
	assert.Contains(t, got, "iphoto_downloader_backoff.json")
}

func TestSessionDir_HasAppNameAndSessions(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/home/u/.data")

	got := SessionDir()
	assert.Equal(t, filepath.Join("/home/u/.data", "iphoto_downloader", "sessions"), got)
}
