package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoad_Minimal(t *testing.T) {
	path := writeTempConfig(t, `sync_directory = "/sync/root"`)

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "/sync/root", cfg.SyncDirectory)
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.True(t, cfg.IncludePersonalAlbums)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeTempConfig(t, "sync_directory = \"/sync/root\"\nmax_downlods = 5\n")

	_, err := Load(path, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_downlods")
	assert.Contains(t, err.Error(), "max_downloads")
}

func TestLoad_PushoverSection(t *testing.T) {
	path := writeTempConfig(t, `
sync_directory = "/sync/root"

[pushover]
enabled = true
api_token = "tok"
user_key = "user"
`)

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)
	assert.True(t, cfg.Pushover.Enabled)
	assert.Equal(t, "tok", cfg.Pushover.APIToken)
}

func TestLoad_InvalidAfterParse(t *testing.T) {
	path := writeTempConfig(t, `
sync_directory = "/sync/root"
log_level = "verbose"
`)

	_, err := Load(path, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), testLogger())
	require.NoError(t, err)
	assert.Equal(t, "", cfg.SyncDirectory)
}

func TestResolve_EnvThenCLI(t *testing.T) {
	path := writeTempConfig(t, `sync_directory = "/from/file"`)

	env := EnvOverrides{SyncDir: "/from/env"}
	cli := CLIOverrides{ConfigPath: path, SyncDir: "/from/cli"}

	cfg, err := Resolve(env, cli, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "/from/cli", cfg.SyncDirectory)
}

func TestResolve_DryRunOverride(t *testing.T) {
	path := writeTempConfig(t, `sync_directory = "/sync/root"`)

	dryRun := true
	cli := CLIOverrides{ConfigPath: path, DryRun: &dryRun}

	cfg, err := Resolve(EnvOverrides{}, cli, testLogger())
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}

func TestResolve_MissingSyncDirectoryFails(t *testing.T) {
	path := writeTempConfig(t, `log_level = "debug"`)

	_, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path}, testLogger())
	require.Error(t, err)
}
