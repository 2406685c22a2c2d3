package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName matches the file layout spec.md §6 prescribes verbatim
// (<user_state_dir>/iphoto_downloader/..., <os_tempdir>/iphoto_downloader_backoff.json).
const appName = "iphoto_downloader"

// localAppDataToken is the placeholder spec.md §4.A says any path may embed;
// it expands to the host's user-local application-data directory.
const localAppDataToken = "%LOCALAPPDATA%"

const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// trackerFileName is the Tracker's on-disk SQLite file name.
const trackerFileName = "deletion_tracker.db"

// backupDirName is the Tracker's rotating-backup subdirectory.
const backupDirName = "backups"

// DefaultUserStateDir returns the platform-specific per-user application
// state directory: XDG_DATA_HOME (or ~/.local/share) on Linux,
// ~/Library/Application Support on macOS. Used both for
// %LOCALAPPDATA%-token expansion and for the CloudSession's session
// directory.
func DefaultUserStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return xdg
		}

		return filepath.Join(home, ".local", "share")
	}
}

// ExpandLocalAppData replaces a leading %LOCALAPPDATA% token in path with
// DefaultUserStateDir(), matching spec.md §4.A's cross-platform path
// resolution rule. Paths without the token are returned unchanged.
func ExpandLocalAppData(path string) string {
	if path == localAppDataToken {
		return DefaultUserStateDir()
	}

	const prefix = localAppDataToken + string(filepath.Separator)
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return filepath.Join(DefaultUserStateDir(), path[len(prefix):])
	}

	return path
}

// ResolveDatabaseParentDir resolves the configured database_parent_directory
// per spec.md §4.A: absolute paths are used verbatim, relative paths are
// resolved against syncRoot, and %LOCALAPPDATA% is expanded first.
func ResolveDatabaseParentDir(configured, syncRoot string) string {
	expanded := ExpandLocalAppData(configured)

	if filepath.IsAbs(expanded) {
		return expanded
	}

	return filepath.Join(syncRoot, expanded)
}

// TrackerPath returns the Tracker's SQLite file path under the resolved
// database parent directory.
func TrackerPath(dbParentDir string) string {
	return filepath.Join(dbParentDir, trackerFileName)
}

// TrackerBackupDir returns the directory holding rotating Tracker backups.
func TrackerBackupDir(dbParentDir string) string {
	return filepath.Join(dbParentDir, backupDirName)
}

// SessionDir returns the per-user directory CloudSession persists its
// trusted-session blob under, matching spec.md §6's file layout.
func SessionDir() string {
	base := DefaultUserStateDir()
	if base == "" {
		return ""
	}

	return filepath.Join(base, appName, "sessions")
}

// BackoffFilePath returns the path to the 2FA back-off counter file in the
// OS temp directory, matching spec.md §6's file layout.
func BackoffFilePath() string {
	return filepath.Join(os.TempDir(), appName+"_backoff.json")
}

// LockFilePath returns the InstanceLock file path for a given sync root.
func LockFilePath(syncRoot string) string {
	return filepath.Join(syncRoot, ".icloud-sync-go.lock")
}
