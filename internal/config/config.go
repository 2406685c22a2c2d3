// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for icloud-sync-go.
package config

// Config is the complete, static configuration record. Every field here
// corresponds to one of the recognized options; there is no free-form
// key-value escape hatch — an unrecognized key is a load-time error (see
// unknown.go).
type Config struct {
	SyncDirectory string `toml:"sync_directory"`
	DryRun        bool   `toml:"dry_run"`

	MaxDownloads  int `toml:"max_downloads"`
	MaxFileSizeMB int `toml:"max_file_size_mb"`

	LogLevel      string `toml:"log_level"`
	ExecutionMode string `toml:"execution_mode"`

	AllowMultiInstance bool `toml:"allow_multi_instance"`

	IncludePersonalAlbums bool     `toml:"include_personal_albums"`
	IncludeSharedAlbums   bool     `toml:"include_shared_albums"`
	PersonalAlbumNames    []string `toml:"personal_album_names_to_include"`
	SharedAlbumNames      []string `toml:"shared_album_names_to_include"`

	DatabaseParentDirectory string `toml:"database_parent_directory"`

	Pushover PushoverConfig `toml:"pushover"`

	AuthWebPortRange [2]int `toml:"auth_web_port_range"`
}

// PushoverConfig controls the out-of-band push notifier (internal/notifier).
// The field names match spec.md §6 exactly; "pushover" names the reference
// shape only — any `notify(kind, title, body, url?)`-compatible service can
// sit behind these credentials (see DESIGN.md "Open Question decisions").
type PushoverConfig struct {
	Enabled  bool   `toml:"enabled"`
	APIToken string `toml:"api_token"`
	UserKey  string `toml:"user_key"`
	Device   string `toml:"device"`
}

// Execution modes (spec.md §6 execution_mode enum).
const (
	ExecutionModeSingle     = "single"
	ExecutionModeContinuous = "continuous"
)

// Log levels (spec.md §6 log_level enum).
const (
	LogLevelDebug   = "debug"
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)
