package config

import "fmt"

// Validate checks a Config for internal consistency, per spec.md §6's
// recognized-option list. Returns a descriptive error naming the offending
// field; callers surface this as a configuration-class fatal error (exit
// code 1, per spec.md §6's CLI exit codes).
func Validate(cfg *Config) error {
	if cfg.SyncDirectory == "" {
		return fmt.Errorf("sync_directory is required")
	}

	switch cfg.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("log_level must be one of debug, info, warning, error (got %q)", cfg.LogLevel)
	}

	switch cfg.ExecutionMode {
	case ExecutionModeSingle, ExecutionModeContinuous:
	default:
		return fmt.Errorf("execution_mode must be one of single, continuous (got %q)", cfg.ExecutionMode)
	}

	if cfg.MaxDownloads < 0 {
		return fmt.Errorf("max_downloads must be >= 0 (0 = unlimited)")
	}

	if cfg.MaxFileSizeMB < 0 {
		return fmt.Errorf("max_file_size_mb must be >= 0 (0 = no cap)")
	}

	if cfg.AuthWebPortRange[0] <= 0 || cfg.AuthWebPortRange[1] <= 0 {
		return fmt.Errorf("auth_web_port_range entries must be positive port numbers")
	}

	if cfg.AuthWebPortRange[0] > cfg.AuthWebPortRange[1] {
		return fmt.Errorf("auth_web_port_range low bound %d exceeds high bound %d",
			cfg.AuthWebPortRange[0], cfg.AuthWebPortRange[1])
	}

	if cfg.Pushover.Enabled && cfg.Pushover.APIToken == "" {
		return fmt.Errorf("pushover.api_token is required when pushover.enabled is true")
	}

	if cfg.Pushover.Enabled && cfg.Pushover.UserKey == "" {
		return fmt.Errorf("pushover.user_key is required when pushover.enabled is true")
	}

	return nil
}
