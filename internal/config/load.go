package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// CLIOverrides carries values set explicitly on the command line. Only
// fields the user actually set should be populated; empty/zero means
// "not specified" and falls through to the next layer.
type CLIOverrides struct {
	ConfigPath string
	SyncDir    string
	DryRun     *bool
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions (see unknown.go).
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", slog.String("path", path))

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully", slog.String("path", path))

	return cfg, nil
}

// LoadOrDefault behaves like Load, but returns DefaultConfig() unmodified
// (skipping validation, since SyncDirectory is not yet known) if no file
// exists at path.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}

		return nil, fmt.Errorf("checking config file %s: %w", path, err)
	}

	return Load(path, logger)
}

// Resolve applies the override chain (default -> config file -> env -> CLI,
// each layer overriding the previous only where the narrower layer actually
// sets a value) and validates the result.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	path := cli.ConfigPath
	if path == "" {
		path = env.ConfigPath
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	cfg, err := LoadOrDefault(path, logger)
	if err != nil {
		return nil, err
	}

	if env.SyncDir != "" {
		cfg.SyncDirectory = env.SyncDir
	}

	if cli.SyncDir != "" {
		cfg.SyncDirectory = cli.SyncDir
	}

	if cli.DryRun != nil {
		cfg.DryRun = *cli.DryRun
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfigPath returns the conventional config file path:
// $XDG_CONFIG_HOME/iphoto_downloader/config.toml (or the macOS/Linux
// equivalent), mirroring the teacher's own DefaultConfigPath shape.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch {
	case os.Getenv("XDG_CONFIG_HOME") != "":
		return os.Getenv("XDG_CONFIG_HOME") + "/" + appName + "/config.toml"
	default:
		return home + "/.config/" + appName + "/config.toml"
	}
}
