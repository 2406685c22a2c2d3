package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/HenningUe/icloud-sync-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagSyncDir    string
	flagDryRun     bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that handle config loading themselves
// (currently none do, but the hook is kept for symmetry with the teacher's
// command tree in case a future command needs to bypass it).
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles resolved config, logger, and a per-invocation
// correlation ID. Built once in PersistentPreRunE so RunE handlers never
// re-derive it.
type CLIContext struct {
	Cfg       *config.Config
	Logger    *slog.Logger
	RunID     string
	SyncRoot  string
	AppleID   string
	AppPasswd string
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. Every command except the bare root is guaranteed a populated
// context by PersistentPreRunE.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — PersistentPreRunE did not run")
	}

	return cc
}

// httpClientTimeout bounds every request made through defaultHTTPClient:
// the Notifier's deliveries and all CloudSession calls, photo downloads
// included (the timeout covers reading the response body).
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "icloud-sync-go",
		Short:   "iCloud Photos one-way sync",
		Long:    "Downloads photos from selected iCloud Photos albums into a local directory, tracking local deletions so they are never re-downloaded.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagSyncDir, "sync-dir", "", "override sync_directory")
	cmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "report what would change without writing anything")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result, plus credentials read from the environment (kept
// out of the config file by design, per spec.md §6's recognized-option
// list), in the command's context for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	env := config.ReadEnvOverrides()

	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	if cmd.Flags().Changed("sync-dir") {
		cli.SyncDir = flagSyncDir
	}

	if cmd.Flags().Changed("dry-run") {
		cli.DryRun = &flagDryRun
	}

	cfg, err := config.Resolve(env, cli, logger)
	if err != nil {
		return &exitCodeError{code: exitConfigError, err: err}
	}

	finalLogger := buildLogger(cfg)

	cc := &CLIContext{
		Cfg:       cfg,
		Logger:    finalLogger,
		RunID:     uuid.NewString(),
		SyncRoot:  cfg.SyncDirectory,
		AppleID:   os.Getenv(envAppleID),
		AppPasswd: os.Getenv(envAppPassword),
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// envAppleID/envAppPassword are the environment variables carrying iCloud
// credentials. They are never accepted as config-file keys or CLI flags —
// spec.md §6 enumerates every recognized config option and credentials are
// not among them, so they live exclusively in the process environment,
// matching the teacher's own treatment of client-secret-shaped values.
const (
	envAppleID     = "ICLOUD_SYNC_APPLE_ID"
	envAppPassword = "ICLOUD_SYNC_APP_PASSWORD"
)

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap. Config-file log level is
// the baseline; --verbose/--debug/--quiet override it (mutually exclusive,
// enforced by Cobra).
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.LogLevel {
		case config.LogLevelDebug:
			level = slog.LevelDebug
		case config.LogLevelInfo:
			level = slog.LevelInfo
		case config.LogLevelError:
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	if isatty.IsTerminal(os.Stderr.Fd()) && !flagQuiet {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
