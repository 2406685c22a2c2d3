package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/HenningUe/icloud-sync-go/internal/config"
	"github.com/HenningUe/icloud-sync-go/internal/instancelock"
	"github.com/HenningUe/icloud-sync-go/internal/scheduler"
	"github.com/HenningUe/icloud-sync-go/internal/syncengine"
	"github.com/HenningUe/icloud-sync-go/internal/tracker"
)

// newSyncCmd builds the `sync` command: one cycle by default, or a
// continuously-scheduled loop with --watch, per spec.md §4.H.
func newSyncCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync selected iCloud Photos albums into the local sync directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			mode := scheduler.ModeSingle
			if watch || cc.Cfg.ExecutionMode == config.ExecutionModeContinuous {
				mode = scheduler.ModeContinuous
			}

			return runSync(cmd, cc, mode)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "run continuously instead of exiting after one cycle")

	return cmd
}

func runSync(cmd *cobra.Command, cc *CLIContext, mode scheduler.Mode) error {
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	trk, err := openTracker(ctx, cc)
	if err != nil {
		return &exitCodeError{code: exitUnrecoverableTracker, err: err}
	}
	defer trk.Close() //nolint:errcheck

	if swept, err := syncengine.SweepStaleTempFiles(ctx, cc.SyncRoot); err != nil {
		cc.Logger.Warn("sync: sweeping stale temp files failed", slog.String("error", err.Error()))
	} else if swept > 0 {
		cc.Logger.Info("sync: removed leftover temp files from a prior run", slog.Int("count", swept))
	}

	cloud := newCloudSession(cc)

	if err := cloud.LoadPersistedSession(); err != nil {
		cc.Logger.Warn("sync: loading persisted session failed, will re-authenticate",
			slog.String("error", err.Error()))
	}

	engine := buildEngine(cc, cloud, trk)

	sched := scheduler.New(engine, trk, scheduler.Options{
		Mode:             mode,
		BackoffStatePath: config.BackoffFilePath(),
		WatchSyncRoot:    watchSyncRootFor(mode, cc),
	}, cc.Logger)

	statusf("Starting sync (mode=%s, sync_root=%s)\n", mode, cc.SyncRoot)

	err = sched.Run(ctx)

	return classifySyncError(ctx.Err(), err)
}

// watchSyncRootFor enables the fsnotify early-wake enrichment only in
// continuous mode, where a longer sync_interval makes the latency
// reduction worthwhile.
func watchSyncRootFor(mode scheduler.Mode, cc *CLIContext) string {
	if mode != scheduler.ModeContinuous {
		return ""
	}

	return cc.SyncRoot
}

// classifySyncError maps a Scheduler.Run outcome onto spec.md §6's exit
// code taxonomy.
func classifySyncError(ctxErr, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case ctxErr != nil:
		return &exitCodeError{code: exitInterrupted, err: err}
	case errors.Is(err, instancelock.ErrAlreadyLocked):
		return &exitCodeError{code: exitAlreadyRunning, err: err}
	case errors.Is(err, syncengine.ErrAuthentication):
		return &exitCodeError{code: exitAuthFailure, err: err}
	case errors.Is(err, tracker.ErrUnavailable), errors.Is(err, tracker.ErrWriteFailed):
		return &exitCodeError{code: exitUnrecoverableTracker, err: err}
	default:
		return &exitCodeError{code: exitConfigError, err: fmt.Errorf("sync: %w", err)}
	}
}
