// Package scheduler implements Component H: single-vs-continuous cycle
// execution, 2FA exponential back-off, maintenance cadence, and graceful
// shutdown.
//
// Grounded on the teacher's shutdownContext (signal.go) for cooperative
// SIGINT/SIGTERM handling and pause.go's duration-parsing/pause-state-file
// pattern, adapted here to the maintenance-pause flag. Back-off
// persistence is internal/backoff, grounded on pidfile.go's
// flock-guarded-file idiom.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HenningUe/icloud-sync-go/internal/backoff"
	"github.com/HenningUe/icloud-sync-go/internal/syncengine"
	"github.com/HenningUe/icloud-sync-go/internal/tracker"
)

// Mode selects single-cycle-then-exit vs. repeating execution, per
// spec.md §4.H.
type Mode string

const (
	ModeSingle     Mode = "single"
	ModeContinuous Mode = "continuous"
)

const (
	defaultSyncInterval        = 2 * time.Minute
	defaultMaintenanceInterval = time.Hour
)

// Options configures a Scheduler, carrying the subset of config.Config
// spec.md §4.H's cadence rules consume.
type Options struct {
	Mode                Mode
	SyncInterval        time.Duration
	MaintenanceInterval time.Duration
	BackoffStatePath    string

	// WatchSyncRoot enables the fsnotify-based early-wake enrichment
	// (SPEC_FULL.md §4.H) in ModeContinuous. Empty disables it; the
	// scheduler then relies purely on SyncInterval/back-off timing.
	WatchSyncRoot string
}

func (o *Options) applyDefaults() {
	if o.SyncInterval <= 0 {
		o.SyncInterval = defaultSyncInterval
	}

	if o.MaintenanceInterval <= 0 {
		o.MaintenanceInterval = defaultMaintenanceInterval
	}
}

// Scheduler is Component H: it drives repeated syncengine.Engine.RunCycle
// calls, applying spec.md §4.H's back-off and maintenance-cadence
// policies around them.
type Scheduler struct {
	engine  *syncengine.Engine
	tracker *tracker.Tracker
	opts    Options
	logger  *slog.Logger

	paused atomic.Bool
	wake   chan struct{}
}

// New constructs a Scheduler. trk may be nil if the engine was
// constructed without a Tracker (e.g. a dry-run-only harness) — in that
// case the maintenance ticker is a no-op backup/integrity pass.
func New(engine *syncengine.Engine, trk *tracker.Tracker, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	opts.applyDefaults()

	return &Scheduler{
		engine:  engine,
		tracker: trk,
		opts:    opts,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

// Run drives the configured execution mode until ctx is cancelled (for
// ModeContinuous) or after exactly one cycle (for ModeSingle). It returns
// the error of the last cycle run, or nil on a clean shutdown/single-cycle
// success.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.Mode == ModeSingle {
		_, err := s.engine.RunCycle(ctx, shutdownSignal(ctx), s.pauseSignal())
		return err
	}

	return s.runContinuous(ctx)
}

// runContinuous implements spec.md §4.H's continuous-mode policy: repeat
// cycles, sleeping sync_interval after success or an exponentially
// growing back-off after a 2FA-incomplete failure, while a maintenance
// ticker and (best-effort) fsnotify watcher run alongside via errgroup.
func (s *Scheduler) runContinuous(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.maintenanceLoop(gctx)
	})

	if s.opts.WatchSyncRoot != "" {
		group.Go(func() error {
			watchSyncRoot(gctx, s.opts.WatchSyncRoot, s.wake, s.logger)
			return nil
		})
	}

	group.Go(func() error {
		return s.cycleLoop(gctx)
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return err
}

// cycleLoop is the repeating RunCycle driver. Errors whose proximate
// cause is an incomplete 2FA exchange apply backoff.Interval; any other
// failure or a clean success both resume at sync_interval (a non-2FA
// failure still waits the base interval before retrying, per spec.md §7:
// "Scheduler retries next interval").
func (s *Scheduler) cycleLoop(ctx context.Context) error {
	for {
		_, err := s.engine.RunCycle(ctx, shutdownSignal(ctx), s.pauseSignal())

		wait := s.opts.SyncInterval

		switch {
		case err == nil:
			if resetErr := backoff.Reset(s.opts.BackoffStatePath); resetErr != nil {
				s.logger.Warn("scheduler: resetting backoff state failed", slog.String("error", resetErr.Error()))
			}

		case errors.Is(err, syncengine.ErrTwoFactorIncomplete):
			state, recErr := backoff.RecordFailure(s.opts.BackoffStatePath)
			if recErr != nil {
				s.logger.Warn("scheduler: recording backoff failure failed", slog.String("error", recErr.Error()))
			} else {
				wait = state.Interval()
			}

			s.logger.Warn("scheduler: cycle aborted, 2FA not completed", slog.Duration("next_attempt_in", wait))

		default:
			s.logger.Warn("scheduler: cycle failed", slog.String("error", err.Error()))
		}

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-s.wake:
			// Early wake from watchSyncRoot: a local deletion was
			// observed. This can only cause mark_deleted to run sooner,
			// never a download — see SPEC_FULL.md §4.H.
			timer.Stop()
		}
	}
}

// maintenanceLoop pauses the sync loop every maintenance_interval to run
// Tracker.Backup plus an integrity pass, per spec.md §4.H. The sync
// engine observes s.paused at each per-photo boundary via pauseSignal.
func (s *Scheduler) maintenanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runMaintenance(ctx)
		}
	}
}

func (s *Scheduler) runMaintenance(ctx context.Context) {
	if s.tracker == nil {
		return
	}

	s.paused.Store(true)
	defer s.paused.Store(false)

	if _, err := s.tracker.Backup(ctx); err != nil {
		s.logger.Warn("scheduler: maintenance backup failed", slog.String("error", err.Error()))
	}

	if err := s.tracker.CheckIntegrity(ctx); err != nil {
		s.logger.Warn("scheduler: maintenance integrity check failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) pauseSignal() syncengine.PauseSignal {
	return func() bool { return s.paused.Load() }
}

func shutdownSignal(ctx context.Context) syncengine.ShutdownSignal {
	return func() bool { return ctx.Err() != nil }
}
