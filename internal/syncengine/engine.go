// Package syncengine implements Component G: the per-cycle reconcile loop
// that enumerates remote albums/photos, consults the Tracker and local
// filesystem, and downloads exactly the photos spec.md §4.G's algorithm
// says to download — never more, never deleting anything remote.
//
// Grounded on the teacher's internal/sync/engine.go and
// internal/sync/reconciler.go (enumerate/consult-state/act cycle),
// narrowed to strictly one-directional, deletion-respecting download-only
// reconciliation.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/HenningUe/icloud-sync-go/internal/albumfilter"
	"github.com/HenningUe/icloud-sync-go/internal/icloud"
	"github.com/HenningUe/icloud-sync-go/internal/instancelock"
	"github.com/HenningUe/icloud-sync-go/internal/notifier"
	"github.com/HenningUe/icloud-sync-go/internal/tracker"
)

// CloudSession is the capability surface spec.md §4.E's table prescribes,
// narrowed to exactly the methods SyncEngine consumes. icloud.Session
// satisfies this; tests substitute an in-memory fake.
type CloudSession interface {
	LoadPersistedSession() error
	HasPersistedSession() bool
	Authenticate(ctx context.Context) (icloud.AuthResult, error)
	Request2FA(ctx context.Context) error
	Verify2FA(ctx context.Context, code string) error
	TrustSession(ctx context.Context) error
	ListAlbums(ctx context.Context) ([]icloud.Album, error)
	ListPhotos(ctx context.Context, album icloud.Album) ([]icloud.RemotePhoto, error)
	Download(ctx context.Context, remoteID string) (io.ReadCloser, int64, error)
}

// AuthCoordinator is Component D's public contract to SyncEngine, per
// spec.md §4.D: "obtain_code(on_request, on_submit, timeout) -> code |
// failure_reason ... blocks the caller until one of the terminal states is
// reached." authcoord.Server satisfies this directly.
type AuthCoordinator interface {
	ObtainCode(ctx context.Context, timeout time.Duration) (string, error)
}

// AuthCoordinatorFactory constructs a fresh AuthCoordinator bound to the
// request/submit capabilities for one 2FA attempt. A fresh instance per
// attempt mirrors authcoord.NewServer's own "not meant to be reused
// concurrently" contract.
type AuthCoordinatorFactory func(request func(context.Context) error, submit func(context.Context, string) error) AuthCoordinator

const (
	defaultMaxConsecutiveFailures = 5
	defaultAuthTimeout            = 5 * time.Minute
)

// Options configures an Engine, carrying the subset of config.Config
// spec.md §4.G's cycle algorithm consumes.
type Options struct {
	SyncRoot               string
	DryRun                 bool
	MaxDownloads           int // 0 = unlimited
	MaxFileSizeMB          int // 0 = no cap
	MaxConsecutiveFailures int // default 5
	AuthTimeout            time.Duration
	AllowMultiInstance     bool
	LockPath               string
	AlbumFilter            albumfilter.Options
}

func (o *Options) applyDefaults() {
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}

	if o.AuthTimeout <= 0 {
		o.AuthTimeout = defaultAuthTimeout
	}
}

// Engine is Component G. Construct with New and call RunCycle once per
// sync cycle; the Scheduler owns the loop around repeated calls.
type Engine struct {
	cloud          CloudSession
	tracker        *tracker.Tracker
	notifier       *notifier.Notifier
	authFactory    AuthCoordinatorFactory
	opts           Options
	logger         *slog.Logger
	sessionLoadErr error
	loadOnce       sync.Once
}

// New constructs an Engine. notif may be nil (a disabled Notifier is a
// valid no-op, see internal/notifier).
func New(
	cloud CloudSession,
	trk *tracker.Tracker,
	notif *notifier.Notifier,
	authFactory AuthCoordinatorFactory,
	opts Options,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	opts.applyDefaults()

	return &Engine{
		cloud:       cloud,
		tracker:     trk,
		notifier:    notif,
		authFactory: authFactory,
		opts:        opts,
		logger:      logger,
	}
}

// Summary reports what one cycle did (or, in dry-run mode, would have
// done), per spec.md §4.G's "would download N, would skip M" dry-run
// requirement.
type Summary struct {
	AlbumsSynced int
	Downloaded   int
	Skipped      int
	Failed       int
	BytesWritten int64
}

// ShutdownSignal and PauseSignal are cooperative checkpoints the cycle
// polls between photos and between albums, per spec.md §4.G step 6.c and
// §5's cancellation model. Either may be nil (never fires).
type ShutdownSignal func() bool
type PauseSignal func() bool

// RunCycle executes one full sync cycle: acquire the instance lock, back
// up the Tracker, authenticate, resolve the album selection, and reconcile
// every selected album in (kind, name) order, per spec.md §4.G.
func (e *Engine) RunCycle(ctx context.Context, shutdown ShutdownSignal, pause PauseSignal) (Summary, error) {
	var summary Summary

	if !e.opts.AllowMultiInstance {
		lock, err := instancelock.Acquire(e.opts.LockPath)
		if err != nil {
			return summary, fmt.Errorf("syncengine: %w", err)
		}
		defer lock.Release() //nolint:errcheck
	}

	if e.tracker != nil {
		if _, err := e.tracker.Backup(ctx); err != nil {
			e.notifyFatal(ctx, err)
			return summary, fmt.Errorf("syncengine: backup before cycle: %w", err)
		}
	}

	if err := e.authenticate(ctx); err != nil {
		e.notifyFatal(ctx, err)
		return summary, err
	}

	albums, err := e.cloud.ListAlbums(ctx)
	if err != nil {
		e.notifyFatal(ctx, err)
		return summary, fmt.Errorf("%w: %v", ErrAlbumListFailed, err)
	}

	selected, err := albumfilter.Resolve(e.opts.AlbumFilter, albums)
	if err != nil {
		e.notifyFatal(ctx, err)
		return summary, err
	}

	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Kind != selected[j].Kind {
			return selected[i].Kind < selected[j].Kind
		}

		return selected[i].Name < selected[j].Name
	})

	for _, album := range selected {
		if shutdownRequested(shutdown) {
			break
		}

		waitWhilePaused(ctx, pause)

		if err := e.reconcileAlbum(ctx, album, &summary, shutdown, pause); err != nil {
			e.logger.Warn("syncengine: album reconcile failed, continuing with next album",
				slog.String("album", album.Name), slog.String("error", err.Error()))

			continue
		}

		summary.AlbumsSynced++

		if e.opts.MaxDownloads > 0 && summary.Downloaded >= e.opts.MaxDownloads {
			break
		}
	}

	return summary, nil
}

// authenticate implements spec.md §4.G step 3. A persisted trusted session
// is loaded at most once per Engine lifetime (LoadPersistedSession reads a
// file, not a per-cycle-changing resource).
func (e *Engine) authenticate(ctx context.Context) error {
	e.loadOnce.Do(func() {
		e.sessionLoadErr = e.cloud.LoadPersistedSession()
	})

	if e.sessionLoadErr != nil {
		e.logger.Warn("syncengine: loading persisted session failed, proceeding without it",
			slog.String("error", e.sessionLoadErr.Error()))
	}

	result, err := e.cloud.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	switch result {
	case icloud.AuthOK:
		return nil
	case icloud.AuthTwoFactorRequired:
		return e.completeTwoFactor(ctx)
	case icloud.AuthInvalidCredentials:
		return fmt.Errorf("%w: invalid credentials", ErrAuthentication)
	default:
		return fmt.Errorf("%w: service unavailable", ErrAuthentication)
	}
}

// completeTwoFactor drives AuthCoordinator.ObtainCode, per spec.md §4.G
// step 3: "If two_factor_required, call AuthCoordinator.obtain_code; on
// success, call verify_2fa then trust_session." ObtainCode's /submit
// handler already invokes the Submit capability (CloudSession.Verify2FA)
// internally and only reaches a terminal success state once it returns
// nil — so a nil error here means verify_2fa has already succeeded, and
// only TrustSession remains.
func (e *Engine) completeTwoFactor(ctx context.Context) error {
	coordinator := e.authFactory(e.cloud.Request2FA, e.cloud.Verify2FA)

	if _, err := coordinator.ObtainCode(ctx, e.opts.AuthTimeout); err != nil {
		return fmt.Errorf("%w: %w: %v", ErrAuthentication, ErrTwoFactorIncomplete, err)
	}

	if err := e.cloud.TrustSession(ctx); err != nil {
		e.logger.Warn("syncengine: trust_session failed, next run will re-prompt for 2FA",
			slog.String("error", err.Error()))
	}

	return nil
}

// notifyFatal sends exactly one fatal notification per aborted cycle, per
// spec.md §7: "Exactly one fatal notification is emitted per cycle if the
// cycle aborts uncleanly." Best-effort: Notify's own failure is logged,
// never escalated (the cycle is already failing for a different reason).
func (e *Engine) notifyFatal(ctx context.Context, cause error) {
	if e.notifier == nil {
		return
	}

	if err := e.notifier.Notify(ctx, notifier.KindFatal, "iCloud sync failed", cause.Error(), ""); err != nil {
		e.logger.Warn("syncengine: fatal notification failed", slog.String("error", err.Error()))
	}
}

func shutdownRequested(shutdown ShutdownSignal) bool {
	return shutdown != nil && shutdown()
}

// waitWhilePaused blocks while pause() reports true, polling at a short
// fixed interval. Only the maintenance coordinator (internal/scheduler)
// ever sets this; it always clears within one integrity-check-plus-backup
// pass.
func waitWhilePaused(ctx context.Context, pause PauseSignal) {
	if pause == nil {
		return
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for pause() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// syncRootAlbumDir returns the filesystem directory a given album's files
// live under, per spec.md §6's file layout.
func (e *Engine) syncRootAlbumDir(albumName string) string {
	return filepath.Join(e.opts.SyncRoot, albumName)
}

var errShutdown = errors.New("syncengine: shutdown requested")
