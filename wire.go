package main

import (
	"context"
	"fmt"

	"github.com/HenningUe/icloud-sync-go/internal/albumfilter"
	"github.com/HenningUe/icloud-sync-go/internal/authcoord"
	"github.com/HenningUe/icloud-sync-go/internal/config"
	"github.com/HenningUe/icloud-sync-go/internal/icloud"
	"github.com/HenningUe/icloud-sync-go/internal/notifier"
	"github.com/HenningUe/icloud-sync-go/internal/syncengine"
	"github.com/HenningUe/icloud-sync-go/internal/tracker"
)

// newCloudSession constructs Component E from the CLIContext's resolved
// config and environment-sourced credentials.
func newCloudSession(cc *CLIContext) *icloud.Session {
	return icloud.NewSession(cc.AppleID, cc.AppPasswd, sessionFilePath(cc), defaultHTTPClient(), cc.Logger)
}

// sessionFilePath returns the per-AppleID trusted-session blob path under
// config.SessionDir(), per spec.md §6's file layout.
func sessionFilePath(cc *CLIContext) string {
	name := cc.AppleID
	if name == "" {
		name = "default"
	}

	return config.SessionDir() + "/" + name + ".json"
}

// openTracker opens Component A at the configured database location.
func openTracker(ctx context.Context, cc *CLIContext) (*tracker.Tracker, error) {
	dbParent := config.ResolveDatabaseParentDir(cc.Cfg.DatabaseParentDirectory, cc.SyncRoot)

	trk, err := tracker.Open(ctx, config.TrackerPath(dbParent), tracker.Options{
		BackupDir: config.TrackerBackupDir(dbParent),
	}, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening tracker: %w", err)
	}

	return trk, nil
}

// buildNotifier constructs Component C from the resolved Pushover-shaped
// config block.
func buildNotifier(cc *CLIContext) *notifier.Notifier {
	return notifier.New(notifier.Config{
		Enabled:  cc.Cfg.Pushover.Enabled,
		APIToken: cc.Cfg.Pushover.APIToken,
		UserKey:  cc.Cfg.Pushover.UserKey,
		Device:   cc.Cfg.Pushover.Device,
	}, defaultHTTPClient(), cc.Logger)
}

// albumFilterOptions translates the config record's album-selection
// fields into Component F's Options.
func albumFilterOptions(cfg *config.Config) albumfilter.Options {
	return albumfilter.Options{
		IncludePersonal:   cfg.IncludePersonalAlbums,
		IncludeShared:     cfg.IncludeSharedAlbums,
		PersonalAllowlist: cfg.PersonalAlbumNames,
		SharedAllowlist:   cfg.SharedAlbumNames,
	}
}

// authCoordinatorFactory binds Component D's port range into a
// syncengine.AuthCoordinatorFactory, constructing a fresh Server per 2FA
// attempt as authcoord.Server requires.
func authCoordinatorFactory(cc *CLIContext) syncengine.AuthCoordinatorFactory {
	return func(request func(context.Context) error, submit func(context.Context, string) error) syncengine.AuthCoordinator {
		return authcoord.NewServer(authcoord.Capabilities{Request: request, Submit: submit},
			authcoord.Options{PortRange: cc.Cfg.AuthWebPortRange}, cc.Logger)
	}
}

// buildEngine wires Components A through H's SyncEngine (G) from an
// already-open Tracker and the CLIContext's resolved config.
func buildEngine(cc *CLIContext, cloud syncengine.CloudSession, trk *tracker.Tracker) *syncengine.Engine {
	cfg := cc.Cfg

	return syncengine.New(cloud, trk, buildNotifier(cc), authCoordinatorFactory(cc), syncengine.Options{
		SyncRoot:           cc.SyncRoot,
		DryRun:             cfg.DryRun,
		MaxDownloads:       cfg.MaxDownloads,
		MaxFileSizeMB:      cfg.MaxFileSizeMB,
		AllowMultiInstance: cfg.AllowMultiInstance,
		LockPath:           config.LockFilePath(cc.SyncRoot),
		AlbumFilter:        albumFilterOptions(cfg),
	}, cc.Logger)
}
