package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HenningUe/icloud-sync-go/internal/config"
)

// newLogoutCmd builds the `logout` command: removes the persisted trusted
// session blob so the next `login`/`sync` starts a fresh authentication,
// per spec.md §4.E. The Tracker database is never touched — logging out
// does not forget which photos have already been synced.
func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the persisted iCloud trusted session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			path := sessionFilePath(cc)

			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return &exitCodeError{code: exitConfigError, err: fmt.Errorf("logout: removing session file: %w", err)}
			}

			if err := os.Remove(config.BackoffFilePath()); err != nil && !os.IsNotExist(err) {
				cc.Logger.Warn("logout: removing backoff state failed", "error", err)
			}

			statusf("Logged out; next sync will prompt for 2FA again.\n")

			return nil
		},
	}
}
