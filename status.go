package main

import (
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/HenningUe/icloud-sync-go/internal/tracker"
)

// newStatusCmd builds the `status` command: a read-only per-album summary
// of the Tracker's contents, per spec.md §6.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a summary of tracked photos per album",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			trk, err := openTracker(cmd.Context(), cc)
			if err != nil {
				return &exitCodeError{code: exitUnrecoverableTracker, err: err}
			}
			defer trk.Close() //nolint:errcheck

			summaries, err := trk.Summarize(cmd.Context())
			if err != nil {
				return &exitCodeError{code: exitUnrecoverableTracker, err: err}
			}

			printStatusTable(summaries)

			return nil
		},
	}
}

func printStatusTable(summaries []tracker.AlbumSummary) {
	if len(summaries) == 0 {
		statusf("No tracked albums yet.\n")
		return
	}

	headers := []string{"ALBUM", "TRACKED", "DELETED LOCALLY", "SIZE ON DISK"}
	rows := make([][]string, 0, len(summaries))

	for _, s := range summaries {
		rows = append(rows, []string{
			s.AlbumName,
			strconv.Itoa(s.Tracked),
			strconv.Itoa(s.DeletedLocal),
			humanize.Bytes(uint64(s.BytesOnDisk)),
		})
	}

	printTable(os.Stdout, headers, rows)
}
