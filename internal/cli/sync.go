package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/classroom-lms/backend/internal/recordingsync"
)

func NewSyncCmd(deps *Dependencies) *cobra.Command {
	var from, to, filter string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import Zoom cloud recordings for a date range",
		Long: "Runs one reconciliation pass against the Zoom recordings API. Without --from/--to the " +
			"window ends today and covers SYNC_MANUAL_WINDOW_DAYS days. Files already imported are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Sync == nil {
				return errors.New("zoom credentials are not configured")
			}
			w, err := recordingsync.ParseWindow(from, to, deps.Now(), deps.Config.Sync.ManualWindowDays)
			if err != nil {
				return err
			}
			if filter != recordingsync.FilterStrict && filter != recordingsync.FilterLoose {
				return fmt.Errorf("--filter must be strict or loose, got %q", filter)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Syncing recordings %s\n", w)
			res, err := deps.Sync.Run(cmd.Context(), recordingsync.TriggerCLI, w, recordingsync.FilterFor(filter))
			if err != nil {
				if errors.Is(err, recordingsync.ErrAlreadyRunning) {
					return errors.New("another sync is already running, try again later")
				}
				return err
			}

			fmt.Fprintf(out, "Meetings: %d\nSynced:   %d\nSkipped:  %d\nFailed:   %d\n",
				res.Meetings, res.Ingested, res.Skipped, res.Failed)
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  %s (meeting %s): %s\n", e.SourceFileID, e.MeetingID, e.Error)
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d recording file(s) failed", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&filter, "filter", recordingsync.FilterStrict, "eligibility filter: strict or loose")

	return cmd
}
