package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/classroom-lms/backend/config"
	"github.com/classroom-lms/backend/internal/recordingsync"
)

// SyncRunner runs one guarded reconciliation pass. *recordingsync.Runner implements it.
type SyncRunner interface {
	Run(ctx context.Context, trigger recordingsync.Trigger, w recordingsync.Window, filter recordingsync.Filter) (*recordingsync.Result, error)
}

type Dependencies struct {
	Config  *config.Config
	Sync    SyncRunner
	Migrate func(ctx context.Context) ([]string, error)
	Now     func() time.Time
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	rootCmd := &cobra.Command{
		Use:           "lmsctl",
		Short:         "Operate the classroom LMS backend",
		Long:          "Operator commands for the LMS backend: reconcile Zoom cloud recordings and apply database migrations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewSyncCmd(deps))
	rootCmd.AddCommand(NewMigrateCmd(deps))

	return rootCmd
}
