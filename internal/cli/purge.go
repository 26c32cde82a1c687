package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	RetentionDays int
	DryRun        bool
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove notifications expired past the retention window",
		Long: `Permanently remove notifications whose expiry is older than now minus
the retention window. Their occurrence ledger entries go with them.
Notifications without an expiry are never purged.

Examples:
  noticeboard purge
  noticeboard purge --retention-days 7
  noticeboard purge --dry-run --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(cmd, opts)
		},
	}

	// Bound to retention.days by the config loader when set.
	cmd.Flags().IntVar(&opts.RetentionDays, "retention-days", 0, "retention window in days (overrides retention.days)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would be purged without deleting")

	return cmd
}

func runPurge(cmd *cobra.Command, opts *PurgeOptions) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	c, err := opts.newComponents(st, nil)
	if err != nil {
		return err
	}

	f := opts.formatter(cmd)
	ctx := cmd.Context()

	if opts.DryRun {
		stats, err := c.cleaner.Stats(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to count expired notifications", err)
		}
		return f.Render(stats, func(w io.Writer) {
			fmt.Fprintf(w, "Dry run (retention %d days, cutoff %s)\n", stats.RetentionDays, stats.Cutoff.Format(time.RFC3339))
			fmt.Fprintf(w, "  stored:    %d\n", stats.Total)
			fmt.Fprintf(w, "  deletable: %d\n", stats.Deletable)
			fmt.Fprintf(w, "  retained:  %d\n", stats.Retained)
		})
	}

	result, err := c.cleaner.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "purge failed", err)
	}
	return f.Render(result, func(w io.Writer) {
		fmt.Fprintf(w, "Purged %d of %d expired notification(s) before %s\n",
			result.Purged, result.Expected, result.Cutoff.Format(time.RFC3339))
		fmt.Fprintf(w, "  ledger entries removed: %d\n", result.LedgerEntriesRemoved)
	})
}
