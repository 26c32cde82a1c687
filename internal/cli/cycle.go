package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/noticeboard/internal/engine"
)

// CycleOptions holds flags for the cycle command.
type CycleOptions struct {
	*RootOptions
	At       string
	Timezone string
}

// NewCycleCommand creates the cycle command.
func NewCycleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CycleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one occurrence cycle",
		Long: `Evaluate every active recurring notification once and create the TODO
tasks for occurrences that have not been processed yet.

Running the cycle again for the same date creates nothing new.

Exit codes:
  0 - Cycle completed without task failures
  1 - Cycle completed with task failures, or storage was unavailable
  2 - Command error

Examples:
  noticeboard cycle
  noticeboard cycle --at 2024-06-03T09:00:00Z
  noticeboard cycle --timezone Europe/Berlin --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "evaluate at this RFC3339 instant instead of now")
	cmd.Flags().StringVar(&opts.Timezone, "timezone", "", "timezone for occurrence dates (overrides engine.timezone)")

	return cmd
}

func runCycle(cmd *cobra.Command, opts *CycleOptions) error {
	var at time.Time
	if opts.At != "" {
		parsed, err := time.Parse(time.RFC3339, opts.At)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --at", err)
		}
		at = parsed
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	c, err := opts.newComponents(st, nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var result engine.CycleResult
	if at.IsZero() {
		result, err = c.engine.RunNow(ctx)
	} else {
		result, err = c.engine.RunCycle(ctx, at)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "cycle failed", err)
	}

	f := opts.formatter(cmd)
	if err := f.Render(result, func(w io.Writer) { printCycle(w, result) }); err != nil {
		return err
	}

	if len(result.Failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d task failure(s)", len(result.Failures)))
	}
	return nil
}

func printCycle(w io.Writer, r engine.CycleResult) {
	fmt.Fprintf(w, "Cycle for %s\n", r.Date)
	fmt.Fprintf(w, "  candidates:            %d\n", r.Candidates)
	fmt.Fprintf(w, "  not due:               %d\n", r.NotDue)
	fmt.Fprintf(w, "  occurrences processed: %d\n", r.OccurrencesProcessed)
	fmt.Fprintf(w, "  occurrences skipped:   %d\n", r.OccurrencesSkipped)
	fmt.Fprintf(w, "  tasks created:         %d\n", r.TasksCreated)
	fmt.Fprintf(w, "  tasks skipped:         %d\n", r.TasksSkipped)
	for _, f := range r.Failures {
		if f.UserID != "" {
			fmt.Fprintf(w, "  ✗ %s/%s: %s\n", f.NotificationID, f.UserID, f.Message)
		} else {
			fmt.Fprintf(w, "  ✗ %s: %s\n", f.NotificationID, f.Message)
		}
	}
}
