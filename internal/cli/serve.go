package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/noticeboard/internal/engine"
	"github.com/roach88/noticeboard/internal/jobs"
	"github.com/roach88/noticeboard/internal/notify"
	"github.com/roach88/noticeboard/internal/retention"
	"github.com/roach88/noticeboard/internal/store"
)

// components bundles everything built on top of one open store.
type components struct {
	store     *store.Store
	directory *engine.CachedDirectory
	engine    *engine.Engine
	cleaner   *retention.Cleaner
	service   *notify.Service
}

// newComponents wires the engine, cleaner and service from configuration.
// clock may be nil for the system clock.
func (o *RootOptions) newComponents(st *store.Store, clock engine.Clock) (*components, error) {
	if clock == nil {
		clock = engine.SystemClock{}
	}
	cfg := o.Config
	logger := slog.Default()

	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid timezone", err)
	}

	dir := engine.NewCachedDirectory(st, cfg.Directory.CacheTTL)
	cleaner, err := retention.NewCleaner(st, cfg.Retention.Days,
		retention.WithClock(clock),
		retention.WithLogger(logger),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid retention settings", err)
	}

	return &components{
		store:     st,
		directory: dir,
		engine: engine.New(st, dir,
			engine.WithClock(clock),
			engine.WithLocation(loc),
			engine.WithLogger(logger),
		),
		cleaner: cleaner,
		service: notify.NewService(st,
			notify.WithClock(clock),
			notify.WithDefaultLifetime(cfg.Notifications.DefaultLifetime),
			notify.WithLogger(logger),
		),
	}, nil
}

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	RunOnStart bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the occurrence cycle and retention purge on a schedule",
		Long: `Open the database and run two scheduled jobs until interrupted:

  occurrence-cycle   engine.cycle_schedule (default hourly)
  retention-cleanup  retention.schedule (default 02:00 daily)

Schedules are 5-field cron expressions evaluated in engine.timezone.

Examples:
  noticeboard serve --db ./noticeboard.db
  noticeboard serve --config ./noticeboard.yaml --run-on-start`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.RunOnStart, "run-on-start", false, "run both jobs once immediately after starting")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	c, err := opts.newComponents(st, nil)
	if err != nil {
		return err
	}

	loc, _ := opts.Config.Location()
	sched, err := jobs.NewScheduler(jobs.WithLocation(loc), jobs.WithLogger(slog.Default()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create scheduler", err)
	}

	if err := sched.Register(jobs.OccurrenceCycleJob, opts.Config.Engine.CycleSchedule, jobs.CycleTask(c.engine)); err != nil {
		return WrapExitError(ExitCommandError, "failed to register occurrence cycle", err)
	}
	if err := sched.Register(jobs.RetentionCleanupJob, opts.Config.Retention.Schedule, jobs.RetentionTask(c.cleaner)); err != nil {
		return WrapExitError(ExitCommandError, "failed to register retention cleanup", err)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	sched.Start()
	slog.Info("noticeboard started",
		"database", opts.Config.Database.Path,
		"timezone", loc.String(),
		"cycle_schedule", opts.Config.Engine.CycleSchedule,
		"retention_schedule", opts.Config.Retention.Schedule,
		"retention_days", opts.Config.Retention.Days,
	)

	if opts.RunOnStart {
		for _, name := range []string{jobs.OccurrenceCycleJob, jobs.RetentionCleanupJob} {
			if err := sched.RunNow(name); err != nil {
				slog.Error("run on start failed", "job", name, "error", err)
			}
		}
	}

	w := cmd.OutOrStdout()
	if opts.Format != "json" {
		fmt.Fprintf(w, "Serving %s (Ctrl+C to stop)\n", opts.Config.Database.Path)
	}

	<-ctx.Done()

	if err := sched.Stop(); err != nil {
		return WrapExitError(ExitFailure, "scheduler shutdown failed", err)
	}
	slog.Info("noticeboard stopped")
	return nil
}
