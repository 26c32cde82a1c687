// Package jobs runs the occurrence cycle and the retention cleanup as
// independent cron-scheduled jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Job names.
const (
	OccurrenceCycleJob  = "occurrence-cycle"
	RetentionCleanupJob = "retention-cleanup"
)

// ErrUnknownJob is returned by RunNow for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// TaskFunc is one run of a job.
type TaskFunc func(ctx context.Context) error

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a standard 5-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Scheduler wraps a gocron scheduler. Each job runs in singleton mode: a run
// that is still going when the next tick arrives makes the scheduler skip
// that tick.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]gocron.Job
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	location *time.Location
	logger   *slog.Logger
}

// WithLocation sets the location cron expressions are evaluated in.
// Default: UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	o := options{location: time.UTC, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(o.location),
		gocron.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		logger:    o.logger,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]gocron.Job),
	}, nil
}

// Register adds a job running task on the cron schedule expr.
func (s *Scheduler) Register(name, expr string, task TaskFunc) error {
	if err := ValidateSchedule(expr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func() {
			s.run(name, task)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %q: %w", name, err)
	}

	s.jobs[name] = job
	s.logger.Info("job registered", "job", name, "schedule", expr)
	return nil
}

func (s *Scheduler) run(name string, task TaskFunc) {
	start := time.Now()
	s.logger.Debug("job starting", "job", name)

	if err := task(s.ctx); err != nil {
		s.logger.Error("job failed", "job", name, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Debug("job completed", "job", name, "duration", time.Since(start))
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()

	s.scheduler.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// RunNow triggers a registered job immediately, outside its schedule.
// The run is asynchronous. The scheduler must be started.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return job.RunNow()
}

// NextRun returns when a registered job will next run.
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return job.NextRun()
}
