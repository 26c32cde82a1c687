package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/noticeboard/internal/model"
	"github.com/roach88/noticeboard/internal/recurrence"
	"github.com/roach88/noticeboard/internal/store"
)

// Storage is the part of the store a cycle needs. *store.Store satisfies it.
type Storage interface {
	FindActiveRecurringCandidates(ctx context.Context, at time.Time) ([]model.Notification, error)
	RecordProcessed(ctx context.Context, notificationID string, date model.Date, at time.Time) (model.ProcessedOccurrence, error)
	ExistsForSource(ctx context.Context, userID, sourceNotificationID string) (bool, error)
	CreateTodo(ctx context.Context, task model.TodoTask) (model.TodoTask, error)
}

// Engine runs occurrence cycles.
//
// An Engine holds no per-cycle state; RunCycle may be called concurrently,
// including from several processes sharing one database.
type Engine struct {
	store     Storage
	directory UserDirectory
	clock     Clock
	location  *time.Location
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock RunNow reads. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLocation sets the location used to derive occurrence dates from the
// evaluation instant. Default: UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine over s, resolving global targets through dir.
func New(s Storage, dir UserDirectory, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		directory: dir,
		clock:     SystemClock{},
		location:  time.UTC,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunNow runs a cycle at the clock's current instant.
func (e *Engine) RunNow(ctx context.Context) (CycleResult, error) {
	return e.RunCycle(ctx, e.clock.Now())
}

// RunCycle evaluates every active recurring candidate at instant.
//
// Returns a *RuntimeError with ErrCodeStorageUnavailable if candidates cannot
// be loaded or an occurrence cannot be claimed; the partial result up to that
// point is returned alongside it. Per-user failures never produce an error
// and are listed in CycleResult.Failures.
func (e *Engine) RunCycle(ctx context.Context, instant time.Time) (CycleResult, error) {
	date := model.DateOf(instant, e.location)
	result := CycleResult{Date: date}

	candidates, err := e.store.FindActiveRecurringCandidates(ctx, instant)
	if err != nil {
		return result, NewStorageError("find recurring candidates", "", err)
	}
	result.Candidates = len(candidates)

	e.logger.Debug("cycle starting",
		"instant", instant,
		"date", date.String(),
		"candidates", len(candidates),
	)

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n := &candidates[i]
		if !recurrence.IsOccurrence(*n.RecurrenceRule, date) {
			result.NotDue++
			continue
		}

		_, err := e.store.RecordProcessed(ctx, n.ID, date, instant)
		switch {
		case errors.Is(err, store.ErrAlreadyProcessed):
			e.logger.Debug("occurrence already processed, skipping (idempotent)",
				"notification", n.ID,
				"date", date.String(),
			)
			result.OccurrencesSkipped++
			continue
		case errors.Is(err, store.ErrNotFound):
			e.logger.Info("notification purged during cycle, skipping",
				"notification", n.ID,
				"date", date.String(),
			)
			result.OccurrencesSkipped++
			continue
		case err != nil:
			return result, NewStorageError("record occurrence", n.ID, err)
		}
		result.OccurrencesProcessed++

		e.fanOut(ctx, n, instant, &result)
	}

	level := slog.LevelInfo
	if len(result.Failures) > 0 {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "cycle complete",
		"date", date.String(),
		"candidates", result.Candidates,
		"occurrences_processed", result.OccurrencesProcessed,
		"occurrences_skipped", result.OccurrencesSkipped,
		"tasks_created", result.TasksCreated,
		"tasks_skipped", result.TasksSkipped,
		"failures", len(result.Failures),
	)
	return result, nil
}

// fanOut creates one root task per target user of n.
func (e *Engine) fanOut(ctx context.Context, n *model.Notification, instant time.Time, result *CycleResult) {
	users, err := e.targets(ctx, n)
	if err != nil {
		rerr := NewDirectoryError(n.ID, err)
		e.logger.Error("target resolution failed", "notification", n.ID, "error", err)
		result.Failures = append(result.Failures, newFailure(rerr))
		return
	}

	for _, userID := range users {
		created, err := e.createTask(ctx, n, userID, instant)
		if err != nil {
			rerr := NewTaskCreateError(n.ID, userID, err)
			e.logger.Error("task creation failed",
				"notification", n.ID,
				"user", userID,
				"error", err,
			)
			result.Failures = append(result.Failures, newFailure(rerr))
			continue
		}
		if created {
			result.TasksCreated++
		} else {
			result.TasksSkipped++
		}
	}
}

// createTask reports false when the user already has a task for n.
func (e *Engine) createTask(ctx context.Context, n *model.Notification, userID string, instant time.Time) (bool, error) {
	exists, err := e.store.ExistsForSource(ctx, userID, n.ID)
	if err != nil {
		return false, err
	}
	if exists {
		e.logger.Debug("task already exists, skipping", "notification", n.ID, "user", userID)
		return false, nil
	}

	task := model.TaskFromActionItem(n, userID)
	task.CreatedAt = instant
	created, err := e.store.CreateTodo(ctx, task)
	if errors.Is(err, store.ErrDuplicateTask) {
		// A concurrent cycle created it between the check and the insert.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	e.logger.Debug("task created",
		"notification", n.ID,
		"user", userID,
		"task", created.ID,
	)
	return true, nil
}

func (e *Engine) targets(ctx context.Context, n *model.Notification) ([]string, error) {
	if n.IsGlobal {
		if e.directory == nil {
			return nil, errors.New("no user directory configured")
		}
		return e.directory.AllUserIDs(ctx)
	}
	return n.TargetUserIDs, nil
}
