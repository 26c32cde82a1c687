package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/roach88/noticeboard/internal/engine"
	"github.com/roach88/noticeboard/internal/model"
	"github.com/roach88/noticeboard/internal/notify"
	"github.com/roach88/noticeboard/internal/store"
	"github.com/roach88/noticeboard/internal/testutil"
)

// Harness is the scenario execution context.
// It wires the facade, the engine and the store to one settable clock.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	service  *notify.Service
	clock    *testutil.FixedClock
	location *time.Location
	logger   *slog.Logger

	// refs maps scenario task references to generated task IDs.
	refs map[string]string
	seq  int64
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, with the
// clock fixed at the scenario's start instant and moved only by flow steps.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Register users and write setup notifications
// 3. Execute flow steps with expect validation
// 4. Evaluate assertions and capture final state
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start, err := parseInstant(scenario.Start)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if scenario.Timezone != "" {
		if loc, err = time.LoadLocation(scenario.Timezone); err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewFixedClock(start)
	h := &Harness{
		store: st,
		engine: engine.New(st, st,
			engine.WithClock(clock),
			engine.WithLocation(loc),
			engine.WithLogger(logger),
		),
		service:  notify.NewService(st, notify.WithClock(clock), notify.WithLogger(logger)),
		clock:    clock,
		location: loc,
		logger:   logger,
		refs:     make(map[string]string),
	}

	ctx := context.Background()

	if err := h.executeSetup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	state, err := captureState(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("failed to capture final state: %w", err)
	}
	result.State = state

	return result, nil
}

// executeSetup registers users and writes fixtures directly to the store.
func (h *Harness) executeSetup(ctx context.Context, scenario *Scenario) error {
	now := h.clock.Now()
	for _, id := range scenario.Users {
		if _, err := h.store.AddUser(ctx, id, now); err != nil {
			return fmt.Errorf("user %q: %w", id, err)
		}
	}

	for i, f := range scenario.Setup {
		n, err := f.toNotification(now)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if _, err := h.store.CreateNotification(ctx, n); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		h.logger.Info("setup notification written", "id", n.ID)
	}
	return nil
}

func (f NotificationFixture) toNotification(defaultCreated time.Time) (model.Notification, error) {
	n := model.Notification{
		ID:            f.ID,
		Title:         f.Title,
		Message:       f.Message,
		IsGlobal:      f.Global,
		TargetUserIDs: f.Targets,
		Deleted:       f.Deleted,
		CreatedAt:     defaultCreated,
	}
	if f.Recurrence != "" {
		rule := f.Recurrence
		n.RecurrenceRule = &rule
	}
	if f.Action != nil {
		n.ActionItem = model.NewActionItem(f.Action.Description, f.Action.Category)
	}
	if f.ExpiresAt != "" {
		t, err := parseInstant(f.ExpiresAt)
		if err != nil {
			return model.Notification{}, err
		}
		n.ExpiresAt = &t
	}
	if f.CreatedAt != "" {
		t, err := parseInstant(f.CreatedAt)
		if err != nil {
			return model.Notification{}, err
		}
		n.CreatedAt = t
	}
	return n, nil
}

// executeFlow runs all flow steps and validates expect clauses against the
// outcome each operation actually produced.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		op, ok := operations[step.Invoke]
		if !ok {
			return fmt.Errorf("flow step %d: unknown operation %q", i, step.Invoke)
		}

		if step.At != "" {
			at, err := parseInstant(step.At)
			if err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
			h.clock.Set(at)
		}

		args := step.Args
		if args == nil {
			args = map[string]interface{}{}
		}

		h.seq++
		result.AddInvocationTrace(step.Invoke, h.clock.Now().Format(time.RFC3339), args, h.seq)

		out, err := op(ctx, h, args)
		if errors.Is(err, errBadArgs) {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}
		outputCase := caseOf(err)

		h.seq++
		var traceResult interface{}
		if len(out) > 0 {
			traceResult = out
		}
		result.AddCompletionTrace(outputCase, traceResult, h.seq)

		switch {
		case step.Expect == nil && err != nil:
			result.AddError(fmt.Sprintf("flow[%d] %s: unexpected %s: %v", i, step.Invoke, outputCase, err))
		case step.Expect != nil && step.Expect.Case != outputCase:
			msg := fmt.Sprintf("flow[%d] %s: expected case %s, got %s", i, step.Invoke, step.Expect.Case, outputCase)
			if err != nil {
				msg += fmt.Sprintf(" (%v)", err)
			}
			result.AddError(msg)
		case step.Expect != nil:
			for key, want := range step.Expect.Result {
				got, exists := out[key]
				if !exists {
					result.AddError(fmt.Sprintf("flow[%d] %s: result field %q missing", i, step.Invoke, key))
					continue
				}
				if !reflect.DeepEqual(got, want) {
					result.AddError(fmt.Sprintf("flow[%d] %s: result field %q = %v, expected %v", i, step.Invoke, key, got, want))
				}
			}
		}

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Invoke,
			"output_case", outputCase,
		)
	}

	return nil
}

// caseOf names the outcome of an operation.
func caseOf(err error) string {
	switch {
	case err == nil:
		return "Success"
	case errors.Is(err, notify.ErrUnauthenticated):
		return "Unauthenticated"
	case errors.Is(err, notify.ErrForbidden):
		return "Forbidden"
	case errors.Is(err, notify.ErrInvalidDraft):
		return "InvalidDraft"
	case errors.Is(err, store.ErrNotFound):
		return "NotFound"
	case errors.Is(err, store.ErrNotificationExists):
		return "AlreadyExists"
	case errors.Is(err, store.ErrOrphanTask):
		return "OrphanTask"
	case errors.Is(err, store.ErrInvalidParent):
		return "InvalidParent"
	case errors.Is(err, store.ErrDuplicateTask):
		return "DuplicateTask"
	case engine.IsStorageUnavailable(err):
		return "StorageUnavailable"
	default:
		return "Error"
	}
}
