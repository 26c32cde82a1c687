package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noticeboard/internal/model"
	"github.com/roach88/noticeboard/internal/store"
	"github.com/roach88/noticeboard/internal/testutil"
)

// 2024-06-03 is a Monday.
var (
	mondayMorning = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	mondayEvening = time.Date(2024, 6, 3, 17, 30, 0, 0, time.UTC)
	tuesday       = time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC)
	nextMonday    = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
)

func ptr[T any](v T) *T { return &v }

func newTestEngine(s Storage, dir UserDirectory, opts ...Option) *Engine {
	opts = append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)
	return New(s, dir, opts...)
}

func seedNotification(t *testing.T, s *store.Store, n model.Notification) model.Notification {
	t.Helper()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = mondayMorning.AddDate(0, 0, -7)
	}
	stored, err := s.CreateNotification(context.Background(), n)
	require.NoError(t, err)
	return stored
}

func rentReminder(id string) model.Notification {
	return model.Notification{
		ID:             id,
		IsGlobal:       true,
		RecurrenceRule: ptr("every Monday"),
		ActionItem:     model.NewActionItem("Pay rent", "finance"),
	}
}

func tasksBySource(t *testing.T, s *store.Store, id string) map[string]model.TodoTask {
	t.Helper()
	tasks, err := s.ListTodosBySource(context.Background(), id)
	require.NoError(t, err)
	byUser := make(map[string]model.TodoTask, len(tasks))
	for _, task := range tasks {
		byUser[task.UserID] = task
	}
	return byUser
}

func TestRunCycle_GlobalFanOutIsIdempotent(t *testing.T) {
	s := testutil.NewStore(t)
	testutil.AddUsers(t, s, "u1", "u2", "u3")
	seedNotification(t, s, rentReminder("n1"))
	e := newTestEngine(s, s)
	ctx := context.Background()

	result, err := e.RunCycle(ctx, mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, model.MustParseDate("2024-06-03"), result.Date)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 1, result.OccurrencesProcessed)
	assert.Equal(t, 3, result.TasksCreated)
	assert.Empty(t, result.Failures)

	tasks := tasksBySource(t, s, "n1")
	require.Len(t, tasks, 3)
	for _, user := range []string{"u1", "u2", "u3"} {
		task, ok := tasks[user]
		require.True(t, ok, "missing task for %s", user)
		assert.Equal(t, "Pay rent", task.Description)
		assert.Equal(t, "finance", task.Category)
		assert.True(t, task.IsRoot())
		assert.True(t, task.CreatedAt.Equal(mondayMorning))
	}

	ledger, err := s.ListProcessed(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, model.MustParseDate("2024-06-03"), ledger[0].OccurrenceDate)

	// Same instant again: nothing new.
	again, err := e.RunCycle(ctx, mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 0, again.OccurrencesProcessed)
	assert.Equal(t, 1, again.OccurrencesSkipped)
	assert.Equal(t, 0, again.TasksCreated)

	// Later on the same date: still the same occurrence.
	evening, err := e.RunCycle(ctx, mondayEvening)
	require.NoError(t, err)
	assert.Equal(t, 1, evening.OccurrencesSkipped)
	assert.Equal(t, 0, evening.TasksCreated)

	count, err := s.CountTodos(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	ledger, _ = s.ListProcessed(ctx, "n1")
	assert.Len(t, ledger, 1)
}

func TestRunCycle_TargetedFanOut(t *testing.T) {
	s := testutil.NewStore(t)
	testutil.AddUsers(t, s, "U1", "U2", "U3")
	n := rentReminder("n3")
	n.IsGlobal = false
	n.TargetUserIDs = []string{"U1", "U2"}
	seedNotification(t, s, n)
	e := newTestEngine(s, s)

	result, err := e.RunCycle(context.Background(), mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TasksCreated)

	tasks := tasksBySource(t, s, "n3")
	assert.Contains(t, tasks, "U1")
	assert.Contains(t, tasks, "U2")
	assert.NotContains(t, tasks, "U3")
}

func TestRunCycle_NotAnOccurrence(t *testing.T) {
	s := testutil.NewStore(t)
	testutil.AddUsers(t, s, "u1")
	seedNotification(t, s, rentReminder("n1"))
	e := newTestEngine(s, s)
	ctx := context.Background()

	result, err := e.RunCycle(ctx, tuesday)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 1, result.NotDue)
	assert.Equal(t, 0, result.OccurrencesProcessed)

	has, err := s.HasProcessed(ctx, "n1", model.DateOf(tuesday, nil))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRunCycle_MalformedRuleFailsClosed(t *testing.T) {
	s := testutil.NewStore(t)
	testutil.AddUsers(t, s, "u1")
	n := rentReminder("bad")
	n.RecurrenceRule = ptr(`{"kind":"weekly","weekdays":`)
	seedNotification(t, s, n)
	seedNotification(t, s, rentReminder("good"))
	e := newTestEngine(s, s)

	result, err := e.RunCycle(context.Background(), mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Candidates)
	assert.Equal(t, 1, result.NotDue)
	assert.Equal(t, 1, result.TasksCreated)
	assert.Empty(t, tasksBySource(t, s, "bad"))
}

func TestRunCycle_SkipsIneligible(t *testing.T) {
	s := testutil.NewStore(t)
	testutil.AddUsers(t, s, "u1")
	expired := rentReminder("expired")
	expired.ExpiresAt = ptr(mondayMorning.Add(-time.Hour))
	seedNotification(t, s, expired)

	deleted := rentReminder("deleted")
	deleted.Deleted = true
	seedNotification(t, s, deleted)

	noAction := rentReminder("no-action")
	noAction.ActionItem = nil
	seedNotification(t, s, noAction)

	e := newTestEngine(s, s)
	result, err := e.RunCycle(context.Background(), mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Candidates)
	assert.Equal(t, 0, result.TasksCreated)
}

func TestRunCycle_LocationDecidesDate(t *testing.T) {
	s := testutil.NewStore(t)
	testutil.AddUsers(t, s, "u1")
	seedNotification(t, s, rentReminder("n1"))

	// Sunday 23:30 UTC is already Monday in Tokyo.
	sundayNight := time.Date(2024, 6, 2, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)

	utc := newTestEngine(s, s)
	result, err := utc.RunCycle(context.Background(), sundayNight)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NotDue)

	jst := newTestEngine(s, s, WithLocation(tokyo))
	result, err = jst.RunCycle(context.Background(), sundayNight)
	require.NoError(t, err)
	assert.Equal(t, model.MustParseDate("2024-06-03"), result.Date)
	assert.Equal(t, 1, result.TasksCreated)
}

func TestRunCycle_NextOccurrenceRespectsDuplicateGuard(t *testing.T) {
	s := testutil.NewStore(t)
	testutil.AddUsers(t, s, "u1", "u2")
	seedNotification(t, s, rentReminder("n1"))
	e := newTestEngine(s, s)
	ctx := context.Background()

	_, err := e.RunCycle(ctx, mondayMorning)
	require.NoError(t, err)

	// u1 finishes and deletes the task; u2 keeps it.
	tasks := tasksBySource(t, s, "n1")
	_, err = s.DeleteTodo(ctx, "u1", tasks["u1"].ID, store.DeleteReject)
	require.NoError(t, err)

	result, err := e.RunCycle(ctx, nextMonday)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OccurrencesProcessed)
	assert.Equal(t, 1, result.TasksCreated)
	assert.Equal(t, 1, result.TasksSkipped)

	ledger, _ := s.ListProcessed(ctx, "n1")
	assert.Len(t, ledger, 2)
}

// flakyStorage fails CreateTodo for selected users.
type flakyStorage struct {
	*store.Store
	mu       sync.Mutex
	failFor  map[string]bool
	attempts map[string]int
}

func (f *flakyStorage) CreateTodo(ctx context.Context, task model.TodoTask) (model.TodoTask, error) {
	f.mu.Lock()
	f.attempts[task.UserID]++
	fail := f.failFor[task.UserID]
	f.mu.Unlock()
	if fail {
		return model.TodoTask{}, errors.New("disk full")
	}
	return f.Store.CreateTodo(ctx, task)
}

func TestRunCycle_PartialFailureIsIsolated(t *testing.T) {
	s := testutil.NewStore(t)
	testutil.AddUsers(t, s, "u1", "u2", "u3")
	seedNotification(t, s, rentReminder("n1"))
	flaky := &flakyStorage{Store: s, failFor: map[string]bool{"u2": true}, attempts: map[string]int{}}
	e := newTestEngine(flaky, s)
	ctx := context.Background()

	result, err := e.RunCycle(ctx, mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TasksCreated)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "n1", result.Failures[0].NotificationID)
	assert.Equal(t, "u2", result.Failures[0].UserID)
	assert.True(t, IsTaskCreateFailed(result.Failures[0].Err))
	assert.Contains(t, result.Failures[0].Message, "disk full")

	tasks := tasksBySource(t, s, "n1")
	assert.Contains(t, tasks, "u1")
	assert.Contains(t, tasks, "u3")
	assert.NotContains(t, tasks, "u2")

	// The ledger entry stands; re-running the same date does not retry.
	has, err := s.HasProcessed(ctx, "n1", model.DateOf(mondayMorning, nil))
	require.NoError(t, err)
	assert.True(t, has)
	again, err := e.RunCycle(ctx, mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 1, again.OccurrencesSkipped)
	assert.Equal(t, 1, flaky.attempts["u2"])

	// The next occurrence fills the gap and skips everyone else.
	flaky.mu.Lock()
	flaky.failFor = map[string]bool{}
	flaky.mu.Unlock()
	next, err := e.RunCycle(ctx, nextMonday)
	require.NoError(t, err)
	assert.Equal(t, 1, next.TasksCreated)
	assert.Equal(t, 2, next.TasksSkipped)
	assert.Contains(t, tasksBySource(t, s, "n1"), "u2")
}

type failingDirectory struct{}

func (failingDirectory) AllUserIDs(context.Context) ([]string, error) {
	return nil, errors.New("directory offline")
}

func TestRunCycle_DirectoryFailureIsIsolated(t *testing.T) {
	s := testutil.NewStore(t)
	seedNotification(t, s, rentReminder("global"))
	targeted := rentReminder("targeted")
	targeted.IsGlobal = false
	targeted.TargetUserIDs = []string{"u1"}
	seedNotification(t, s, targeted)
	e := newTestEngine(s, failingDirectory{})

	result, err := e.RunCycle(context.Background(), mondayMorning)
	require.NoError(t, err)
	assert.Equal(t, 2, result.OccurrencesProcessed)
	assert.Equal(t, 1, result.TasksCreated)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "global", result.Failures[0].NotificationID)
	assert.Empty(t, result.Failures[0].UserID)
	assert.True(t, IsDirectoryUnavailable(result.Failures[0].Err))
}

// brokenStorage fails the operations a cycle cannot continue without.
type brokenStorage struct {
	*store.Store
	failCandidates bool
	failLedger     bool
}

func (b *brokenStorage) FindActiveRecurringCandidates(ctx context.Context, at time.Time) ([]model.Notification, error) {
	if b.failCandidates {
		return nil, errors.New("database is locked")
	}
	return b.Store.FindActiveRecurringCandidates(ctx, at)
}

func (b *brokenStorage) RecordProcessed(ctx context.Context, id string, date model.Date, at time.Time) (model.ProcessedOccurrence, error) {
	if b.failLedger {
		return model.ProcessedOccurrence{}, errors.New("disk I/O error")
	}
	return b.Store.RecordProcessed(ctx, id, date, at)
}

func TestRunCycle_StorageFailureAborts(t *testing.T) {
	tests := []struct {
		name           string
		failCandidates bool
		failLedger     bool
	}{
		{"candidates", true, false},
		{"ledger", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testutil.NewStore(t)
			testutil.AddUsers(t, s, "u1")
			seedNotification(t, s, rentReminder("n1"))
			e := newTestEngine(&brokenStorage{Store: s, failCandidates: tt.failCandidates, failLedger: tt.failLedger}, s)

			result, err := e.RunCycle(context.Background(), mondayMorning)
			require.Error(t, err)
			assert.True(t, IsStorageUnavailable(err))
			assert.Equal(t, 0, result.TasksCreated)

			count, cerr := s.CountTodos(context.Background())
			require.NoError(t, cerr)
			assert.Zero(t, count)
		})
	}
}

func TestRunCycle_ConcurrentCyclesCreateEachTaskOnce(t *testing.T) {
	s := testutil.NewStore(t)
	testutil.AddUsers(t, s, "u1", "u2", "u3")
	seedNotification(t, s, rentReminder("n1"))
	second := rentReminder("n2")
	second.ActionItem = model.NewActionItem("Water plants", "home")
	seedNotification(t, s, second)
	e := newTestEngine(s, s)

	const cycles = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
		created   int
	)
	start := make(chan struct{})
	for i := 0; i < cycles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := e.RunCycle(context.Background(), mondayMorning)
			assert.NoError(t, err)
			mu.Lock()
			processed += result.OccurrencesProcessed
			created += result.TasksCreated
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 2, processed)
	assert.Equal(t, 6, created)
	count, err := s.CountTodos(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)
}

func TestRunNow_UsesClock(t *testing.T) {
	s := testutil.NewStore(t)
	testutil.AddUsers(t, s, "u1")
	seedNotification(t, s, rentReminder("n1"))
	clock := testutil.NewFixedClock(tuesday)
	e := newTestEngine(s, s, WithClock(clock))

	result, err := e.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.NotDue)

	clock.Set(nextMonday)
	result, err = e.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.MustParseDate("2024-06-10"), result.Date)
	assert.Equal(t, 1, result.TasksCreated)
}
