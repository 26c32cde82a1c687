package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noticeboard/internal/model"
	"github.com/roach88/noticeboard/internal/store"
)

// decodeData decodes the data of a JSON ok response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v), out)
}

func TestUserCommands(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "--db", db, "user", "add", "u2", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "Added 2 of 2 user(s)")

	out, err = execute(t, "--db", db, "user", "add", "u1", "u3")
	require.NoError(t, err)
	assert.Contains(t, out, "Added 1 of 2 user(s)")

	out, err = execute(t, "--db", db, "--format", "json", "user", "list")
	require.NoError(t, err)
	var ids []string
	decodeData(t, out, &ids)
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids)
}

func TestCycleCommand_GlobalFanOutOnce(t *testing.T) {
	db := tempDB(t)

	_, err := execute(t, "--db", db, "user", "add", "u1", "u2")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "notification", "create",
		"--id", "rent", "--title", "Rent", "--global",
		"--recurrence", "every Monday",
		"--action", "Pay rent", "--category", "finance")
	require.NoError(t, err)
	assert.Contains(t, out, "Created notification rent")

	type cycle struct {
		Date                 string `json:"date"`
		Candidates           int    `json:"candidates"`
		OccurrencesProcessed int    `json:"occurrences_processed"`
		OccurrencesSkipped   int    `json:"occurrences_skipped"`
		TasksCreated         int    `json:"tasks_created"`
	}

	out, err = execute(t, "--db", db, "--format", "json", "cycle", "--at", "2024-06-03T09:00:00Z")
	require.NoError(t, err)
	var first cycle
	decodeData(t, out, &first)
	assert.Equal(t, cycle{Date: "2024-06-03", Candidates: 1, OccurrencesProcessed: 1, TasksCreated: 2}, first)

	out, err = execute(t, "--db", db, "--format", "json", "cycle", "--at", "2024-06-03T18:00:00Z")
	require.NoError(t, err)
	var second cycle
	decodeData(t, out, &second)
	assert.Equal(t, 0, second.TasksCreated)
	assert.Equal(t, 1, second.OccurrencesSkipped)

	out, err = execute(t, "--db", db, "--format", "json", "todo", "list", "--user", "u1")
	require.NoError(t, err)
	var tasks []todoView
	decodeData(t, out, &tasks)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Pay rent", tasks[0].Description)
	assert.Equal(t, "finance", tasks[0].Category)
	assert.Equal(t, "rent", tasks[0].Source)

	out, err = execute(t, "--db", db, "cycle", "--at", "2024-06-04T09:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "Cycle for 2024-06-04")
	assert.Contains(t, out, "tasks created:         0")
}

func TestCycleCommand_InvalidAt(t *testing.T) {
	_, err := execute(t, "--db", tempDB(t), "cycle", "--at", "monday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNotificationCommands_Lifecycle(t *testing.T) {
	db := tempDB(t)

	_, err := execute(t, "--db", db, "notification", "create",
		"--id", "standup", "--title", "Standup", "--target", "u1")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "notification", "list", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "standup  Standup  [to:u1]")

	out, err = execute(t, "--db", db, "notification", "list", "--user", "u2")
	require.NoError(t, err)
	assert.Contains(t, out, "No notifications.")

	_, err = execute(t, "--db", db, "notification", "delete", "standup")
	require.NoError(t, err)

	out, err = execute(t, "--db", db, "notification", "list", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "No notifications.")

	out, err = execute(t, "--db", db, "--format", "json", "notification", "list", "--include-deleted")
	require.NoError(t, err)
	var all []notificationView
	decodeData(t, out, &all)
	require.Len(t, all, 1)
	assert.True(t, all[0].Deleted)

	_, err = execute(t, "--db", db, "notification", "restore", "standup")
	require.NoError(t, err)

	out, err = execute(t, "--db", db, "notification", "list", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "standup")
}

func TestNotificationCommands_Errors(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "--db", db, "--format", "json", "notification", "restore", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "E_NOT_FOUND", resp.Error.Code)

	_, err = execute(t, "--db", db, "notification", "create",
		"--title", "Bad", "--global", "--target", "u1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid draft")

	_, err = execute(t, "--db", db, "notification", "create",
		"--title", "Bad rule", "--global", "--recurrence", `{"kind":"fortnightly"}`)
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid draft")

	_, err = execute(t, "--db", db, "notification", "create",
		"--title", "Past", "--global", "--expires-at", "2000-01-01T00:00:00Z")
	require.Error(t, err)
	assert.ErrorContains(t, err, "not in the future")
}

func TestTodoCommands_DeletePolicies(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "--db", db, "--format", "json", "todo", "create", "--user", "u1", "Groceries", "--category", "home")
	require.NoError(t, err)
	var parent todoView
	decodeData(t, out, &parent)

	out, err = execute(t, "--db", db, "--format", "json", "todo", "create", "--user", "u1", "Milk", "--parent", parent.ID)
	require.NoError(t, err)
	var child todoView
	decodeData(t, out, &child)
	assert.Equal(t, parent.ID, child.ParentID)

	_, err = execute(t, "--db", db, "todo", "create", "--user", "u2", "Eggs", "--parent", parent.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidParent)

	out, err = execute(t, "--db", db, "todo", "list", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "- Groceries [home]")
	assert.Contains(t, out, "  - Milk")

	_, err = execute(t, "--db", db, "todo", "delete", "--user", "u1", parent.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrOrphanTask)

	_, err = execute(t, "--db", db, "todo", "delete", "--user", "u1", "--policy", "sideways", parent.ID)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = execute(t, "--db", db, "todo", "delete", "--user", "u1", "--policy", "cascade", parent.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 task(s)")

	out, err = execute(t, "--db", db, "todo", "list", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks.")
}

func TestTodoCommands_RequireUser(t *testing.T) {
	_, err := execute(t, "--db", tempDB(t), "todo", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user")
}

func TestPurgeCommand(t *testing.T) {
	db := tempDB(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	now := time.Now().UTC()
	old := now.Add(-60 * 24 * time.Hour)
	recent := now.Add(-5 * 24 * time.Hour)
	for id, exp := range map[string]time.Time{"old": old, "recent": recent} {
		exp := exp
		_, err := st.CreateNotification(context.Background(), model.Notification{
			ID: id, Title: id, IsGlobal: true, ExpiresAt: &exp, CreatedAt: old.Add(-time.Hour),
		})
		require.NoError(t, err)
	}
	_, err = st.CreateNotification(context.Background(), model.Notification{
		ID: "forever", Title: "forever", IsGlobal: true, CreatedAt: old,
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "--db", db, "--format", "json", "purge", "--dry-run")
	require.NoError(t, err)
	var stats struct {
		Total         int64 `json:"total"`
		Deletable     int64 `json:"deletable"`
		RetentionDays int   `json:"retention_days"`
	}
	decodeData(t, out, &stats)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Deletable)
	assert.Equal(t, 30, stats.RetentionDays)

	out, err = execute(t, "--db", db, "--format", "json", "purge", "--dry-run", "--retention-days", "1")
	require.NoError(t, err)
	decodeData(t, out, &stats)
	assert.Equal(t, int64(2), stats.Deletable)

	out, err = execute(t, "--db", db, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 1 of 1 expired notification(s)")

	out, err = execute(t, "--db", db, "--format", "json", "notification", "list")
	require.NoError(t, err)
	var remaining []notificationView
	decodeData(t, out, &remaining)
	ids := make([]string, 0, len(remaining))
	for _, n := range remaining {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{"recent", "forever"}, ids)
}

func TestServeCommand_StopsOnContextCancel(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", tempDB(t), "serve", "--run-on-start"})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Serving")
}
