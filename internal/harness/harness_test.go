package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, content string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(content))
	require.NoError(t, err)
	return scenario
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(mustParse(t, minimalScenario))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "invocation", result.Trace[0].Type)
	assert.Equal(t, "engine.cycle", result.Trace[0].ActionURI)
	assert.Equal(t, "2024-06-03T09:00:00Z", result.Trace[0].At)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, "completion", result.Trace[1].Type)
	assert.Equal(t, "Success", result.Trace[1].OutputCase)
	assert.Equal(t, int64(2), result.Trace[1].Seq)

	out, ok := result.Trace[1].Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "2024-06-03", out["date"])
	assert.Equal(t, 0, out["candidates"])
}

func TestRun_ExpectComparesActualOutcome(t *testing.T) {
	result, err := Run(mustParse(t, `
name: wrong_expectation
description: expects more tasks than the cycle creates
start: "2024-06-03T09:00:00Z"
users: [u1]
setup:
  - id: n1
    global: true
    recurrence: every Monday
    action: { description: Pay rent }
flow:
  - invoke: engine.cycle
    args: {}
    expect:
      case: Success
      result: { tasks_created: 5, unknown_field: 1 }
assertions:
  - type: trace_count
    action: engine.cycle
    count: 1
`))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, `result field "tasks_created" = 1, expected 5`)
	assert.Contains(t, joined, `result field "unknown_field" missing`)
}

func TestRun_ErrorCases(t *testing.T) {
	result, err := Run(mustParse(t, `
name: error_cases
description: expected and unexpected failures
start: "2024-06-03T09:00:00Z"
users: [u1]
flow:
  - invoke: notification.delete
    args: { id: n1, as: u1 }
    expect: { case: Forbidden }
  - invoke: notification.delete
    args: { id: missing }
    expect: { case: NotFound }
  - invoke: notification.create
    args: { id: bad, recurrence: "every blue moon" }
    expect: { case: InvalidDraft }
  - invoke: notification.restore
    args: { id: missing }
assertions:
  - type: trace_count
    action: notification.delete
    count: 2
`))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1, "only the step without expect fails")
	assert.Contains(t, result.Errors[0], "flow[3] notification.restore: unexpected NotFound")

	cases := []string{}
	for _, e := range result.Trace {
		if e.Type == "completion" {
			cases = append(cases, e.OutputCase)
		}
	}
	assert.Equal(t, []string{"Forbidden", "NotFound", "InvalidDraft", "NotFound"}, cases)
}

func TestRun_BadArgsAbort(t *testing.T) {
	tests := []struct {
		name string
		step string
	}{
		{"missing required", "{ invoke: user.add, args: {} }"},
		{"wrong type", "{ invoke: notification.visible, args: { user: 42 } }"},
		{"unknown ref", "{ invoke: todo.delete, args: { user: u1, ref: nope } }"},
		{"bad policy", "{ invoke: todo.delete, args: { user: u1, source: n1, policy: shred } }"},
		{"negative retention", "{ invoke: retention.purge, args: { retention_days: -1 } }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := mustParse(t, `
name: bad_args
description: authoring errors abort the run
start: "2024-06-03T09:00:00Z"
flow:
  - `+tt.step+`
assertions:
  - type: row_count
    table: users
    count: 0
`)
			_, err := Run(scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "bad arguments")
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "targeted_fanout.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := SnapshotJSON(scenario.Name, first)
	require.NoError(t, err)
	b, err := SnapshotJSON(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_FreshDatabasePerRun(t *testing.T) {
	scenario := mustParse(t, `
name: fresh
description: each run starts empty
start: "2024-06-03T09:00:00Z"
flow:
  - invoke: user.add
    args: { id: u1 }
    expect: { case: Success, result: { added: true } }
assertions:
  - type: row_count
    table: users
    count: 1
`)
	for i := 0; i < 2; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "run %d: %v", i, result.Errors)
	}
}

func TestRun_AssertionsFail(t *testing.T) {
	result, err := Run(mustParse(t, `
name: failing_assertions
description: assertion failures are reported, not returned
start: "2024-06-03T09:00:00Z"
flow:
  - invoke: engine.cycle
    args: {}
assertions:
  - type: trace_contains
    action: retention.purge
  - type: row_count
    table: todo_tasks
    count: 1
`))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 2)
}

func TestRun_StateSnapshot(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "global_weekly_fanout.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	tasks, ok := result.State["todo_tasks"].([]interface{})
	require.True(t, ok)
	require.Len(t, tasks, 3)
	assert.Equal(t, map[string]interface{}{
		"user_id":     "u1",
		"description": "Pay rent",
		"category":    "finance",
		"source":      "n1",
	}, tasks[0])
}

func TestCaseOf_Unmapped(t *testing.T) {
	assert.Equal(t, "Success", caseOf(nil))
	assert.Equal(t, "Error", caseOf(assert.AnError))
}

func TestOperations(t *testing.T) {
	ops := Operations()
	assert.Contains(t, ops, "engine.cycle")
	assert.Contains(t, ops, "retention.purge")
	assert.True(t, len(ops) >= 10)
}
