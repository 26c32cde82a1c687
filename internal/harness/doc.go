// Package harness runs YAML conformance scenarios against the noticeboard
// core: the notification facade, the occurrence engine, the retention
// cleaner and the SQLite store, all sharing one settable clock.
//
// # Scenario Format
//
//	name: global_weekly_fanout
//	description: "What this scenario validates"
//	start: "2024-06-03T09:00:00Z"
//	timezone: UTC
//	users: [u1, u2, u3]
//	setup:
//	  - id: n1
//	    global: true
//	    recurrence: every Monday
//	    action: { description: Pay rent, category: finance }
//	flow:
//	  - invoke: engine.cycle
//	    at: "2024-06-03T09:00:00Z"
//	    args: {}
//	    expect:
//	      case: Success
//	      result: { tasks_created: 3 }
//	assertions:
//	  - type: row_count
//	    table: todo_tasks
//	    where: { source_notification_id: n1 }
//	    count: 3
//
// Setup notifications are written straight to the store, so fixtures may
// already be expired. Flow steps go through the same code paths as the CLI
// and the scheduler. See Operations for the step names.
//
// # Assertion Types
//
//   - trace_contains: an operation appears in the trace with matching args
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly N times
//   - final_state: exactly one row matches and has the expected values
//   - row_count: exactly N rows match
//
// # Deterministic Testing
//
// Every scenario gets a fresh in-memory database and a fixed clock that only
// flow steps move. Snapshots leave out generated IDs and creation times, so
// golden files are stable across runs.
package harness
