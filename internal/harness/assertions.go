package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/noticeboard/internal/store"
)

// identifierPattern limits table and column names to plain SQL identifiers.
// Identifiers cannot be bound as parameters, so anything else is refused.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError describes a failed scenario assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // invocations are listed in the message when set
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&b, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&b, "  Actual: %s\n", e.Actual)

	steps := invocations(e.Trace)
	if len(steps) > 0 {
		b.WriteString("\nSteps:\n")
		for i, step := range steps {
			fmt.Fprintf(&b, "  [%d] %s %v\n", i+1, step.ActionURI, step.Args)
		}
	}
	return b.String()
}

// AssertionContext carries the store that state assertions query.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions checks every assertion against result and returns one
// message per failure, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result.Trace, a, actx); err != nil {
			var ae *AssertionError
			if !errors.As(err, &ae) {
				err = fmt.Errorf("assertion[%d]: %w", i, err)
			}
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertFinalState, AssertRowCount:
		if actx == nil || actx.Store == nil {
			return fmt.Errorf("%s requires database context", a.Type)
		}
		if a.Type == AssertFinalState {
			return assertFinalState(actx.Ctx, actx.Store, a)
		}
		return assertRowCount(actx.Ctx, actx.Store, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// invocations filters trace down to its invocation events.
func invocations(trace []TraceEvent) []TraceEvent {
	var out []TraceEvent
	for _, ev := range trace {
		if ev.Type == "invocation" {
			out = append(out, ev)
		}
	}
	return out
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	found := slices.ContainsFunc(invocations(trace), func(ev TraceEvent) bool {
		return ev.ActionURI == a.Action && matchArgs(ev.Args, a.Args)
	})
	if found {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", a.Action, a.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder requires each action's first invocation to come after the
// previous action's first invocation. Other steps may sit in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	steps := invocations(trace)
	first := make([]int, len(a.Actions))
	for i, action := range a.Actions {
		first[i] = slices.IndexFunc(steps, func(ev TraceEvent) bool { return ev.ActionURI == action })
		if first[i] < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   "missing action: " + action,
				Trace:    trace,
			}
		}
		if i > 0 && first[i] <= first[i-1] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (step %d) should be before %s (step %d)",
					a.Actions[i-1], first[i-1]+1, action, first[i]+1),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range invocations(trace) {
		if ev.ActionURI == a.Action {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
		Actual:   fmt.Sprintf("%d occurrences", count),
		Trace:    trace,
	}
}

// matchArgs reports whether every expected key is present in actual with a
// deeply equal value. Keys absent from expected are ignored.
func matchArgs(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	got, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, want := range expected {
		v, ok := got[key]
		if !ok || !reflect.DeepEqual(v, want) {
			return false
		}
	}
	return true
}

// tableQuery is a parameterized SELECT over one table.
type tableQuery struct {
	sql  string
	args []any
}

func newTableQuery(columns, table string, where map[string]any) (tableQuery, error) {
	if !identifierPattern.MatchString(table) {
		return tableQuery{}, fmt.Errorf("invalid table name %q: must match pattern %s", table, identifierPattern)
	}
	cond, args, err := buildWhereClause(where)
	if err != nil {
		return tableQuery{}, err
	}
	q := "SELECT " + columns + " FROM " + table
	if cond != "" {
		q += " WHERE " + cond
	}
	return tableQuery{sql: q, args: args}, nil
}

// buildWhereClause joins equality conditions in sorted key order. A nil value
// becomes IS NULL; every other value is bound as a parameter.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	var (
		conds []string
		args  []any
	)
	for _, col := range sortedKeys(where) {
		if !identifierPattern.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", col, identifierPattern)
		}
		v := sqlValue(where[col])
		if v == nil {
			conds = append(conds, col+" IS NULL")
			continue
		}
		conds = append(conds, col+" = ?")
		args = append(args, v)
	}
	return strings.Join(conds, " AND "), args, nil
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// assertFinalState expects exactly one row matching Where and compares the
// Expect columns against it.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if a.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	q, err := newTableQuery("*", a.Table, a.Where)
	if err != nil {
		return err
	}

	matched, err := queryRows(ctx, st, q, 2)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "query table " + a.Table,
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	switch len(matched.rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "row not found",
		}
	case 2:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := matched.rows[0]
	for _, col := range sortedKeys(a.Expect) {
		want := a.Expect[col]
		got, ok := row[col]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", col),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", col, matched.columns),
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", col, want, want),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", col, got, got),
			}
		}
	}
	return nil
}

func assertRowCount(ctx context.Context, st *store.Store, a Assertion) error {
	q, err := newTableQuery("COUNT(*) AS n", a.Table, a.Where)
	if err != nil {
		return err
	}
	matched, err := queryRows(ctx, st, q, 1)
	if err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: "query table " + a.Table,
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	var count int64
	if len(matched.rows) == 1 {
		count, _ = matched.rows[0]["n"].(int64)
	}
	if count == int64(a.Count) {
		return nil
	}
	return &AssertionError{
		Type:     AssertRowCount,
		Expected: fmt.Sprintf("%d rows in %s where %s", a.Count, a.Table, formatWhereClause(a.Where)),
		Actual:   fmt.Sprintf("%d rows", count),
	}
}

type rowSet struct {
	columns []string
	rows    []map[string]any
}

// queryRows runs q and collects at most limit rows keyed by column name.
func queryRows(ctx context.Context, st *store.Store, q tableQuery, limit int) (rowSet, error) {
	rows, err := st.Query(ctx, q.sql, q.args...)
	if err != nil {
		return rowSet{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return rowSet{}, fmt.Errorf("get columns: %w", err)
	}
	set := rowSet{columns: columns}
	for len(set.rows) < limit && rows.Next() {
		row, err := scanRow(rows, columns)
		if err != nil {
			return rowSet{}, err
		}
		set.rows = append(set.rows, row)
	}
	return set, rows.Err()
}

func scanRow(rows *sql.Rows, columns []string) (map[string]any, error) {
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, nil
}

// sqlValue maps a YAML scalar onto the representation SQLite stores and
// returns: integers widen to int64, booleans become 0/1, bytes become text.
func sqlValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(val)
	case int64, string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

// stateValuesEqual compares a YAML expectation with a scanned column value.
// Strings never equal numbers.
func stateValuesEqual(expected, actual any) bool {
	return sqlValue(expected) == sqlValue(actual)
}
