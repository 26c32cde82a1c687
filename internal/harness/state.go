package harness

import (
	"context"
	"fmt"

	"github.com/roach88/noticeboard/internal/store"
)

// stateQueries summarize the final tables without generated IDs or
// wall-clock timestamps, so snapshots are stable across runs.
var stateQueries = []struct {
	name    string
	query   string
	columns []string
}{
	{
		name:    "notifications",
		query:   `SELECT id, is_global, deleted FROM notifications ORDER BY id`,
		columns: []string{"id", "global", "deleted"},
	},
	{
		name:    "processed_occurrences",
		query:   `SELECT notification_id, occurrence_date FROM processed_occurrences ORDER BY notification_id, occurrence_date`,
		columns: []string{"notification_id", "occurrence_date"},
	},
	{
		name: "todo_tasks",
		query: `SELECT t.user_id, t.description, t.category, COALESCE(t.source_notification_id, ''), COALESCE(p.description, '')
			FROM todo_tasks t LEFT JOIN todo_tasks p ON p.id = t.parent_id
			ORDER BY t.user_id, t.description, t.category`,
		columns: []string{"user_id", "description", "category", "source", "parent"},
	},
}

// captureState reads every summary query. Integer flag columns are reported
// as booleans, empty strings are omitted.
func captureState(ctx context.Context, st *store.Store) (map[string]interface{}, error) {
	state := make(map[string]interface{}, len(stateQueries))
	for _, q := range stateQueries {
		rows, err := readRows(ctx, st, q.query, q.columns)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", q.name, err)
		}
		state[q.name] = rows
	}
	return state, nil
}

func readRows(ctx context.Context, st *store.Store, query string, columns []string) ([]interface{}, error) {
	rows, err := st.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case int64:
				row[col] = v != 0
			case []byte:
				if len(v) > 0 {
					row[col] = string(v)
				}
			case string:
				if v != "" {
					row[col] = v
				}
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
