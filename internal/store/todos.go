package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/noticeboard/internal/model"
)

// DeletePolicy controls what happens to a task's children when it is deleted.
type DeletePolicy int

const (
	// DeleteReject refuses to delete a task that has children.
	DeleteReject DeletePolicy = iota
	// DeleteCascade deletes the task and its whole subtree.
	DeleteCascade
	// DeleteReparent moves the task's children to the task's own parent
	// (or makes them roots) before deleting it.
	DeleteReparent
)

func (p DeletePolicy) String() string {
	switch p {
	case DeleteReject:
		return "reject"
	case DeleteCascade:
		return "cascade"
	case DeleteReparent:
		return "reparent"
	default:
		return fmt.Sprintf("DeletePolicy(%d)", int(p))
	}
}

// ParseDeletePolicy parses "reject", "cascade" or "reparent".
// The empty string means DeleteReject.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return DeleteReject, nil
	case "cascade":
		return DeleteCascade, nil
	case "reparent":
		return DeleteReparent, nil
	default:
		return DeleteReject, fmt.Errorf("unknown delete policy %q (want reject, cascade or reparent)", s)
	}
}

const todoColumns = `id, user_id, category, description, parent_id, source_notification_id, created_at`

// CreateTodo inserts a task. An empty ID is replaced with a fresh UUIDv7; a
// zero CreatedAt with the current time.
//
// Returns ErrInvalidParent if ParentID names a task that does not exist or
// belongs to another user, and ErrDuplicateTask if the user already has a
// task for the same source notification.
func (s *Store) CreateTodo(ctx context.Context, task model.TodoTask) (model.TodoTask, error) {
	if task.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return model.TodoTask{}, fmt.Errorf("create todo: generate id: %w", err)
		}
		task.ID = id.String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.CreatedAt = fromMillis(toMillis(task.CreatedAt))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.TodoTask{}, fmt.Errorf("create todo: begin tx: %w", err)
	}
	defer tx.Rollback()

	if task.ParentID != nil {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM todo_tasks WHERE id = ?`, *task.ParentID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != task.UserID) {
			return model.TodoTask{}, fmt.Errorf("create todo: parent %s: %w", *task.ParentID, ErrInvalidParent)
		}
		if err != nil {
			return model.TodoTask{}, fmt.Errorf("create todo: lookup parent: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO todo_tasks (`+todoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.UserID,
		task.Category,
		task.Description,
		nullString(task.ParentID),
		nullString(task.SourceNotificationID),
		toMillis(task.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.TodoTask{}, fmt.Errorf("create todo for user %s: %w", task.UserID, ErrDuplicateTask)
		}
		return model.TodoTask{}, fmt.Errorf("create todo: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.TodoTask{}, fmt.Errorf("create todo: commit: %w", err)
	}
	return task, nil
}

// GetTodo returns the task with the given ID owned by userID. A task owned
// by someone else is reported as ErrNotFound.
func (s *Store) GetTodo(ctx context.Context, userID, id string) (model.TodoTask, error) {
	return getTodo(ctx, s.db, userID, id)
}

func getTodo(ctx context.Context, q querier, userID, id string) (model.TodoTask, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+todoColumns+`
		FROM todo_tasks
		WHERE id = ? AND user_id = ?
	`, id, userID)
	task, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TodoTask{}, fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.TodoTask{}, err
	}
	return task, nil
}

// ExistsForSource reports whether userID already has a task generated from
// the given notification.
func (s *Store) ExistsForSource(ctx context.Context, userID, sourceNotificationID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM todo_tasks
			WHERE user_id = ? AND source_notification_id = ?
		)
	`, userID, sourceNotificationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists for source: %w", err)
	}
	return exists == 1, nil
}

// ListTodos returns every task owned by userID.
func (s *Store) ListTodos(ctx context.Context, userID string) ([]model.TodoTask, error) {
	return s.queryTodos(ctx, `WHERE user_id = ?`, userID)
}

// ListChildren returns userID's tasks directly under parentID. A nil parentID
// returns the user's root tasks.
func (s *Store) ListChildren(ctx context.Context, userID string, parentID *string) ([]model.TodoTask, error) {
	if parentID == nil {
		return s.queryTodos(ctx, `WHERE user_id = ? AND parent_id IS NULL`, userID)
	}
	return s.queryTodos(ctx, `WHERE user_id = ? AND parent_id = ?`, userID, *parentID)
}

// ListTodosBySource returns the tasks generated from a notification across
// all users.
func (s *Store) ListTodosBySource(ctx context.Context, sourceNotificationID string) ([]model.TodoTask, error) {
	return s.queryTodos(ctx, `WHERE source_notification_id = ?`, sourceNotificationID)
}

// CountTodos returns the total number of tasks.
func (s *Store) CountTodos(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM todo_tasks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count todos: %w", err)
	}
	return count, nil
}

func (s *Store) queryTodos(ctx context.Context, where string, args ...any) ([]model.TodoTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+todoColumns+`
		FROM todo_tasks
		`+where+`
		ORDER BY user_id COLLATE BINARY ASC, created_at ASC, id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close()

	tasks := []model.TodoTask{}
	for rows.Next() {
		task, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return tasks, nil
}

// DeleteTodo deletes userID's task id according to policy and returns the
// number of tasks removed.
//
// Children are never left dangling: DeleteReject fails with ErrOrphanTask
// while children exist, DeleteCascade removes the whole subtree and
// DeleteReparent moves the children up one level first.
func (s *Store) DeleteTodo(ctx context.Context, userID, id string, policy DeletePolicy) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete todo: begin tx: %w", err)
	}
	defer tx.Rollback()

	task, err := getTodo(ctx, tx, userID, id)
	if err != nil {
		return 0, fmt.Errorf("delete todo: %w", err)
	}

	var children int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM todo_tasks WHERE parent_id = ?`, id).Scan(&children); err != nil {
		return 0, fmt.Errorf("delete todo: count children: %w", err)
	}

	var result sql.Result
	switch policy {
	case DeleteReject:
		if children > 0 {
			return 0, fmt.Errorf("delete todo %s: %d children: %w", id, children, ErrOrphanTask)
		}
		result, err = tx.ExecContext(ctx, `DELETE FROM todo_tasks WHERE id = ?`, id)

	case DeleteCascade:
		// Foreign keys are checked at the end of the statement, so the
		// whole subtree can go in one DELETE.
		result, err = tx.ExecContext(ctx, `
			WITH RECURSIVE subtree(id) AS (
				SELECT id FROM todo_tasks WHERE id = ?
				UNION ALL
				SELECT t.id FROM todo_tasks t JOIN subtree s ON t.parent_id = s.id
			)
			DELETE FROM todo_tasks WHERE id IN (SELECT id FROM subtree)
		`, id)

	case DeleteReparent:
		if _, err := tx.ExecContext(ctx, `
			UPDATE todo_tasks SET parent_id = ? WHERE parent_id = ?
		`, nullString(task.ParentID), id); err != nil {
			return 0, fmt.Errorf("delete todo: reparent children: %w", err)
		}
		result, err = tx.ExecContext(ctx, `DELETE FROM todo_tasks WHERE id = ?`, id)

	default:
		return 0, fmt.Errorf("delete todo: unknown policy %s", policy)
	}
	if err != nil {
		return 0, fmt.Errorf("delete todo: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete todo: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete todo: commit: %w", err)
	}
	return removed, nil
}

func scanTodo(r rowScanner) (model.TodoTask, error) {
	var (
		task      model.TodoTask
		parentID  sql.NullString
		sourceID  sql.NullString
		createdAt int64
	)
	err := r.Scan(&task.ID, &task.UserID, &task.Category, &task.Description, &parentID, &sourceID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TodoTask{}, err
		}
		return model.TodoTask{}, fmt.Errorf("scan todo: %w", err)
	}
	task.ParentID = stringPtr(parentID)
	task.SourceNotificationID = stringPtr(sourceID)
	task.CreatedAt = fromMillis(createdAt)
	return task, nil
}
