package store

import (
	"context"
	"fmt"
	"time"
)

// AddUser registers a user in the directory. Reports whether the user was
// newly added; adding an existing user is a no-op.
func (s *Store) AddUser(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, created_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("add user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add user: rows affected: %w", err)
	}
	return n == 1, nil
}

// AllUserIDs returns every known user ID in sorted order.
func (s *Store) AllUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("all user ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return ids, nil
}
