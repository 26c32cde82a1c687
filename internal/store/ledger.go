package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/noticeboard/internal/model"
)

// HasProcessed reports whether a ledger entry exists for the pair.
func (s *Store) HasProcessed(ctx context.Context, notificationID string, date model.Date) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM processed_occurrences
			WHERE notification_id = ? AND occurrence_date = ?
		)
	`, notificationID, date.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has processed: %w", err)
	}
	return exists == 1, nil
}

// RecordProcessed claims the (notificationID, date) occurrence.
//
// Exactly one caller wins for a given pair, across goroutines and processes
// sharing the database: the insert uses ON CONFLICT DO NOTHING against
// UNIQUE(notification_id, occurrence_date), and zero affected rows means
// another caller got there first. Losers receive ErrAlreadyProcessed.
//
// Returns ErrNotFound when the notification no longer exists, which happens
// when a purge races the engine.
func (s *Store) RecordProcessed(ctx context.Context, notificationID string, date model.Date, at time.Time) (model.ProcessedOccurrence, error) {
	id, err := model.OccurrenceID(notificationID, date)
	if err != nil {
		return model.ProcessedOccurrence{}, fmt.Errorf("record processed: %w", err)
	}

	entry := model.ProcessedOccurrence{
		ID:             id,
		NotificationID: notificationID,
		OccurrenceDate: date,
		ProcessedAt:    fromMillis(toMillis(at)),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ProcessedOccurrence{}, fmt.Errorf("record processed: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO processed_occurrences
		(id, notification_id, occurrence_date, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		entry.ID,
		entry.NotificationID,
		entry.OccurrenceDate.String(),
		toMillis(entry.ProcessedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.ProcessedOccurrence{}, fmt.Errorf("record processed: notification %s: %w", notificationID, ErrNotFound)
		}
		return model.ProcessedOccurrence{}, fmt.Errorf("record processed: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return model.ProcessedOccurrence{}, fmt.Errorf("record processed: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ProcessedOccurrence{}, fmt.Errorf("record processed %s@%s: %w", notificationID, date, ErrAlreadyProcessed)
	}

	if err := tx.Commit(); err != nil {
		return model.ProcessedOccurrence{}, fmt.Errorf("record processed: commit: %w", err)
	}
	return entry, nil
}

// ListProcessed returns the ledger entries for a notification, oldest
// occurrence first.
func (s *Store) ListProcessed(ctx context.Context, notificationID string) ([]model.ProcessedOccurrence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, notification_id, occurrence_date, processed_at
		FROM processed_occurrences
		WHERE notification_id = ?
		ORDER BY occurrence_date ASC, id COLLATE BINARY ASC
	`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list processed: %w", err)
	}
	defer rows.Close()

	entries := []model.ProcessedOccurrence{}
	for rows.Next() {
		entry, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed: %w", err)
	}
	return entries, nil
}

// CountProcessed returns the total number of ledger entries.
func (s *Store) CountProcessed(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_occurrences`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count processed: %w", err)
	}
	return count, nil
}

func scanOccurrence(r rowScanner) (model.ProcessedOccurrence, error) {
	var (
		entry       model.ProcessedOccurrence
		date        string
		processedAt int64
	)
	if err := r.Scan(&entry.ID, &entry.NotificationID, &date, &processedAt); err != nil {
		return model.ProcessedOccurrence{}, fmt.Errorf("scan occurrence: %w", err)
	}
	d, err := model.ParseDate(date)
	if err != nil {
		return model.ProcessedOccurrence{}, fmt.Errorf("scan occurrence: %w", err)
	}
	entry.OccurrenceDate = d
	entry.ProcessedAt = fromMillis(processedAt)
	return entry, nil
}
