package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/noticeboard/internal/model"
)

// pastRetention selects notifications with an expiry strictly before cutoff.
// Soft-deleted rows are included; notifications without an expiry never are.
func pastRetention(cutoff time.Time) predicate {
	return predicate{}.and("n.expires_at IS NOT NULL AND n.expires_at < ?", toMillis(cutoff))
}

// CountExpiredPastRetention returns the number of notifications that
// PurgeExpired(cutoff) would remove.
func (s *Store) CountExpiredPastRetention(ctx context.Context, cutoff time.Time) (int64, error) {
	p := pastRetention(cutoff)
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications n `+p.sql(), p.args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count expired past retention: %w", err)
	}
	return count, nil
}

// FindExpiredPastRetention returns the notifications that PurgeExpired(cutoff)
// would remove.
func (s *Store) FindExpiredPastRetention(ctx context.Context, cutoff time.Time) ([]model.Notification, error) {
	list, err := s.listWhere(ctx, pastRetention(cutoff))
	if err != nil {
		return nil, fmt.Errorf("find expired past retention: %w", err)
	}
	return list, nil
}

// PurgeCounts reports what a purge removed.
type PurgeCounts struct {
	Notifications int64
	Occurrences   int64
}

// PurgeExpired permanently removes notifications whose expiry is before
// cutoff. Their targets and ledger entries are removed by cascade.
// The ledger count is taken inside the same transaction as the delete.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (PurgeCounts, error) {
	p := pastRetention(cutoff)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PurgeCounts{}, fmt.Errorf("purge expired: begin tx: %w", err)
	}
	defer tx.Rollback()

	var counts PurgeCounts
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM processed_occurrences
		WHERE notification_id IN (SELECT n.id FROM notifications n `+p.sql()+`)
	`, p.args...).Scan(&counts.Occurrences)
	if err != nil {
		return PurgeCounts{}, fmt.Errorf("purge expired: count ledger: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE id IN (SELECT n.id FROM notifications n `+p.sql()+`)
	`, p.args...)
	if err != nil {
		return PurgeCounts{}, fmt.Errorf("purge expired: delete: %w", err)
	}
	counts.Notifications, err = result.RowsAffected()
	if err != nil {
		return PurgeCounts{}, fmt.Errorf("purge expired: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PurgeCounts{}, fmt.Errorf("purge expired: commit: %w", err)
	}
	return counts, nil
}
