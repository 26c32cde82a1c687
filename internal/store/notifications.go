package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/noticeboard/internal/model"
)

const notificationColumns = `n.id, n.title, n.message, n.is_global, n.deleted, n.expires_at,
	n.recurrence_rule, n.action_description, n.action_category, n.created_at`

// targetBatchSize bounds the number of bound parameters per target lookup.
const targetBatchSize = 500

// CreateNotification inserts n and its target set in one transaction.
// An empty ID is replaced with a fresh UUIDv7; a zero CreatedAt with the
// current time. Returns the stored notification.
func (s *Store) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return model.Notification{}, fmt.Errorf("create notification: generate id: %w", err)
		}
		n.ID = id.String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.TargetUserIDs = uniqueSorted(n.TargetUserIDs)

	var desc, category sql.NullString
	if n.ActionItem != nil {
		desc = sql.NullString{String: n.ActionItem.Description, Valid: true}
		category = sql.NullString{String: n.ActionItem.Category, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Notification{}, fmt.Errorf("create notification: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications
		(id, title, message, is_global, deleted, expires_at, recurrence_rule,
		 action_description, action_category, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID,
		n.Title,
		n.Message,
		boolInt(n.IsGlobal),
		boolInt(n.Deleted),
		nullMillis(n.ExpiresAt),
		nullString(n.RecurrenceRule),
		desc,
		category,
		toMillis(n.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Notification{}, fmt.Errorf("create notification %s: %w", n.ID, ErrNotificationExists)
		}
		return model.Notification{}, fmt.Errorf("create notification: %w", err)
	}

	for _, userID := range n.TargetUserIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notification_targets (notification_id, user_id)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, n.ID, userID)
		if err != nil {
			return model.Notification{}, fmt.Errorf("create notification: insert target: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Notification{}, fmt.Errorf("create notification: commit: %w", err)
	}

	n.CreatedAt = fromMillis(toMillis(n.CreatedAt))
	if n.ExpiresAt != nil {
		t := fromMillis(toMillis(*n.ExpiresAt))
		n.ExpiresAt = &t
	}
	return n, nil
}

// GetNotification returns the notification with the given ID, including
// soft-deleted ones. Returns ErrNotFound if it does not exist.
func (s *Store) GetNotification(ctx context.Context, id string) (model.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications n
		WHERE n.id = ?
	`, id)

	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Notification{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Notification{}, fmt.Errorf("get notification: %w", err)
	}

	list := []model.Notification{n}
	if err := attachTargets(ctx, s.db, list); err != nil {
		return model.Notification{}, err
	}
	return list[0], nil
}

// SoftDelete marks a notification deleted. The row is kept.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	return s.setDeleted(ctx, id, true)
}

// Restore clears the deleted flag on a notification.
func (s *Store) Restore(ctx context.Context, id string) error {
	return s.setDeleted(ctx, id, false)
}

func (s *Store) setDeleted(ctx context.Context, id string, deleted bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET deleted = ? WHERE id = ?
	`, boolInt(deleted), id)
	if err != nil {
		return fmt.Errorf("set deleted: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set deleted: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListNotifications returns every notification, optionally including
// soft-deleted ones. Intended for operators, not user-facing views.
func (s *Store) ListNotifications(ctx context.Context, includeDeleted bool) ([]model.Notification, error) {
	var f predicate
	if !includeDeleted {
		f = f.and("n.deleted = 0")
	}
	return s.listWhere(ctx, f)
}

// ListGlobal returns the global view: global, not deleted.
func (s *Store) ListGlobal(ctx context.Context) ([]model.Notification, error) {
	return s.listWhere(ctx, notDeleted().and("n.is_global = 1"))
}

// ListForUser returns the all-for-user view: global or targeted at userID,
// not deleted, regardless of expiry.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]model.Notification, error) {
	return s.listWhere(ctx, visibleTo(userID))
}

// ListActiveForUser returns the non-expired-for-user view: the all-for-user
// view restricted to notifications with no expiry or an expiry after now.
func (s *Store) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]model.Notification, error) {
	return s.listWhere(ctx, notExpired(visibleTo(userID), now))
}

// FindActiveRecurringCandidates returns the notifications the occurrence
// engine must consider at instant at: not deleted, carrying a recurrence
// rule and an action item with a non-blank description, and not expired.
func (s *Store) FindActiveRecurringCandidates(ctx context.Context, at time.Time) ([]model.Notification, error) {
	f := notExpired(notDeleted(), at).
		and("n.recurrence_rule IS NOT NULL AND n.recurrence_rule <> ''").
		and("n.action_description IS NOT NULL AND trim(n.action_description, ' ' || char(9) || char(10) || char(13)) <> ''")

	list, err := s.listWhere(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find recurring candidates: %w", err)
	}

	// SQL trim only knows ASCII whitespace; the model check is authoritative.
	out := list[:0]
	for i := range list {
		if list[i].IsActiveRecurringCandidate(at) {
			out = append(out, list[i])
		}
	}
	return out, nil
}

// CountNotifications returns the number of stored notifications, including
// soft-deleted ones.
func (s *Store) CountNotifications(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

// CountExpired returns the number of notifications expired at instant at.
func (s *Store) CountExpired(ctx context.Context, at time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, toMillis(at)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count expired: %w", err)
	}
	return count, nil
}

// predicate is a conjunction of SQL conditions over the notifications
// table aliased as n. The visibility views are built by layering predicates.
type predicate struct {
	clauses []string
	args    []any
}

func (p predicate) and(clause string, args ...any) predicate {
	return predicate{
		clauses: append(append([]string(nil), p.clauses...), clause),
		args:    append(append([]any(nil), p.args...), args...),
	}
}

func (p predicate) sql() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(p.clauses, " AND ")
}

func notDeleted() predicate {
	return predicate{}.and("n.deleted = 0")
}

func visibleTo(userID string) predicate {
	return notDeleted().and(`(n.is_global = 1 OR EXISTS (
		SELECT 1 FROM notification_targets t
		WHERE t.notification_id = n.id AND t.user_id = ?))`, userID)
}

func notExpired(p predicate, now time.Time) predicate {
	return p.and("(n.expires_at IS NULL OR n.expires_at > ?)", toMillis(now))
}

func (s *Store) listWhere(ctx context.Context, p predicate) ([]model.Notification, error) {
	return listNotifications(ctx, s.db, p)
}

func listNotifications(ctx context.Context, q querier, p predicate) ([]model.Notification, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications n
		`+p.sql()+`
		ORDER BY n.created_at ASC, n.id COLLATE BINARY ASC
	`, p.args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}

	list := []model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	// Close before the target lookup: the pool holds a single connection.
	rows.Close()

	if err := attachTargets(ctx, q, list); err != nil {
		return nil, err
	}
	return list, nil
}

// attachTargets loads target user IDs for the non-global notifications in
// list, in batches.
func attachTargets(ctx context.Context, q querier, list []model.Notification) error {
	index := make(map[string]int, len(list))
	ids := make([]any, 0, len(list))
	for i := range list {
		list[i].TargetUserIDs = []string{}
		index[list[i].ID] = i
		ids = append(ids, list[i].ID)
	}

	for start := 0; start < len(ids); start += targetBatchSize {
		end := min(start+targetBatchSize, len(ids))
		batch := ids[start:end]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")

		rows, err := q.QueryContext(ctx, `
			SELECT notification_id, user_id
			FROM notification_targets
			WHERE notification_id IN (`+placeholders+`)
			ORDER BY notification_id COLLATE BINARY ASC, user_id COLLATE BINARY ASC
		`, batch...)
		if err != nil {
			return fmt.Errorf("query targets: %w", err)
		}
		for rows.Next() {
			var nid, uid string
			if err := rows.Scan(&nid, &uid); err != nil {
				rows.Close()
				return fmt.Errorf("scan target: %w", err)
			}
			i := index[nid]
			list[i].TargetUserIDs = append(list[i].TargetUserIDs, uid)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate targets: %w", err)
		}
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(r rowScanner) (model.Notification, error) {
	var (
		n                 model.Notification
		isGlobal, deleted int
		expiresAt         sql.NullInt64
		rule              sql.NullString
		desc, category    sql.NullString
		createdAt         int64
	)
	err := r.Scan(&n.ID, &n.Title, &n.Message, &isGlobal, &deleted, &expiresAt,
		&rule, &desc, &category, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Notification{}, err
		}
		return model.Notification{}, fmt.Errorf("scan notification: %w", err)
	}

	n.IsGlobal = isGlobal == 1
	n.Deleted = deleted == 1
	n.ExpiresAt = timePtr(expiresAt)
	n.RecurrenceRule = stringPtr(rule)
	if desc.Valid {
		n.ActionItem = &model.ActionItem{Description: desc.String, Category: category.String}
	}
	n.CreatedAt = fromMillis(createdAt)
	return n, nil
}

func uniqueSorted(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	out := append([]string(nil), ids...)
	sort.Strings(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[j-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}
