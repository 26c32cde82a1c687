// Package store provides SQLite-backed durable storage for notifications,
// the occurrence ledger, TODO tasks and the user directory.
//
// # Critical Patterns
//
// Exactly-once occurrences
//   - UNIQUE(notification_id, occurrence_date) on processed_occurrences
//   - RecordProcessed uses INSERT ... ON CONFLICT DO NOTHING and reports
//     ErrAlreadyProcessed when no row was inserted
//
// Duplicate task guard
//   - Partial unique index on todo_tasks(user_id, source_notification_id)
//   - CreateTodo reports ErrDuplicateTask on violation
//
// Two deletion tiers
//   - SoftDelete/Restore flip notifications.deleted and never remove rows
//   - PurgeExpired hard-deletes; targets and ledger rows cascade
//
// Deterministic query results
//   - List queries order by created_at then id COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as INTEGER unix milliseconds in UTC. Calendar dates
// are stored as TEXT in YYYY-MM-DD form.
package store
