package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a record does not exist or is not visible
	// to the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrNotificationExists is returned when creating a notification whose ID
	// is already taken.
	ErrNotificationExists = errors.New("notification already exists")

	// ErrAlreadyProcessed is returned by RecordProcessed when a ledger entry
	// for the (notification, date) pair already exists. Callers treat it as
	// a successful no-op.
	ErrAlreadyProcessed = errors.New("occurrence already processed")

	// ErrDuplicateTask is returned when a task for the same (user, source
	// notification) pair already exists.
	ErrDuplicateTask = errors.New("duplicate task for source notification")

	// ErrOrphanTask is returned when deleting a task that still has children
	// without a cascade or reparent policy.
	ErrOrphanTask = errors.New("task has children")

	// ErrInvalidParent is returned when a task's parent does not exist or is
	// owned by a different user.
	ErrInvalidParent = errors.New("invalid parent task")
)

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// isForeignKeyViolation reports whether err is a SQLite FOREIGN KEY
// constraint failure.
func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
