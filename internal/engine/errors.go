package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during a cycle.
//
// Runtime errors include:
//   - Storage unavailable: candidates or the ledger could not be read or written
//   - Directory unavailable: the user directory could not resolve a global fan-out
//   - Task create failed: a single user's task could not be created
//
// Only storage errors abort a cycle. The other codes are reported per
// notification or per user in CycleResult.Failures.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// NotificationID identifies the affected notification, if any.
	NotificationID string

	// UserID identifies the affected user, if any.
	UserID string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStorageUnavailable indicates the store failed on a step that
	// the whole cycle depends on.
	ErrCodeStorageUnavailable RuntimeErrorCode = "STORAGE_UNAVAILABLE"

	// ErrCodeDirectoryUnavailable indicates the user directory failed.
	ErrCodeDirectoryUnavailable RuntimeErrorCode = "DIRECTORY_UNAVAILABLE"

	// ErrCodeTaskCreateFailed indicates a task could not be created for one user.
	ErrCodeTaskCreateFailed RuntimeErrorCode = "TASK_CREATE_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.NotificationID != "" && e.UserID != "" {
		msg = fmt.Sprintf("%s (notification=%s, user=%s)", msg, e.NotificationID, e.UserID)
	} else if e.NotificationID != "" {
		msg = fmt.Sprintf("%s (notification=%s)", msg, e.NotificationID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStorageUnavailable returns true if the error is a storage failure.
// Uses errors.As to handle wrapped errors.
func IsStorageUnavailable(err error) bool {
	return hasCode(err, ErrCodeStorageUnavailable)
}

// IsDirectoryUnavailable returns true if the error is a user directory failure.
func IsDirectoryUnavailable(err error) bool {
	return hasCode(err, ErrCodeDirectoryUnavailable)
}

// IsTaskCreateFailed returns true if the error is a per-user task failure.
func IsTaskCreateFailed(err error) bool {
	return hasCode(err, ErrCodeTaskCreateFailed)
}

// NewStorageError creates a RuntimeError for a failed storage step.
func NewStorageError(step, notificationID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:           ErrCodeStorageUnavailable,
		Message:        step,
		NotificationID: notificationID,
		Err:            err,
	}
}

// NewDirectoryError creates a RuntimeError for a failed user lookup.
func NewDirectoryError(notificationID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:           ErrCodeDirectoryUnavailable,
		Message:        "resolve all users",
		NotificationID: notificationID,
		Err:            err,
	}
}

// NewTaskCreateError creates a RuntimeError for one user's failed task.
func NewTaskCreateError(notificationID, userID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:           ErrCodeTaskCreateFailed,
		Message:        "create task",
		NotificationID: notificationID,
		UserID:         userID,
		Err:            err,
	}
}
