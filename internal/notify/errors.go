package notify

import "errors"

var (
	// ErrUnauthenticated is returned when the principal carries no user ID.
	ErrUnauthenticated = errors.New("no authenticated principal")

	// ErrForbidden is returned when the principal may not perform the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidDraft is returned when a notification or task draft is
	// rejected before reaching the store.
	ErrInvalidDraft = errors.New("invalid draft")
)
