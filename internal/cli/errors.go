package cli

import (
	"errors"

	"github.com/roach88/noticeboard/internal/engine"
	"github.com/roach88/noticeboard/internal/notify"
	"github.com/roach88/noticeboard/internal/store"
)

// errorCodes maps domain errors to CLI error codes, checked in order.
var errorCodes = []struct {
	err  error
	code string
}{
	{notify.ErrUnauthenticated, "E_UNAUTHENTICATED"},
	{notify.ErrForbidden, "E_FORBIDDEN"},
	{notify.ErrInvalidDraft, "E_INVALID_DRAFT"},
	{store.ErrNotFound, "E_NOT_FOUND"},
	{store.ErrNotificationExists, "E_ALREADY_EXISTS"},
	{store.ErrOrphanTask, "E_ORPHAN_TASK"},
	{store.ErrInvalidParent, "E_INVALID_PARENT"},
	{store.ErrDuplicateTask, "E_DUPLICATE_TASK"},
}

// errorCode classifies err for JSON error responses.
func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	if engine.IsStorageUnavailable(err) {
		return "E_STORAGE_UNAVAILABLE"
	}
	return "E_FAILED"
}

// operationError reports a failed operation. In JSON mode the error is also
// written to stdout as an error response.
func operationError(f *OutputFormatter, action string, err error) error {
	if f.Format == "json" {
		if werr := f.Error(errorCode(err), err.Error(), map[string]string{"action": action}); werr != nil {
			return werr
		}
	}
	return WrapExitError(ExitFailure, "failed to "+action, err)
}
