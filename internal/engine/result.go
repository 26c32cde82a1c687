package engine

import "github.com/roach88/noticeboard/internal/model"

// CycleResult summarizes one engine cycle.
type CycleResult struct {
	// Date is the occurrence date the cycle evaluated.
	Date model.Date `json:"date"`

	// Candidates is the number of active recurring candidates found.
	Candidates int `json:"candidates"`

	// NotDue counts candidates whose rule does not occur on Date.
	NotDue int `json:"not_due"`

	// OccurrencesProcessed counts ledger entries this cycle created.
	OccurrencesProcessed int `json:"occurrences_processed"`

	// OccurrencesSkipped counts occurrences already claimed by an earlier
	// or concurrent cycle, or whose notification was purged mid-cycle.
	OccurrencesSkipped int `json:"occurrences_skipped"`

	TasksCreated int `json:"tasks_created"`

	// TasksSkipped counts users who already had a task for the notification.
	TasksSkipped int `json:"tasks_skipped"`

	Failures []TaskFailure `json:"failures,omitempty"`
}

// TaskFailure records a per-notification or per-user failure that did not
// abort the cycle. UserID is empty when the whole fan-out failed.
type TaskFailure struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id,omitempty"`
	Err            error  `json:"-"`
	Message        string `json:"error"`
}

func newFailure(err *RuntimeError) TaskFailure {
	return TaskFailure{
		NotificationID: err.NotificationID,
		UserID:         err.UserID,
		Err:            err,
		Message:        err.Error(),
	}
}
