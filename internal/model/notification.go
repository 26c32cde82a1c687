package model

import "time"

// Notification is a message targeted either at every user or at an explicit
// set of users.
//
// Deleted is a reversible soft-delete flag. Physical removal only happens in
// the retention purge, once ExpiresAt is older than the retention cutoff.
type Notification struct {
	ID      string
	Title   string
	Message string

	// IsGlobal makes the notification visible to every user.
	IsGlobal bool

	// TargetUserIDs is only meaningful when IsGlobal is false.
	// An empty set means the notification is visible to no one.
	TargetUserIDs []string

	Deleted bool

	// ExpiresAt is nil for notifications that never expire.
	ExpiresAt *time.Time

	// RecurrenceRule is nil for one-shot notifications.
	RecurrenceRule *string

	ActionItem *ActionItem

	CreatedAt time.Time
}

// IsRecurring reports whether the notification carries a recurrence rule.
func (n *Notification) IsRecurring() bool {
	return n.RecurrenceRule != nil && *n.RecurrenceRule != ""
}

// ExpiredAt reports whether the notification is expired at instant at.
// A notification expiring exactly at `at` counts as expired.
func (n *Notification) ExpiredAt(at time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(at)
}

// IsActiveRecurringCandidate reports whether the engine should consider this
// notification at instant at.
func (n *Notification) IsActiveRecurringCandidate(at time.Time) bool {
	return !n.Deleted && n.IsRecurring() && n.ActionItem.Eligible() && !n.ExpiredAt(at)
}

// Targets reports whether the notification is addressed to userID, either
// globally or through explicit targeting.
func (n *Notification) Targets(userID string) bool {
	if n.IsGlobal {
		return true
	}
	for _, id := range n.TargetUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
