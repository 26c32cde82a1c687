package model

import "time"

// ProcessedOccurrence is an Occurrence Ledger entry. At most one exists per
// (NotificationID, OccurrenceDate); the store enforces this with a unique
// constraint.
type ProcessedOccurrence struct {
	ID             string
	NotificationID string
	OccurrenceDate Date
	ProcessedAt    time.Time
}
