// Package model defines the persisted entities of the notification service.
//
// The field names of Notification, ProcessedOccurrence and TodoTask form the
// stable schema contract shared with the store and any API layer:
//
//   - Notification: targeting (global or per-user), soft-delete flag,
//     optional expiry, optional recurrence rule and optional action item
//   - ProcessedOccurrence: one ledger row per (notification, occurrence date)
//   - TodoTask: user-owned task, optionally parented and optionally traced
//     back to the notification that generated it
//
// Ledger entry IDs are content-addressed (see hash.go) so that the same
// (notification, date) pair always maps to the same identity.
package model
