// Package engine turns recurring notifications into TODO tasks, exactly once
// per occurrence date.
//
// A cycle evaluates every active recurring candidate at one instant:
//
//  1. Candidates are loaded from the store (not deleted, recurring, with an
//     action item, not expired at the instant)
//  2. The occurrence date is the instant's calendar date in the engine's
//     location; the rule decides whether that date is an occurrence
//  3. The occurrence is claimed in the ledger; a lost claim skips the
//     notification, because another run already handled it
//  4. Targets are resolved: every known user for global notifications,
//     otherwise the explicit target set
//  5. Each target without a task for the notification gets a root task
//     copied from the action item
//
// CRITICAL PATTERNS:
//
// Exactly-once:
// The ledger insert is the only synchronization point. Concurrent cycles
// for the same instant race on it and exactly one proceeds to fan-out.
//
// Partial-failure isolation:
// A failure for one user is recorded in CycleResult.Failures and never stops
// the cycle. The ledger entry is not rolled back; the per-user duplicate
// guard lets a later cycle retry only the users that failed.
//
// Storage failures while loading candidates or claiming occurrences abort
// the cycle with a STORAGE_UNAVAILABLE RuntimeError. The next cycle starts
// over and is idempotent.
package engine
