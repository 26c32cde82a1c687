// Package retention permanently removes notifications that expired longer
// ago than the retention window.
//
// Purging is distinct from soft deletion: it ignores the deleted flag and
// removes rows for good, together with their targets and ledger entries.
// Notifications without an expiry are never purged.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/noticeboard/internal/engine"
	"github.com/roach88/noticeboard/internal/model"
	"github.com/roach88/noticeboard/internal/store"
)

// DefaultRetentionDays is used when configuration does not set one.
const DefaultRetentionDays = 30

// Storage is the part of the store the cleaner needs. *store.Store
// satisfies it.
type Storage interface {
	CountNotifications(ctx context.Context) (int64, error)
	CountExpiredPastRetention(ctx context.Context, cutoff time.Time) (int64, error)
	FindExpiredPastRetention(ctx context.Context, cutoff time.Time) ([]model.Notification, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (store.PurgeCounts, error)
}

// Cutoff returns the retention cutoff: retentionDays calendar days before now.
func Cutoff(now time.Time, retentionDays int) time.Time {
	return now.AddDate(0, 0, -retentionDays)
}

// Cleaner runs retention purges.
type Cleaner struct {
	store  Storage
	days   int
	clock  engine.Clock
	logger *slog.Logger
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithClock sets the clock Run and Stats read. Default: engine.SystemClock.
func WithClock(c engine.Clock) Option {
	return func(cl *Cleaner) {
		cl.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(cl *Cleaner) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewCleaner creates a Cleaner keeping expired notifications for
// retentionDays before purging them.
func NewCleaner(s Storage, retentionDays int, opts ...Option) (*Cleaner, error) {
	if retentionDays < 0 {
		return nil, fmt.Errorf("retention days must not be negative, got %d", retentionDays)
	}
	c := &Cleaner{
		store:  s,
		days:   retentionDays,
		clock:  engine.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RetentionDays returns the configured window.
func (c *Cleaner) RetentionDays() int {
	return c.days
}

// Cutoff returns the cutoff at the clock's current instant.
func (c *Cleaner) Cutoff() time.Time {
	return Cutoff(c.clock.Now(), c.days)
}

// CountExpiredPastRetention returns how many notifications a purge at cutoff
// would remove.
func (c *Cleaner) CountExpiredPastRetention(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := c.store.CountExpiredPastRetention(ctx, cutoff)
	if err != nil {
		return 0, engine.NewStorageError("count expired past retention", "", err)
	}
	return n, nil
}

// FindExpiredPastRetention returns the notifications a purge at cutoff would
// remove.
func (c *Cleaner) FindExpiredPastRetention(ctx context.Context, cutoff time.Time) ([]model.Notification, error) {
	list, err := c.store.FindExpiredPastRetention(ctx, cutoff)
	if err != nil {
		return nil, engine.NewStorageError("find expired past retention", "", err)
	}
	return list, nil
}

// PurgeResult summarizes one purge.
type PurgeResult struct {
	Cutoff time.Time `json:"cutoff"`

	// Expected is the pre-purge count reported before deleting.
	Expected int64 `json:"expected"`

	Purged               int64 `json:"purged"`
	LedgerEntriesRemoved int64 `json:"ledger_entries_removed"`
}

// PurgeExpired reports the number of notifications past cutoff, then removes
// them. The count and the purge are separate reads, so Purged may differ from
// Expected if notifications change in between.
func (c *Cleaner) PurgeExpired(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	result := PurgeResult{Cutoff: cutoff}

	expected, err := c.CountExpiredPastRetention(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.Expected = expected
	c.logger.Info("purging expired notifications", "cutoff", cutoff, "count", expected)

	if expected == 0 {
		return result, nil
	}

	counts, err := c.store.PurgeExpired(ctx, cutoff)
	if err != nil {
		return result, engine.NewStorageError("purge expired", "", err)
	}
	result.Purged = counts.Notifications
	result.LedgerEntriesRemoved = counts.Occurrences

	c.logger.Info("purge complete",
		"cutoff", cutoff,
		"purged", result.Purged,
		"ledger_entries_removed", result.LedgerEntriesRemoved,
	)
	return result, nil
}

// Run purges at the cutoff derived from the clock and the retention window.
func (c *Cleaner) Run(ctx context.Context) (PurgeResult, error) {
	return c.PurgeExpired(ctx, c.Cutoff())
}

// Stats describes what a purge would do right now.
type Stats struct {
	Total         int64     `json:"total"`
	Deletable     int64     `json:"deletable"`
	Retained      int64     `json:"retained"`
	RetentionDays int       `json:"retention_days"`
	Cutoff        time.Time `json:"cutoff"`
}

// Stats returns counts of stored, deletable and retained notifications at
// the clock's current instant.
func (c *Cleaner) Stats(ctx context.Context) (Stats, error) {
	cutoff := c.Cutoff()

	total, err := c.store.CountNotifications(ctx)
	if err != nil {
		return Stats{}, engine.NewStorageError("count notifications", "", err)
	}
	deletable, err := c.CountExpiredPastRetention(ctx, cutoff)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Total:         total,
		Deletable:     deletable,
		Retained:      total - deletable,
		RetentionDays: c.days,
		Cutoff:        cutoff,
	}, nil
}
