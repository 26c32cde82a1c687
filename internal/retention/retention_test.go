package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/noticeboard/internal/engine"
	"github.com/roach88/noticeboard/internal/model"
	"github.com/roach88/noticeboard/internal/store"
	"github.com/roach88/noticeboard/internal/testutil"
)

var now = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newTestCleaner(t *testing.T, s Storage, days int) *Cleaner {
	t.Helper()
	c, err := NewCleaner(s, days,
		WithClock(testutil.NewFixedClock(now)),
		WithLogger(testutil.DiscardLogger()),
	)
	require.NoError(t, err)
	return c
}

func seed(t *testing.T, s *store.Store, n model.Notification) {
	t.Helper()
	n.CreatedAt = now.AddDate(0, 0, -60)
	_, err := s.CreateNotification(context.Background(), n)
	require.NoError(t, err)
}

func TestCutoff(t *testing.T) {
	assert.Equal(t, time.Date(2024, 5, 4, 9, 0, 0, 0, time.UTC), Cutoff(now, 30))
	assert.Equal(t, now, Cutoff(now, 0))
	// Calendar days, not 24h blocks.
	assert.Equal(t, time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC), Cutoff(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 1))
}

func TestNewCleaner_RejectsNegativeDays(t *testing.T) {
	_, err := NewCleaner(testutil.NewStore(t), -1)
	assert.Error(t, err)
}

func TestPurgeExpired_ExpiredFortyDaysAgo(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	seed(t, s, model.Notification{ID: "N2", IsGlobal: true, ExpiresAt: ptr(now.AddDate(0, 0, -40))})
	c := newTestCleaner(t, s, 30)

	cutoff := c.Cutoff()
	assert.Equal(t, now.AddDate(0, 0, -30), cutoff)

	count, err := c.CountExpiredPastRetention(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	result, err := c.PurgeExpired(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Expected)
	assert.Equal(t, int64(1), result.Purged)

	_, err = s.GetNotification(ctx, "N2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPurgeExpired_KeepsRecentAndUnexpiring(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	seed(t, s, model.Notification{ID: "recent", IsGlobal: true, ExpiresAt: ptr(now.AddDate(0, 0, -10))})
	seed(t, s, model.Notification{ID: "forever", IsGlobal: true})
	seed(t, s, model.Notification{ID: "forever-deleted", Deleted: true})
	seed(t, s, model.Notification{ID: "old-deleted", Deleted: true, ExpiresAt: ptr(now.AddDate(0, 0, -31))})
	c := newTestCleaner(t, s, 30)

	result, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Purged)

	remaining, err := s.ListNotifications(ctx, true)
	require.NoError(t, err)
	var got []string
	for _, n := range remaining {
		got = append(got, n.ID)
	}
	assert.ElementsMatch(t, []string{"recent", "forever", "forever-deleted"}, got)
}

func TestPurgeExpired_CascadesLedger(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	seed(t, s, model.Notification{
		ID:             "old",
		IsGlobal:       true,
		ExpiresAt:      ptr(now.AddDate(0, 0, -45)),
		RecurrenceRule: ptr("daily"),
		ActionItem:     model.NewActionItem("Stretch", "health"),
	})
	for _, d := range []string{"2024-04-10", "2024-04-11"} {
		_, err := s.RecordProcessed(ctx, "old", model.MustParseDate(d), now)
		require.NoError(t, err)
	}
	c := newTestCleaner(t, s, 30)

	result, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.LedgerEntriesRemoved)

	ledger, err := s.CountProcessed(ctx)
	require.NoError(t, err)
	assert.Zero(t, ledger)
}

func TestFindExpiredPastRetention_NeverSelectsNilExpiry(t *testing.T) {
	s := testutil.NewStore(t)
	seed(t, s, model.Notification{ID: "forever", IsGlobal: true})
	c := newTestCleaner(t, s, 0)

	for _, cutoff := range []time.Time{now, now.AddDate(50, 0, 0)} {
		list, err := c.FindExpiredPastRetention(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Empty(t, list)
	}
}

func TestPurgeExpired_NothingToDo(t *testing.T) {
	s := testutil.NewStore(t)
	c := newTestCleaner(t, s, 30)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Expected)
	assert.Zero(t, result.Purged)
}

func TestStats(t *testing.T) {
	s := testutil.NewStore(t)
	seed(t, s, model.Notification{ID: "old", ExpiresAt: ptr(now.AddDate(0, 0, -40))})
	seed(t, s, model.Notification{ID: "new", ExpiresAt: ptr(now.AddDate(0, 0, 5))})
	seed(t, s, model.Notification{ID: "forever"})
	c := newTestCleaner(t, s, 30)

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Total:         3,
		Deletable:     1,
		Retained:      2,
		RetentionDays: 30,
		Cutoff:        now.AddDate(0, 0, -30),
	}, stats)
}

type brokenStorage struct{ Storage }

func (brokenStorage) CountExpiredPastRetention(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestPurgeExpired_StorageUnavailable(t *testing.T) {
	c := newTestCleaner(t, brokenStorage{Storage: testutil.NewStore(t)}, 30)

	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, engine.IsStorageUnavailable(err))
}
