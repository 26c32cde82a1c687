package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/noticeboard/internal/store"
)

// NewStore opens a store in a temp directory and closes it when the test
// ends.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "open store")
	t.Cleanup(func() { s.Close() })
	return s
}

// AddUsers registers ids in the store's user directory.
func AddUsers(t testing.TB, s *store.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := s.AddUser(context.Background(), id, time.Unix(0, 0).UTC())
		require.NoError(t, err, "add user %s", id)
	}
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
