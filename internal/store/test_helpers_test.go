package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/noticeboard/internal/model"
)

// baseTime is the fixed instant store tests are evaluated at.
var baseTime = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestNotification inserts n and fails the test on error.
func createTestNotification(t *testing.T, s *Store, n model.Notification) model.Notification {
	t.Helper()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = baseTime
	}
	stored, err := s.CreateNotification(context.Background(), n)
	if err != nil {
		t.Fatalf("CreateNotification(%q) failed: %v", n.ID, err)
	}
	return stored
}

func ptr[T any](v T) *T { return &v }

func recurring(id string, global bool, targets ...string) model.Notification {
	return model.Notification{
		ID:             id,
		IsGlobal:       global,
		TargetUserIDs:  targets,
		RecurrenceRule: ptr("every Monday"),
		ActionItem:     model.NewActionItem("Pay rent", "finance"),
	}
}
