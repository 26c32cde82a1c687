package store

import (
	"context"
	"testing"
)

func TestUsers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"u2", "u1", "u3"} {
		added, err := s.AddUser(ctx, id, baseTime)
		if err != nil {
			t.Fatalf("AddUser(%q) failed: %v", id, err)
		}
		if !added {
			t.Errorf("AddUser(%q) = false for new user", id)
		}
	}

	added, err := s.AddUser(ctx, "u1", baseTime)
	if err != nil {
		t.Fatalf("AddUser duplicate failed: %v", err)
	}
	if added {
		t.Error("AddUser for existing user reported added")
	}

	all, err := s.AllUserIDs(ctx)
	if err != nil {
		t.Fatalf("AllUserIDs failed: %v", err)
	}
	if !equalIDs(all, []string{"u1", "u2", "u3"}) {
		t.Errorf("AllUserIDs = %v, want [u1 u2 u3]", all)
	}
}
