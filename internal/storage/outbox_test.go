package storage

import (
	"errors"
	"fmt"
	"testing"
)

func fillOutbox(t *testing.T, s *Store, n int) []int64 {
	t.Helper()
	for i := 0; i < n; i++ {
		err := s.CreateRow("weight_entries", fmt.Sprintf("w%d", i), map[string]any{
			"user_id":     "u1",
			"recorded_at": "2025-06-01T08:00:00Z",
			"weight_kg":   80.0 + float64(i),
		})
		if err != nil {
			t.Fatalf("CreateRow %d: %v", i, err)
		}
	}
	entries, err := s.GetOutbox(0)
	if err != nil {
		t.Fatalf("GetOutbox: %v", err)
	}
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestGetOutboxFIFOAndLimit(t *testing.T) {
	s, _ := openTestStore(t)
	ids := fillOutbox(t, s, 5)

	entries, err := s.GetOutbox(3)
	if err != nil {
		t.Fatalf("GetOutbox(3): %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.ID != ids[i] {
			t.Errorf("entry %d id = %d, want %d (oldest first)", i, e.ID, ids[i])
		}
	}

	// Limit larger than the queue returns everything, still ascending.
	all, err := s.GetOutbox(100)
	if err != nil {
		t.Fatalf("GetOutbox(100): %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d entries, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Errorf("ids not strictly ascending: %d after %d", all[i].ID, all[i-1].ID)
		}
	}
}

func TestGetOutboxEmpty(t *testing.T) {
	s, _ := openTestStore(t)
	entries, err := s.GetOutbox(10)
	if err != nil {
		t.Fatalf("GetOutbox: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries from empty queue", len(entries))
	}
}

func TestClearOutboxRemovesExactlyGivenIDs(t *testing.T) {
	s, _ := openTestStore(t)
	ids := fillOutbox(t, s, 5)

	if err := s.ClearOutbox([]int64{ids[0], ids[2], ids[4]}); err != nil {
		t.Fatalf("ClearOutbox: %v", err)
	}

	remaining, err := s.GetOutbox(0)
	if err != nil {
		t.Fatalf("GetOutbox: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("got %d remaining, want 2", len(remaining))
	}
	if remaining[0].ID != ids[1] || remaining[1].ID != ids[3] {
		t.Errorf("remaining = %d,%d, want complement %d,%d",
			remaining[0].ID, remaining[1].ID, ids[1], ids[3])
	}
}

func TestClearOutboxNoopCases(t *testing.T) {
	s, _ := openTestStore(t)
	ids := fillOutbox(t, s, 2)

	if err := s.ClearOutbox(nil); err != nil {
		t.Fatalf("ClearOutbox(nil): %v", err)
	}
	if err := s.ClearOutbox([]int64{9999}); err != nil {
		t.Fatalf("ClearOutbox(unknown id): %v", err)
	}

	n, err := s.CountOutbox()
	if err != nil {
		t.Fatalf("CountOutbox: %v", err)
	}
	if n != len(ids) {
		t.Errorf("count = %d, want %d", n, len(ids))
	}
}

func TestSyncMetaLifecycle(t *testing.T) {
	s, _ := openTestStore(t)

	if _, err := s.GetMeta("last_sync_at"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMeta unset = %v, want ErrNotFound", err)
	}

	if err := s.SetMeta("last_sync_at", "2025-06-01T12:00:00Z"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	v, err := s.GetMeta("last_sync_at")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if v != "2025-06-01T12:00:00Z" {
		t.Errorf("GetMeta = %q", v)
	}

	// Overwritten in place.
	if err := s.SetMeta("last_sync_at", "2025-06-01T12:05:00Z"); err != nil {
		t.Fatalf("SetMeta overwrite: %v", err)
	}
	v, _ = s.GetMeta("last_sync_at")
	if v != "2025-06-01T12:05:00Z" {
		t.Errorf("GetMeta after overwrite = %q", v)
	}
}

func TestAppliedMigrations(t *testing.T) {
	s, _ := openTestStore(t)
	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 || versions[0] != 1 {
		t.Errorf("versions = %v, want at least [1]", versions)
	}
}
