package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/doselog/internal/clock"
)

func openTestStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s, err := Open(":memory:", fake)
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, fake
}

func createTestWeight(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.CreateRow("weight_entries", id, map[string]any{
		"user_id":     "u1",
		"recorded_at": "2025-06-01T08:00:00Z",
		"weight_kg":   82.5,
		"note":        "morning",
	})
	if err != nil {
		t.Fatalf("CreateRow: %v", err)
	}
}

func TestCreateRowAppendsInsertEntry(t *testing.T) {
	s, fake := openTestStore(t)
	createTestWeight(t, s, "w1")

	entries, err := s.GetOutbox(0)
	if err != nil {
		t.Fatalf("GetOutbox: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("outbox has %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.TableName != "weight_entries" || e.RowID != "w1" || e.Operation != OpInsert {
		t.Errorf("entry = %s/%s/%s, want weight_entries/w1/insert", e.TableName, e.RowID, e.Operation)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
		t.Fatalf("unmarshalling payload: %v", err)
	}
	// Insert payload is the full row snapshot.
	wantStamp := fake.Now().Format(time.RFC3339)
	if payload["id"] != "w1" || payload["weight_kg"] != 82.5 {
		t.Errorf("payload = %v, missing row fields", payload)
	}
	if payload["created_at"] != wantStamp || payload["updated_at"] != wantStamp {
		t.Errorf("payload stamps = %v/%v, want %s", payload["created_at"], payload["updated_at"], wantStamp)
	}
}

func TestUpdateRowPayloadHoldsOnlyChangedFields(t *testing.T) {
	s, fake := openTestStore(t)
	createTestWeight(t, s, "w1")
	fake.Advance(45 * time.Second)

	if err := s.UpdateRow("weight_entries", "w1", map[string]any{"note": "after coffee"}); err != nil {
		t.Fatalf("UpdateRow: %v", err)
	}

	entries, err := s.GetOutbox(0)
	if err != nil {
		t.Fatalf("GetOutbox: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("outbox has %d entries, want 2 (no coalescing)", len(entries))
	}
	e := entries[1]
	if e.Operation != OpUpdate {
		t.Fatalf("operation = %s, want update", e.Operation)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
		t.Fatalf("unmarshalling payload: %v", err)
	}
	if len(payload) != 2 {
		t.Errorf("payload has %d keys %v, want exactly note and updated_at", len(payload), payload)
	}
	if payload["note"] != "after coffee" {
		t.Errorf("payload note = %v", payload["note"])
	}
	if payload["updated_at"] != fake.Now().Format(time.RFC3339) {
		t.Errorf("payload updated_at = %v, want %s", payload["updated_at"], fake.Now().Format(time.RFC3339))
	}

	w, err := s.FindWeightEntry("w1")
	if err != nil {
		t.Fatalf("FindWeightEntry: %v", err)
	}
	if w.Note != "after coffee" {
		t.Errorf("row note = %q, want updated value", w.Note)
	}
	if !w.UpdatedAt.After(w.CreatedAt) {
		t.Errorf("updated_at %v not after created_at %v", w.UpdatedAt, w.CreatedAt)
	}
}

func TestDeleteRowSoftDeletes(t *testing.T) {
	s, _ := openTestStore(t)
	createTestWeight(t, s, "w1")

	if err := s.DeleteRow("weight_entries", "w1"); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}

	// Gone from all read paths.
	if _, err := s.FindWeightEntry("w1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindWeightEntry after delete = %v, want ErrNotFound", err)
	}
	list, err := s.ListWeightEntries("u1", 10)
	if err != nil {
		t.Fatalf("ListWeightEntries: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("list returned %d rows after delete, want 0", len(list))
	}

	// But the physical row remains, tombstoned.
	var deletedAt sql.NullString
	if err := s.DB().QueryRow("SELECT deleted_at FROM weight_entries WHERE id = 'w1'").Scan(&deletedAt); err != nil {
		t.Fatalf("raw select: %v", err)
	}
	if !deletedAt.Valid {
		t.Error("deleted_at is NULL, want tombstone timestamp")
	}

	// And the delete intent is queued with a minimal payload.
	entries, err := s.GetOutbox(0)
	if err != nil {
		t.Fatalf("GetOutbox: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Operation != OpDelete {
		t.Fatalf("last operation = %s, want delete", last.Operation)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(last.Payload), &payload); err != nil {
		t.Fatalf("unmarshalling payload: %v", err)
	}
	if len(payload) != 1 || payload["id"] != "w1" {
		t.Errorf("delete payload = %v, want {id: w1}", payload)
	}
}

func TestDeleteTwiceReturnsNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	createTestWeight(t, s, "w1")

	if err := s.DeleteRow("weight_entries", "w1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.DeleteRow("weight_entries", "w1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}

	n, _ := s.CountOutbox()
	if n != 2 {
		t.Errorf("outbox count = %d, want 2 (failed delete adds nothing)", n)
	}
}

func TestUpdateMissingRowLeavesNoOutboxEntry(t *testing.T) {
	s, _ := openTestStore(t)

	err := s.UpdateRow("weight_entries", "nope", map[string]any{"note": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateRow missing = %v, want ErrNotFound", err)
	}
	n, _ := s.CountOutbox()
	if n != 0 {
		t.Errorf("outbox count = %d, want 0", n)
	}
}

func TestWriteFailureProducesNoOutboxEntry(t *testing.T) {
	s, _ := openTestStore(t)
	createTestWeight(t, s, "w1")

	// Duplicate primary key makes the row insert fail; the outbox append
	// must roll back with it.
	err := s.CreateRow("weight_entries", "w1", map[string]any{
		"user_id":     "u1",
		"recorded_at": "2025-06-02T08:00:00Z",
		"weight_kg":   82.0,
	})
	if err == nil {
		t.Fatal("duplicate CreateRow succeeded, want error")
	}
	n, _ := s.CountOutbox()
	if n != 1 {
		t.Errorf("outbox count = %d, want 1 (only the first create)", n)
	}
}

func TestUnknownTableAndColumnRejected(t *testing.T) {
	s, _ := openTestStore(t)

	if err := s.CreateRow("no_such_table", "x", nil); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("unknown table = %v, want ErrUnknownTable", err)
	}
	err := s.CreateRow("weight_entries", "w1", map[string]any{"weight_lbs": 180})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("unknown column = %v, want ErrUnknownColumn", err)
	}
	n, _ := s.CountOutbox()
	if n != 0 {
		t.Errorf("outbox count = %d, want 0", n)
	}
}

func TestPhaseFilteringIndependentOfParent(t *testing.T) {
	s, _ := openTestStore(t)

	if err := s.CreateRow("schedules", "s1", map[string]any{
		"user_id": "u1", "medication": "semaglutide", "started_at": "2025-05-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	for i, id := range []string{"p1", "p2"} {
		if err := s.CreateRow("schedule_phases", id, map[string]any{
			"user_id": "u1", "schedule_id": "s1", "phase_order": i + 1,
			"dose_mg": 0.25 * float64(i+1), "duration_days": 28,
		}); err != nil {
			t.Fatalf("create phase %s: %v", id, err)
		}
	}

	// Deleting the parent does not hide the children; each level filters
	// on its own tombstone.
	if err := s.DeleteRow("schedules", "s1"); err != nil {
		t.Fatalf("delete schedule: %v", err)
	}
	phases, err := s.ListSchedulePhases("s1")
	if err != nil {
		t.Fatalf("ListSchedulePhases: %v", err)
	}
	if len(phases) != 2 {
		t.Fatalf("phases = %d, want 2 after parent delete", len(phases))
	}

	if err := s.DeleteRow("schedule_phases", "p1"); err != nil {
		t.Fatalf("delete phase: %v", err)
	}
	phases, err = s.ListSchedulePhases("s1")
	if err != nil {
		t.Fatalf("ListSchedulePhases: %v", err)
	}
	if len(phases) != 1 || phases[0].ID != "p2" {
		t.Errorf("phases after delete = %v, want only p2", phases)
	}
}
