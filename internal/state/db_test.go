package state

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ferrule/maestro/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "maestro.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func testRecord(id string) *TaskRecord {
	return &TaskRecord{
		TaskID:      id,
		Description: "test task",
		Priority:    models.PriorityNormal,
		Status:      models.TaskStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	db := openTestDB(t)

	rec := testRecord("t1")
	rec.Tier = models.TierComplex
	rec.Subtasks = []*models.Subtask{
		{ID: "s1", ParentTaskID: "t1", Description: "work", Status: models.SubtaskStatusCompleted, Result: []byte(`{"ok":true}`)},
	}
	rec.CompletedSubtaskIDs = []string{"s1"}
	rec.CurrentStep = 1
	rec.TotalSteps = 2
	rec.AppendLog("checkpoint")

	if err := db.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := db.Get("t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Description != rec.Description || got.Tier != rec.Tier {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if len(got.Subtasks) != 1 || got.Subtasks[0].Status != models.SubtaskStatusCompleted {
		t.Errorf("subtasks not preserved: %+v", got.Subtasks)
	}
	if got.CurrentStep != 1 || got.TotalSteps != 2 {
		t.Errorf("steps not preserved: %d/%d", got.CurrentStep, got.TotalSteps)
	}
	if len(got.Log) != 1 {
		t.Errorf("log not preserved: %v", got.Log)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("Put should stamp UpdatedAt")
	}
}

func TestGetNotFound(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Get("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestPutOverwrites(t *testing.T) {
	db := openTestDB(t)

	rec := testRecord("t1")
	if err := db.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec.Status = models.TaskStatusCompleted
	if err := db.Put(rec); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	got, err := db.Get("t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)

	if err := db.Put(testRecord("t1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Delete("t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get("t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := db.Delete("t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double Delete error = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		rec := testRecord(id)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := db.Put(rec); err != nil {
			t.Fatalf("Put(%s): %v", id, err)
		}
	}

	records, err := db.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List returned %d records, want 3", len(records))
	}
	want := []string{"new", "mid", "old"}
	for i, rec := range records {
		if rec.TaskID != want[i] {
			t.Errorf("records[%d] = %s, want %s", i, rec.TaskID, want[i])
		}
	}
}

func TestLeaseExclusive(t *testing.T) {
	db := openTestDB(t)

	if err := db.Acquire("t1", "worker-a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Re-acquiring by the same owner is fine.
	if err := db.Acquire("t1", "worker-a"); err != nil {
		t.Errorf("re-Acquire by same owner: %v", err)
	}

	if err := db.Acquire("t1", "worker-b"); !errors.Is(err, ErrLeaseHeld) {
		t.Errorf("Acquire by other owner error = %v, want ErrLeaseHeld", err)
	}

	if err := db.Release("t1", "worker-a"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := db.Acquire("t1", "worker-b"); err != nil {
		t.Errorf("Acquire after release: %v", err)
	}
}

func TestReleaseWrongOwnerIsNoOp(t *testing.T) {
	db := openTestDB(t)

	if err := db.Acquire("t1", "worker-a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := db.Release("t1", "worker-b"); err != nil {
		t.Fatalf("Release by non-owner: %v", err)
	}

	// worker-a still holds the lease.
	if err := db.Acquire("t1", "worker-b"); !errors.Is(err, ErrLeaseHeld) {
		t.Errorf("lease was lost to a non-owner release: %v", err)
	}
}

func TestDeleteRemovesLease(t *testing.T) {
	db := openTestDB(t)

	if err := db.Put(testRecord("t1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Acquire("t1", "worker-a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := db.Delete("t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := db.Acquire("t1", "worker-b"); err != nil {
		t.Errorf("lease should be gone after record delete: %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 3; i++ {
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate run %d: %v", i+1, err)
		}
	}
}
