package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/status"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "stride.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func testTask(id string) *model.Task {
	now := time.Now()
	return &model.Task{
		ID: id, OwnerID: "o1", Title: "task " + id,
		Sync: status.Synced, CreatedAt: now, UpdatedAt: now,
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "stride.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open with missing parent dirs: %v", err)
	}
	defer db.Close()

	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestTaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	task := testTask("t1")
	task.GoalID = ""
	task.Notes = "some notes"
	task.Priority = model.PriorityHigh
	task.DueAt = &due
	task.Location = "office"
	task.EstimatedMinutes = 45
	task.Sync = status.PendingUpdate
	task.Lifecycle = status.InProgress

	if err := UpsertTask(ctx, db.RawDB(), task); err != nil {
		t.Fatal(err)
	}

	got, err := GetTask(ctx, db.RawDB(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("task not found after upsert")
	}
	if got.Title != task.Title || got.Notes != task.Notes || got.Location != task.Location {
		t.Errorf("fields did not round-trip: %+v", got)
	}
	if got.Priority != model.PriorityHigh || got.EstimatedMinutes != 45 {
		t.Errorf("numeric fields did not round-trip: %+v", got)
	}
	if got.DueAt == nil || !got.DueAt.Equal(due) {
		t.Errorf("due date did not round-trip: %v", got.DueAt)
	}
	if got.Sync != status.PendingUpdate || got.Lifecycle != status.InProgress {
		t.Errorf("status pair = %s/%s", got.Sync, got.Lifecycle)
	}
}

func TestGetAbsentReturnsNilNil(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	got, err := GetTask(ctx, db.RawDB(), "missing")
	if err != nil {
		t.Fatalf("absent read must not error: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestListTasksFilters(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	done := testTask("done")
	done.Completed = true
	pending := testTask("pending")
	pending.Sync = status.PendingUpdate
	deleted := testTask("deleted")
	deleted.Sync = status.PendingDelete
	other := testTask("other")
	other.OwnerID = "o2"

	for _, task := range []*model.Task{testTask("plain"), done, pending, deleted, other} {
		if err := UpsertTask(ctx, db.RawDB(), task); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ListTasks(ctx, db.RawDB(), TaskFilter{OwnerID: "o1"})
	if err != nil {
		t.Fatal(err)
	}
	// Default view: non-completed, non-deleted, owner-scoped.
	if len(got) != 2 {
		t.Fatalf("default filter returned %d tasks, want 2", len(got))
	}

	got, err = ListTasks(ctx, db.RawDB(), TaskFilter{OwnerID: "o1", PendingOnly: true, IncludeCompleted: true, IncludeDeleted: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 { // pending + deleted
		t.Fatalf("pending filter returned %d tasks, want 2", len(got))
	}
}

func TestPullCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	cursor, err := db.PullCursor(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if !cursor.IsZero() {
		t.Errorf("fresh store cursor = %v, want zero", cursor)
	}

	at := time.Now().Truncate(time.Millisecond)
	if err := db.SetPullCursor(ctx, "o1", at); err != nil {
		t.Fatal(err)
	}

	cursor, err = db.PullCursor(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if !cursor.Equal(at) {
		t.Errorf("cursor = %v, want %v", cursor, at)
	}

	// Another owner's cursor is independent.
	otherCursor, err := db.PullCursor(ctx, "o2")
	if err != nil {
		t.Fatal(err)
	}
	if !otherCursor.IsZero() {
		t.Errorf("other owner cursor = %v, want zero", otherCursor)
	}
}

func TestDestroyGoalCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Now()

	goal := &model.Goal{ID: "g1", OwnerID: "o1", Title: "goal", Sync: status.Synced, CreatedAt: now, UpdatedAt: now}
	if err := UpsertGoal(ctx, db.RawDB(), goal); err != nil {
		t.Fatal(err)
	}
	ms := &model.Milestone{ID: "m1", GoalID: "g1", OwnerID: "o1", Title: "ms", Sync: status.Synced, CreatedAt: now, UpdatedAt: now}
	if err := UpsertMilestone(ctx, db.RawDB(), ms); err != nil {
		t.Fatal(err)
	}
	step := &model.Step{ID: "s1", MilestoneID: "m1", OwnerID: "o1", Title: "step", Sync: status.Synced, CreatedAt: now, UpdatedAt: now}
	if err := UpsertStep(ctx, db.RawDB(), step); err != nil {
		t.Fatal(err)
	}
	task := testTask("t1")
	task.GoalID = "g1"
	if err := UpsertTask(ctx, db.RawDB(), task); err != nil {
		t.Fatal(err)
	}

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		return DestroyGoal(ctx, tx, "g1")
	})
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}

	if g, _ := GetGoal(ctx, db.RawDB(), "g1"); g != nil {
		t.Error("goal survived")
	}
	if m, _ := GetMilestone(ctx, db.RawDB(), "m1"); m != nil {
		t.Error("milestone survived")
	}
	if s, _ := GetStep(ctx, db.RawDB(), "s1"); s != nil {
		t.Error("step survived")
	}
	got, _ := GetTask(ctx, db.RawDB(), "t1")
	if got == nil {
		t.Fatal("referencing task destroyed, should only be detached")
	}
	if got.GoalID != "" {
		t.Errorf("task goal reference = %q, want empty", got.GoalID)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := UpsertTask(ctx, db.RawDB(), testTask("keep")); err != nil {
		t.Fatal(err)
	}

	wantErr := context.Canceled
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := DeleteTask(ctx, tx, "keep"); err != nil {
			return err
		}
		return wantErr
	})
	if err == nil {
		t.Fatal("expected error from WithTx")
	}

	got, err := GetTask(ctx, db.RawDB(), "keep")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Error("delete inside a failed transaction was not rolled back")
	}
}

func TestNotifierDeliversAndDropsOldest(t *testing.T) {
	n := newNotifier()

	ch, cancel := n.Subscribe(2)
	defer cancel()

	n.Publish(ChangeEvent{Kind: model.KindTask, ID: "1", Op: OpCreate})
	n.Publish(ChangeEvent{Kind: model.KindTask, ID: "2", Op: OpUpdate})
	n.Publish(ChangeEvent{Kind: model.KindTask, ID: "3", Op: OpDelete})

	// Buffer of two with three publishes: the oldest is gone.
	first := <-ch
	if first.ID != "2" {
		t.Errorf("first delivered event id = %s, want 2 (oldest dropped)", first.ID)
	}
	second := <-ch
	if second.ID != "3" {
		t.Errorf("second delivered event id = %s, want 3", second.ID)
	}
}

func TestNotifierCancelClosesChannel(t *testing.T) {
	n := newNotifier()

	ch, cancel := n.Subscribe(1)
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}

	// Publishing after cancel must not panic.
	n.Publish(ChangeEvent{Kind: model.KindTask, ID: "x", Op: OpUpdate})
}

func TestParseStoredTimeLenient(t *testing.T) {
	if got := parseStoredTime("not a time"); !got.IsZero() {
		t.Errorf("malformed stored time parsed to %v, want zero", got)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := parseStoredTime(at.Format(timeLayout)); !got.Equal(at) {
		t.Errorf("round-trip = %v, want %v", got, at)
	}
}
