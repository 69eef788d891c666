package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/remote"
	"github.com/strideapp/stride/internal/repo"
	"github.com/strideapp/stride/internal/status"
	"github.com/strideapp/stride/internal/store"
)

const testOwner = "owner-1"

// fakeRemote is a scripted in-memory backend.
type fakeRemote struct {
	mu  sync.Mutex
	seq int

	// failCreateTitle makes Create fail for payloads carrying this title.
	failCreateTitle string
	// conflicts maps record ids to the server version returned on Update.
	conflicts map[string]remote.Record
	// listErr fails ListAll/ListChanges for a kind.
	listErr map[model.Kind]error
	// changes/deleted script delta-pull responses per kind.
	changes map[model.Kind][]remote.Record
	deleted map[model.Kind][]string
	// all scripts full-pull responses per kind.
	all map[model.Kind][]remote.Record

	delay time.Duration

	creates, updates, deletes, listAlls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		conflicts: make(map[string]remote.Record),
		listErr:   make(map[model.Kind]error),
		changes:   make(map[model.Kind][]remote.Record),
		deleted:   make(map[model.Kind][]string),
		all:       make(map[model.Kind][]remote.Record),
	}
}

func (f *fakeRemote) Create(ctx context.Context, kind model.Kind, fields any) (remote.Record, error) {
	f.sleep()
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := json.Marshal(fields)
	if err != nil {
		return remote.Record{}, err
	}
	if f.failCreateTitle != "" {
		var probe struct {
			Title string `json:"title"`
		}
		_ = json.Unmarshal(raw, &probe)
		if probe.Title == f.failCreateTitle {
			return remote.Record{}, fmt.Errorf("backend unavailable")
		}
	}

	f.seq++
	f.creates++
	return remote.Record{
		ID:        fmt.Sprintf("srv-%s-%d", kind, f.seq),
		UpdatedAt: time.Now(),
		Fields:    raw,
	}, nil
}

func (f *fakeRemote) Update(ctx context.Context, kind model.Kind, id string, fields any, clientUpdatedAt time.Time) (remote.Record, error) {
	f.sleep()
	f.mu.Lock()
	defer f.mu.Unlock()

	if server, ok := f.conflicts[id]; ok {
		return remote.Record{}, &remote.ConflictError{Server: server}
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return remote.Record{}, err
	}
	f.updates++
	return remote.Record{ID: id, UpdatedAt: clientUpdatedAt, Fields: raw}, nil
}

func (f *fakeRemote) Delete(ctx context.Context, kind model.Kind, id string) error {
	f.sleep()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return nil
}

func (f *fakeRemote) ListChanges(ctx context.Context, kind model.Kind, ownerID string, since time.Time) (remote.Changes, error) {
	f.sleep()
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.listErr[kind]; err != nil {
		return remote.Changes{}, err
	}
	return remote.Changes{Changed: f.changes[kind], Deleted: f.deleted[kind]}, nil
}

func (f *fakeRemote) ListAll(ctx context.Context, kind model.Kind, ownerID string) ([]remote.Record, error) {
	f.sleep()
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listAlls++
	if err := f.listErr[kind]; err != nil {
		return nil, err
	}
	return f.all[kind], nil
}

func (f *fakeRemote) sleep() {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "stride.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func newTestSyncer(db *store.DB, f *fakeRemote) *Syncer {
	return New(db, f, testOwner, log.New(io.Discard, "", 0))
}

// setCursor makes the next silent cycle a delta pull.
func setCursor(t *testing.T, db *store.DB) {
	t.Helper()
	if err := db.SetPullCursor(context.Background(), testOwner, time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
}

func taskRecord(id, title string, updated time.Time) remote.Record {
	raw, _ := json.Marshal(map[string]any{
		"id":         id,
		"owner_id":   testOwner,
		"title":      title,
		"updated_at": updated.Format(time.RFC3339Nano),
	})
	return remote.Record{ID: id, UpdatedAt: updated, Fields: raw}
}

func TestCreatePushSwapsIdentity(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	setCursor(t, db)

	repos := repo.New(db)
	g, err := repos.Goals.Create(ctx, &model.Goal{OwnerID: testOwner, Title: "Learn piano"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := repos.Goals.CreateMilestone(ctx, &model.Milestone{GoalID: g.ID, OwnerID: testOwner, Title: "First song"})
	if err != nil {
		t.Fatal(err)
	}
	localGoalID, localMilestoneID := g.ID, m.ID

	sum, err := newTestSyncer(db, f).Run(ctx, Silent)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if sum.Pushed != 2 || sum.Failures != 0 {
		t.Fatalf("summary = %+v, want 2 pushed, 0 failures", sum)
	}

	// Provisional rows are gone.
	if g, _ := store.GetGoal(ctx, db.RawDB(), localGoalID); g != nil {
		t.Error("provisional goal row still exists after reconciliation")
	}
	if m, _ := store.GetMilestone(ctx, db.RawDB(), localMilestoneID); m != nil {
		t.Error("provisional milestone row still exists after reconciliation")
	}

	// Server-identified rows exist, synced, with the reference repointed.
	goals, err := store.ListGoals(ctx, db.RawDB(), store.GoalFilter{OwnerID: testOwner})
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != 1 {
		t.Fatalf("got %d goals, want 1", len(goals))
	}
	if goals[0].Sync != status.Synced {
		t.Errorf("goal sync = %s, want synced", goals[0].Sync)
	}

	milestones, err := store.ListMilestones(ctx, db.RawDB(), testOwner, goals[0].ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(milestones) != 1 {
		t.Fatalf("milestone not repointed to server goal id %s", goals[0].ID)
	}
	if milestones[0].ID == localMilestoneID {
		t.Error("milestone kept its provisional id")
	}
	if milestones[0].Sync != status.Synced {
		t.Errorf("milestone sync = %s, want synced", milestones[0].Sync)
	}
}

func TestUpdatePushMarksSynced(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	setCursor(t, db)

	now := time.Now()
	task := &model.Task{
		ID: "srv-task-9", OwnerID: testOwner, Title: "Water plants",
		Sync: status.Synced, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.UpsertTask(ctx, db.RawDB(), task); err != nil {
		t.Fatal(err)
	}

	repos := repo.New(db)
	if _, err := repos.Tasks.Update(ctx, task.ID, func(t *model.Task) { t.Title = "Water all plants" }); err != nil {
		t.Fatal(err)
	}

	sum, err := newTestSyncer(db, f).Run(ctx, Silent)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if sum.Pushed != 1 {
		t.Fatalf("pushed = %d, want 1", sum.Pushed)
	}

	got, err := store.GetTask(ctx, db.RawDB(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Sync != status.Synced {
		t.Errorf("sync = %s, want synced", got.Sync)
	}
	if got.Title != "Water all plants" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestConflictOverwritesLocalWithServerVersion(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	setCursor(t, db)

	now := time.Now()
	task := &model.Task{
		ID: "srv-task-3", OwnerID: testOwner, Title: "Old title",
		Sync: status.Synced, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.UpsertTask(ctx, db.RawDB(), task); err != nil {
		t.Fatal(err)
	}

	repos := repo.New(db)
	if _, err := repos.Tasks.Update(ctx, task.ID, func(t *model.Task) { t.Title = "My stale edit" }); err != nil {
		t.Fatal(err)
	}

	f.conflicts[task.ID] = taskRecord(task.ID, "Server edit wins", now.Add(time.Minute))

	sum, err := newTestSyncer(db, f).Run(ctx, Silent)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if sum.Conflicts != 1 {
		t.Fatalf("conflicts = %d, want 1", sum.Conflicts)
	}
	if sum.Failures != 0 {
		t.Fatalf("failures = %d, want 0 (conflict resolution is not a failure)", sum.Failures)
	}

	got, err := store.GetTask(ctx, db.RawDB(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Server edit wins" {
		t.Errorf("title = %q, local edit survived the conflict", got.Title)
	}
	if got.Sync != status.Synced {
		t.Errorf("sync = %s, want synced", got.Sync)
	}
}

func TestDeletePushDestroysAggregate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	setCursor(t, db)

	now := time.Now()
	goal := &model.Goal{ID: "srv-goal-1", OwnerID: testOwner, Title: "Old goal", Sync: status.Synced, CreatedAt: now, UpdatedAt: now}
	if err := store.UpsertGoal(ctx, db.RawDB(), goal); err != nil {
		t.Fatal(err)
	}
	ms := &model.Milestone{ID: "srv-ms-1", GoalID: goal.ID, OwnerID: testOwner, Title: "Old milestone", Sync: status.Synced, CreatedAt: now, UpdatedAt: now}
	if err := store.UpsertMilestone(ctx, db.RawDB(), ms); err != nil {
		t.Fatal(err)
	}
	task := &model.Task{ID: "srv-task-1", OwnerID: testOwner, GoalID: goal.ID, Title: "Refers to goal", Sync: status.Synced, CreatedAt: now, UpdatedAt: now}
	if err := store.UpsertTask(ctx, db.RawDB(), task); err != nil {
		t.Fatal(err)
	}

	repos := repo.New(db)
	if err := repos.Goals.Delete(ctx, goal.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := newTestSyncer(db, f).Run(ctx, Silent); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if g, _ := store.GetGoal(ctx, db.RawDB(), goal.ID); g != nil {
		t.Error("goal row survived confirmed delete")
	}
	if m, _ := store.GetMilestone(ctx, db.RawDB(), ms.ID); m != nil {
		t.Error("owned milestone survived goal destruction")
	}
	got, err := store.GetTask(ctx, db.RawDB(), task.ID)
	if err != nil || got == nil {
		t.Fatalf("referencing task should survive, got %v err %v", got, err)
	}
	if got.GoalID != "" {
		t.Errorf("task goal reference = %q, want detached", got.GoalID)
	}
}

func TestPerRecordFailureLeavesRestOfBatchIntact(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	f.failCreateTitle = "Doomed"
	setCursor(t, db)

	repos := repo.New(db)
	doomed, err := repos.Tasks.Create(ctx, &model.Task{OwnerID: testOwner, Title: "Doomed"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repos.Tasks.Create(ctx, &model.Task{OwnerID: testOwner, Title: "Fine"}); err != nil {
		t.Fatal(err)
	}

	sum, err := newTestSyncer(db, f).Run(ctx, Silent)
	if err != nil {
		t.Fatalf("silent sync must swallow per-record failures, got %v", err)
	}
	if sum.Failures != 1 || sum.Pushed != 1 {
		t.Fatalf("summary = %+v, want 1 failure and 1 push", sum)
	}

	// The failed record stays pending for the next cycle.
	got, err := store.GetTask(ctx, db.RawDB(), doomed.ID)
	if err != nil || got == nil {
		t.Fatalf("doomed task missing: %v", err)
	}
	if got.Sync != status.PendingCreate {
		t.Errorf("sync = %s, want pending_create retained for retry", got.Sync)
	}

	// A full sync surfaces the same failure as an error.
	if _, err := newTestSyncer(db, f).Run(ctx, Full); err == nil {
		t.Error("full sync should report failures as an error")
	}
}

func TestDeltaPullAppliesChangesAndDeletes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	setCursor(t, db)

	now := time.Now()
	existing := &model.Task{ID: "srv-task-7", OwnerID: testOwner, Title: "To be deleted", Sync: status.Synced, CreatedAt: now, UpdatedAt: now}
	if err := store.UpsertTask(ctx, db.RawDB(), existing); err != nil {
		t.Fatal(err)
	}

	f.changes[model.KindTask] = []remote.Record{taskRecord("srv-task-8", "From another device", now)}
	f.deleted[model.KindTask] = []string{existing.ID}

	sum, err := newTestSyncer(db, f).Run(ctx, Silent)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if sum.Pulled != 1 || sum.Deleted != 1 {
		t.Fatalf("summary = %+v, want 1 pulled and 1 deleted", sum)
	}

	if got, _ := store.GetTask(ctx, db.RawDB(), existing.ID); got != nil {
		t.Error("remotely deleted task still present")
	}
	pulled, err := store.GetTask(ctx, db.RawDB(), "srv-task-8")
	if err != nil || pulled == nil {
		t.Fatalf("pulled task missing: %v", err)
	}
	if pulled.Sync != status.Synced {
		t.Errorf("pulled task sync = %s, want synced", pulled.Sync)
	}
}

func TestCursorNotAdvancedAfterPullFailure(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	setCursor(t, db)

	before, err := db.PullCursor(ctx, testOwner)
	if err != nil {
		t.Fatal(err)
	}

	f.listErr[model.KindTask] = fmt.Errorf("connection reset")

	sum, err := newTestSyncer(db, f).Run(ctx, Silent)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if sum.Failures == 0 {
		t.Fatal("expected a recorded failure")
	}

	after, err := db.PullCursor(ctx, testOwner)
	if err != nil {
		t.Fatal(err)
	}
	if !after.Equal(before) {
		t.Errorf("cursor moved %v -> %v despite failure; half-applied delta would be skipped", before, after)
	}
}

func TestMalformedPulledFieldsAreCoerced(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	setCursor(t, db)

	now := time.Now()
	// Numeric updated_at and numeric title: both coerced, neither fatal.
	raw := []byte(`{"id":"srv-task-5","owner_id":"owner-1","title":12345,"updated_at":99}`)
	f.changes[model.KindTask] = []remote.Record{
		{ID: "srv-task-5", UpdatedAt: now, Fields: raw},
		taskRecord("srv-task-6", "Healthy record", now),
	}

	sum, err := newTestSyncer(db, f).Run(ctx, Silent)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if sum.Pulled != 2 || sum.Failures != 0 {
		t.Fatalf("summary = %+v, want both records applied", sum)
	}

	got, err := store.GetTask(ctx, db.RawDB(), "srv-task-5")
	if err != nil || got == nil {
		t.Fatalf("coerced record missing: %v", err)
	}
	healthy, err := store.GetTask(ctx, db.RawDB(), "srv-task-6")
	if err != nil || healthy == nil {
		t.Fatalf("healthy record missing: %v", err)
	}
	if healthy.Title != "Healthy record" {
		t.Errorf("title = %q", healthy.Title)
	}
}

func TestFullPullOverwritesLocalState(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()

	now := time.Now()
	local := &model.Task{ID: "srv-task-2", OwnerID: testOwner, Title: "Drifted local copy", Sync: status.Synced, CreatedAt: now, UpdatedAt: now}
	if err := store.UpsertTask(ctx, db.RawDB(), local); err != nil {
		t.Fatal(err)
	}

	f.all[model.KindTask] = []remote.Record{taskRecord("srv-task-2", "Authoritative title", now.Add(time.Minute))}

	if _, err := newTestSyncer(db, f).Run(ctx, Full); err != nil {
		t.Fatalf("full sync: %v", err)
	}

	got, err := store.GetTask(ctx, db.RawDB(), "srv-task-2")
	if err != nil || got == nil {
		t.Fatal(err)
	}
	if got.Title != "Authoritative title" {
		t.Errorf("title = %q, full pull should be remote-wins", got.Title)
	}

	// A completed full sync records the cursor, so the next silent cycle
	// is a delta.
	cursor, err := db.PullCursor(ctx, testOwner)
	if err != nil {
		t.Fatal(err)
	}
	if cursor.IsZero() {
		t.Error("full sync did not record a pull cursor")
	}
}

func TestReconcileFailureRollsBackWholeSwap(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	setCursor(t, db)

	repos := repo.New(db)
	g, err := repos.Goals.Create(ctx, &model.Goal{OwnerID: testOwner, Title: "Learn violin"})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	task := &model.Task{ID: "srv-task-40", OwnerID: testOwner, GoalID: g.ID, Title: "Practice scales", Sync: status.Synced, CreatedAt: now, UpdatedAt: now}
	if err := store.UpsertTask(ctx, db.RawDB(), task); err != nil {
		t.Fatal(err)
	}

	// Abort the identity swap midway through its transaction: the server-id
	// goal row is already written when the task repoint fires this trigger.
	if _, err := db.RawDB().ExecContext(ctx, `
		CREATE TRIGGER abort_repoint BEFORE UPDATE OF goal_id ON tasks
		WHEN NEW.goal_id LIKE 'srv-%'
		BEGIN SELECT RAISE(ABORT, 'simulated crash'); END`); err != nil {
		t.Fatal(err)
	}

	s := newTestSyncer(db, f)
	sum, err := s.Run(ctx, Silent)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if sum.Failures != 1 || sum.Pushed != 0 {
		t.Fatalf("summary = %+v, want the aborted swap counted as a failure", sum)
	}

	// Nothing of the half-finished swap survives the rollback.
	goals, err := store.ListGoals(ctx, db.RawDB(), store.GoalFilter{OwnerID: testOwner})
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != 1 || goals[0].ID != g.ID {
		t.Fatalf("goals = %+v, want only the provisional row", goals)
	}
	if goals[0].Sync != status.PendingCreate {
		t.Errorf("goal sync = %s, want pending_create retained for retry", goals[0].Sync)
	}
	ref, err := store.GetTask(ctx, db.RawDB(), task.ID)
	if err != nil || ref == nil {
		t.Fatalf("referencing task missing: %v", err)
	}
	if ref.GoalID != g.ID {
		t.Errorf("task goal reference = %q, repoint leaked out of the aborted transaction", ref.GoalID)
	}

	// Once the fault clears, the next cycle completes the swap.
	if _, err := db.RawDB().ExecContext(ctx, "DROP TRIGGER abort_repoint"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, Silent); err != nil {
		t.Fatalf("retry sync: %v", err)
	}
	goals, err = store.ListGoals(ctx, db.RawDB(), store.GoalFilter{OwnerID: testOwner})
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != 1 || goals[0].ID == g.ID || goals[0].Sync != status.Synced {
		t.Fatalf("goals after retry = %+v, want one synced server-id row", goals)
	}
	ref, err = store.GetTask(ctx, db.RawDB(), task.ID)
	if err != nil || ref == nil {
		t.Fatal(err)
	}
	if ref.GoalID != goals[0].ID {
		t.Errorf("task goal reference = %q, want repointed to %s", ref.GoalID, goals[0].ID)
	}
}

func TestConflictResolutionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	setCursor(t, db)

	now := time.Now()
	task := &model.Task{
		ID: "srv-task-3", OwnerID: testOwner, Title: "Original",
		Sync: status.Synced, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.UpsertTask(ctx, db.RawDB(), task); err != nil {
		t.Fatal(err)
	}

	repos := repo.New(db)
	if _, err := repos.Tasks.Update(ctx, task.ID, func(t *model.Task) { t.Title = "First stale edit" }); err != nil {
		t.Fatal(err)
	}
	f.conflicts[task.ID] = taskRecord(task.ID, "Server edit wins", now.Add(time.Minute))

	s := newTestSyncer(db, f)
	sum, err := s.Run(ctx, Silent)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if sum.Conflicts != 1 || sum.Failures != 0 {
		t.Fatalf("first summary = %+v, want 1 conflict, 0 failures", sum)
	}
	first, err := store.GetTask(ctx, db.RawDB(), task.ID)
	if err != nil || first == nil {
		t.Fatal(err)
	}

	// A second stale edit meets the same unchanged server record; resolving
	// it again must land on exactly the same local state.
	if _, err := repos.Tasks.Update(ctx, task.ID, func(t *model.Task) { t.Title = "Second stale edit" }); err != nil {
		t.Fatal(err)
	}
	sum, err = s.Run(ctx, Silent)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if sum.Conflicts != 1 || sum.Failures != 0 {
		t.Fatalf("second summary = %+v, want 1 conflict, 0 failures", sum)
	}

	second, err := store.GetTask(ctx, db.RawDB(), task.ID)
	if err != nil || second == nil {
		t.Fatal(err)
	}
	if second.Title != "Server edit wins" || second.Sync != status.Synced {
		t.Errorf("resolved state = %q/%s, want server version, synced", second.Title, second.Sync)
	}
	if second.Title != first.Title || !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("repeat resolution diverged: first %q@%v, second %q@%v",
			first.Title, first.UpdatedAt, second.Title, second.UpdatedAt)
	}
}

func TestDeltaDeleteSparesUnpushedRecords(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	f.failCreateTitle = "Draft notes"
	setCursor(t, db)

	now := time.Now()
	synced := &model.Task{ID: "srv-task-7", OwnerID: testOwner, Title: "Confirmed remotely", Sync: status.Synced, CreatedAt: now, UpdatedAt: now}
	if err := store.UpsertTask(ctx, db.RawDB(), synced); err != nil {
		t.Fatal(err)
	}

	// This record's push fails, so it still carries its provisional local id
	// when the remote delete for the synced record is applied.
	repos := repo.New(db)
	draft, err := repos.Tasks.Create(ctx, &model.Task{OwnerID: testOwner, Title: "Draft notes"})
	if err != nil {
		t.Fatal(err)
	}

	f.deleted[model.KindTask] = []string{synced.ID}

	sum, err := newTestSyncer(db, f).Run(ctx, Silent)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if sum.Deleted != 1 {
		t.Fatalf("summary = %+v, want 1 deleted", sum)
	}

	if got, _ := store.GetTask(ctx, db.RawDB(), synced.ID); got != nil {
		t.Error("remotely deleted task still present")
	}
	got, err := store.GetTask(ctx, db.RawDB(), draft.ID)
	if err != nil || got == nil {
		t.Fatalf("unpushed task destroyed by a remote delete: %v", err)
	}
	if got.Sync != status.PendingCreate {
		t.Errorf("unpushed task sync = %s, want pending_create", got.Sync)
	}
}

func TestNotifyCompleteReportsEachCycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	setCursor(t, db)

	repos := repo.New(db)
	if _, err := repos.Tasks.Create(ctx, &model.Task{OwnerID: testOwner, Title: "Hang shelves"}); err != nil {
		t.Fatal(err)
	}

	s := newTestSyncer(db, f)
	var got []Summary
	s.NotifyComplete(func(sum Summary) { got = append(got, sum) })

	if _, err := s.Run(ctx, Silent); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("callback ran %d times, want 1", len(got))
	}
	if got[0].Pushed != 1 || got[0].Failures != 0 {
		t.Errorf("reported summary = %+v, want 1 pushed", got[0])
	}
	if got[0].Finished.Before(got[0].Started) {
		t.Error("summary finished before it started")
	}
}

func TestConcurrentRunsCoalesce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	f := newFakeRemote()
	f.delay = 20 * time.Millisecond

	s := newTestSyncer(db, f)

	var wg sync.WaitGroup
	const callers = 6
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Run(ctx, Silent)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}

	// Empty cursor means full pull: 4 ListAll calls per cycle. All six
	// callers must have shared at most two cycles (the active one plus a
	// single coalesced follow-up).
	cycles := f.listAlls / len(model.PushOrder)
	if cycles < 1 || cycles > 2 {
		t.Errorf("observed %d cycles for %d concurrent callers, want 1 or 2", cycles, callers)
	}
}
