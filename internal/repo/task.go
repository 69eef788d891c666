package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/status"
	"github.com/strideapp/stride/internal/store"
)

// TaskRepo is the sole writer for task records.
type TaskRepo struct {
	db *store.DB
}

// Create stores a new task. A missing ID gets a locally-generated UUID so the
// record is immediately referenceable; the replication state starts as
// pending_create and stays that way until the first successful push assigns a
// durable server identity.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task) (*model.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Sync = status.PendingCreate
	t.Lifecycle = model.DeriveLifecycle(t.Completed)
	t.SetDefaults()

	if err := store.UpsertTask(ctx, r.db.RawDB(), t); err != nil {
		return nil, err
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindTask, ID: t.ID, Op: store.OpCreate})
	return t, nil
}

// Update loads the task, applies mutate, and writes it back with a refreshed
// update timestamp. The refreshed timestamp is the sole input to conflict
// resolution, so every mutation must go through here.
//
// Returns model.ErrNotFound if the id does not resolve or the record is
// already marked for deletion (a pending_delete record is never mutated).
func (r *TaskRepo) Update(ctx context.Context, id string, mutate func(*model.Task)) (*model.Task, error) {
	t, err := store.GetTask(ctx, r.db.RawDB(), id)
	if err != nil {
		return nil, err
	}
	if t == nil || t.Sync == status.PendingDelete {
		return nil, model.NotFoundError(model.KindTask, id)
	}

	mutate(t)

	// Keep lifecycle coherent with the completion flag without discarding
	// an explicit in_progress set by the caller.
	if t.Completed {
		t.Lifecycle = status.Completed
	} else if t.Lifecycle == status.Completed {
		t.Lifecycle = status.NotStarted
	}

	t.Sync = status.Touch(t.Sync)
	t.UpdatedAt = time.Now()

	if err := store.UpsertTask(ctx, r.db.RawDB(), t); err != nil {
		return nil, err
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindTask, ID: t.ID, Op: store.OpUpdate})
	return t, nil
}

// Delete marks the task for deletion. The row survives until a push confirms
// the remote delete. Deleting a nonexistent id is a silent no-op so callers
// can retry deletes safely.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	t, err := store.GetTask(ctx, r.db.RawDB(), id)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	if t.Sync == status.PendingDelete {
		return nil
	}

	t.Sync = status.PendingDelete
	t.Focus = false
	t.UpdatedAt = time.Now()

	if err := store.UpsertTask(ctx, r.db.RawDB(), t); err != nil {
		return fmt.Errorf("failed to mark task %s for deletion: %w", id, err)
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindTask, ID: id, Op: store.OpDelete})
	return nil
}

// Get retrieves a task. Returns (nil, nil) when the id does not resolve;
// reads never raise not-found.
func (r *TaskRepo) Get(ctx context.Context, id string) (*model.Task, error) {
	t, err := store.GetTask(ctx, r.db.RawDB(), id)
	if err != nil {
		return nil, err
	}
	if t != nil && t.Sync == status.PendingDelete {
		return nil, nil
	}
	return t, nil
}

// List retrieves tasks matching the filter.
func (r *TaskRepo) List(ctx context.Context, f store.TaskFilter) ([]*model.Task, error) {
	return store.ListTasks(ctx, r.db.RawDB(), f)
}

// SetFocus flips the focus flag as a normal update, preserving lifecycle.
func (r *TaskRepo) SetFocus(ctx context.Context, id string, focus bool) (*model.Task, error) {
	return r.Update(ctx, id, func(t *model.Task) {
		t.Focus = focus
	})
}

// Focused returns the owner's currently focused task, or nil.
func (r *TaskRepo) Focused(ctx context.Context, ownerID string) (*model.Task, error) {
	tasks, err := store.ListTasks(ctx, r.db.RawDB(), store.TaskFilter{
		OwnerID:          ownerID,
		FocusOnly:        true,
		IncludeCompleted: true,
	})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// Watch delivers the filtered task list on every committed change to task
// records. The channel closes when ctx is cancelled.
func (r *TaskRepo) Watch(ctx context.Context, f store.TaskFilter) (<-chan []*model.Task, error) {
	return watch(ctx, r.db, map[model.Kind]bool{model.KindTask: true}, func(ctx context.Context) ([]*model.Task, error) {
		return store.ListTasks(ctx, r.db.RawDB(), f)
	})
}
