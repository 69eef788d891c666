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

// GoalRepo is the sole writer for the goal aggregate: goals, their
// milestones, and milestone steps.
type GoalRepo struct {
	db *store.DB
}

// Create stores a new goal with a locally-generated identifier.
func (r *GoalRepo) Create(ctx context.Context, g *model.Goal) (*model.Goal, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.Sync = status.PendingCreate
	g.Lifecycle = model.DeriveLifecycle(g.Completed)
	g.SetDefaults()

	if err := store.UpsertGoal(ctx, r.db.RawDB(), g); err != nil {
		return nil, err
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindGoal, ID: g.ID, Op: store.OpCreate})
	return g, nil
}

// Update applies mutate to the goal and refreshes its update timestamp.
// Returns model.ErrNotFound for a missing or deletion-marked goal.
func (r *GoalRepo) Update(ctx context.Context, id string, mutate func(*model.Goal)) (*model.Goal, error) {
	g, err := store.GetGoal(ctx, r.db.RawDB(), id)
	if err != nil {
		return nil, err
	}
	if g == nil || g.Sync == status.PendingDelete {
		return nil, model.NotFoundError(model.KindGoal, id)
	}

	mutate(g)

	if g.Completed {
		g.Lifecycle = status.Completed
	} else if g.Lifecycle == status.Completed {
		g.Lifecycle = status.NotStarted
	}

	g.Sync = status.Touch(g.Sync)
	g.UpdatedAt = time.Now()

	if err := store.UpsertGoal(ctx, r.db.RawDB(), g); err != nil {
		return nil, err
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindGoal, ID: g.ID, Op: store.OpUpdate})
	return g, nil
}

// Delete marks the goal for deletion. Its milestones and steps are destroyed
// together with the goal once the remote delete is confirmed; until then they
// stay readable. Silent no-op for a nonexistent id.
func (r *GoalRepo) Delete(ctx context.Context, id string) error {
	g, err := store.GetGoal(ctx, r.db.RawDB(), id)
	if err != nil {
		return err
	}
	if g == nil || g.Sync == status.PendingDelete {
		return nil
	}

	g.Sync = status.PendingDelete
	g.UpdatedAt = time.Now()

	if err := store.UpsertGoal(ctx, r.db.RawDB(), g); err != nil {
		return fmt.Errorf("failed to mark goal %s for deletion: %w", id, err)
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindGoal, ID: id, Op: store.OpDelete})
	return nil
}

// Get retrieves a goal. Returns (nil, nil) when absent or deletion-marked.
func (r *GoalRepo) Get(ctx context.Context, id string) (*model.Goal, error) {
	g, err := store.GetGoal(ctx, r.db.RawDB(), id)
	if err != nil {
		return nil, err
	}
	if g != nil && g.Sync == status.PendingDelete {
		return nil, nil
	}
	return g, nil
}

// List retrieves goals matching the filter.
func (r *GoalRepo) List(ctx context.Context, f store.GoalFilter) ([]*model.Goal, error) {
	return store.ListGoals(ctx, r.db.RawDB(), f)
}

// Watch delivers the filtered goal list on every committed goal change.
func (r *GoalRepo) Watch(ctx context.Context, f store.GoalFilter) (<-chan []*model.Goal, error) {
	return watch(ctx, r.db, map[model.Kind]bool{model.KindGoal: true}, func(ctx context.Context) ([]*model.Goal, error) {
		return store.ListGoals(ctx, r.db.RawDB(), f)
	})
}

// CreateMilestone stores a new milestone under a goal.
func (r *GoalRepo) CreateMilestone(ctx context.Context, m *model.Milestone) (*model.Milestone, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Sync = status.PendingCreate
	m.Lifecycle = model.DeriveLifecycle(m.Completed)
	m.SetDefaults()

	if err := store.UpsertMilestone(ctx, r.db.RawDB(), m); err != nil {
		return nil, err
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindMilestone, ID: m.ID, Op: store.OpCreate})
	return m, nil
}

// UpdateMilestone applies mutate to a milestone.
func (r *GoalRepo) UpdateMilestone(ctx context.Context, id string, mutate func(*model.Milestone)) (*model.Milestone, error) {
	m, err := store.GetMilestone(ctx, r.db.RawDB(), id)
	if err != nil {
		return nil, err
	}
	if m == nil || m.Sync == status.PendingDelete {
		return nil, model.NotFoundError(model.KindMilestone, id)
	}

	mutate(m)

	if m.Completed {
		m.Lifecycle = status.Completed
	} else if m.Lifecycle == status.Completed {
		m.Lifecycle = status.NotStarted
	}

	m.Sync = status.Touch(m.Sync)
	m.UpdatedAt = time.Now()

	if err := store.UpsertMilestone(ctx, r.db.RawDB(), m); err != nil {
		return nil, err
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindMilestone, ID: m.ID, Op: store.OpUpdate})
	return m, nil
}

// DeleteMilestone marks a milestone for deletion. Silent no-op when absent.
func (r *GoalRepo) DeleteMilestone(ctx context.Context, id string) error {
	m, err := store.GetMilestone(ctx, r.db.RawDB(), id)
	if err != nil {
		return err
	}
	if m == nil || m.Sync == status.PendingDelete {
		return nil
	}

	m.Sync = status.PendingDelete
	m.UpdatedAt = time.Now()

	if err := store.UpsertMilestone(ctx, r.db.RawDB(), m); err != nil {
		return fmt.Errorf("failed to mark milestone %s for deletion: %w", id, err)
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindMilestone, ID: id, Op: store.OpDelete})
	return nil
}

// ListMilestones retrieves milestones for an owner, optionally by goal.
func (r *GoalRepo) ListMilestones(ctx context.Context, ownerID, goalID string) ([]*model.Milestone, error) {
	return store.ListMilestones(ctx, r.db.RawDB(), ownerID, goalID, false)
}

// CreateStep stores a new step under a milestone.
func (r *GoalRepo) CreateStep(ctx context.Context, s *model.Step) (*model.Step, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Sync = status.PendingCreate
	s.Lifecycle = model.DeriveLifecycle(s.Completed)
	s.SetDefaults()

	if err := store.UpsertStep(ctx, r.db.RawDB(), s); err != nil {
		return nil, err
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindStep, ID: s.ID, Op: store.OpCreate})
	return s, nil
}

// UpdateStep applies mutate to a step.
func (r *GoalRepo) UpdateStep(ctx context.Context, id string, mutate func(*model.Step)) (*model.Step, error) {
	s, err := store.GetStep(ctx, r.db.RawDB(), id)
	if err != nil {
		return nil, err
	}
	if s == nil || s.Sync == status.PendingDelete {
		return nil, model.NotFoundError(model.KindStep, id)
	}

	mutate(s)

	if s.Completed {
		s.Lifecycle = status.Completed
	} else if s.Lifecycle == status.Completed {
		s.Lifecycle = status.NotStarted
	}

	s.Sync = status.Touch(s.Sync)
	s.UpdatedAt = time.Now()

	if err := store.UpsertStep(ctx, r.db.RawDB(), s); err != nil {
		return nil, err
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindStep, ID: s.ID, Op: store.OpUpdate})
	return s, nil
}

// DeleteStep marks a step for deletion. Silent no-op when absent.
func (r *GoalRepo) DeleteStep(ctx context.Context, id string) error {
	s, err := store.GetStep(ctx, r.db.RawDB(), id)
	if err != nil {
		return err
	}
	if s == nil || s.Sync == status.PendingDelete {
		return nil
	}

	s.Sync = status.PendingDelete
	s.UpdatedAt = time.Now()

	if err := store.UpsertStep(ctx, r.db.RawDB(), s); err != nil {
		return fmt.Errorf("failed to mark step %s for deletion: %w", id, err)
	}

	r.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindStep, ID: id, Op: store.OpDelete})
	return nil
}

// ListSteps retrieves steps for an owner, optionally by milestone.
func (r *GoalRepo) ListSteps(ctx context.Context, ownerID, milestoneID string) ([]*model.Step, error) {
	return store.ListSteps(ctx, r.db.RawDB(), ownerID, milestoneID, false)
}
