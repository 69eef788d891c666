package store

import (
	"context"
	"fmt"
)

// DestroyGoal permanently removes a goal and its strictly-owned children
// (milestones and their steps) and detaches referencing tasks. Runs the
// cascade explicitly so it holds regardless of per-connection foreign-key
// pragma state; callers wrap it in a transaction via WithTx.
func DestroyGoal(ctx context.Context, q Queryer, id string) error {
	if _, err := q.ExecContext(ctx, `
	DELETE FROM steps WHERE milestone_id IN
		(SELECT id FROM milestones WHERE goal_id = ?)`, id); err != nil {
		return fmt.Errorf("failed to destroy steps of goal %s: %w", id, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM milestones WHERE goal_id = ?`, id); err != nil {
		return fmt.Errorf("failed to destroy milestones of goal %s: %w", id, err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE tasks SET goal_id = NULL WHERE goal_id = ?`, id); err != nil {
		return fmt.Errorf("failed to detach tasks of goal %s: %w", id, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to destroy goal %s: %w", id, err)
	}
	return nil
}

// DestroyMilestone permanently removes a milestone and its steps.
func DestroyMilestone(ctx context.Context, q Queryer, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM steps WHERE milestone_id = ?`, id); err != nil {
		return fmt.Errorf("failed to destroy steps of milestone %s: %w", id, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM milestones WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to destroy milestone %s: %w", id, err)
	}
	return nil
}
