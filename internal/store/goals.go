package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/status"
)

const goalColumns = `id, owner_id, title, description, priority, due_at,
	completed, order_index, status, created_at, updated_at`

// UpsertGoal inserts or updates a goal.
func UpsertGoal(ctx context.Context, q Queryer, g *model.Goal) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid goal: %w", err)
	}

	query := `
	INSERT INTO goals (` + goalColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner_id = excluded.owner_id,
		title = excluded.title,
		description = excluded.description,
		priority = excluded.priority,
		due_at = excluded.due_at,
		completed = excluded.completed,
		order_index = excluded.order_index,
		status = excluded.status,
		updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		g.ID,
		g.OwnerID,
		g.Title,
		g.Description,
		int(g.Priority),
		timeToNullString(g.DueAt),
		boolToInt(g.Completed),
		g.OrderIndex,
		status.Encode(g.Sync, g.Lifecycle),
		g.CreatedAt.UTC().Format(timeLayout),
		g.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert goal %s: %w", g.ID, err)
	}
	return nil
}

// GetGoal retrieves a goal by ID. Returns (nil, nil) when absent.
func GetGoal(ctx context.Context, q Queryer, id string) (*model.Goal, error) {
	row := q.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal %s: %w", id, err)
	}
	return g, nil
}

// DeleteGoal removes a goal row. Strictly-owned children (milestones and
// their steps) cascade via foreign keys; task references are set to NULL.
func DeleteGoal(ctx context.Context, q Queryer, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete goal %s: %w", id, err)
	}
	return nil
}

// GoalFilter configures ListGoals.
type GoalFilter struct {
	OwnerID          string
	IncludeCompleted bool
	PendingOnly      bool
	IncludeDeleted   bool
}

// ListGoals retrieves goals matching the filter.
func ListGoals(ctx context.Context, q Queryer, f GoalFilter) ([]*model.Goal, error) {
	var conditions []string
	var args []any

	if f.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if !f.IncludeCompleted {
		conditions = append(conditions, "completed = 0")
	}
	if f.PendingOnly {
		conditions = append(conditions, "status != ?")
		args = append(args, string(status.Synced))
	}
	if !f.IncludeDeleted {
		conditions = append(conditions, "status != ?")
		args = append(args, string(status.PendingDelete))
	}

	query := `SELECT ` + goalColumns + ` FROM goals`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY order_index ASC, created_at ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goals: %w", err)
	}
	return goals, nil
}

// RepointMilestoneGoalRefs rewrites milestone references from oldGoalID to
// newGoalID inside the reconciliation transaction.
func RepointMilestoneGoalRefs(ctx context.Context, q Queryer, oldGoalID, newGoalID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE milestones SET goal_id = ? WHERE goal_id = ?`, newGoalID, oldGoalID)
	if err != nil {
		return fmt.Errorf("failed to repoint milestone goal refs %s -> %s: %w", oldGoalID, newGoalID, err)
	}
	return nil
}

func scanGoal(s scanner) (*model.Goal, error) {
	var g model.Goal
	var dueAt sql.NullString
	var completed int
	var rawStatus, createdAt, updatedAt string

	err := s.Scan(
		&g.ID,
		&g.OwnerID,
		&g.Title,
		&g.Description,
		&g.Priority,
		&dueAt,
		&completed,
		&g.OrderIndex,
		&rawStatus,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.DueAt = nullStringToTime(dueAt)
	g.Completed = completed != 0
	g.CreatedAt = parseStoredTime(createdAt)
	g.UpdatedAt = parseStoredTime(updatedAt)

	g.Sync, g.Lifecycle = status.Decode(rawStatus)
	if g.Sync == status.Synced {
		g.Lifecycle = model.DeriveLifecycle(g.Completed)
	}
	return &g, nil
}

const milestoneColumns = `id, goal_id, owner_id, title, completed, order_index,
	status, created_at, updated_at`

// UpsertMilestone inserts or updates a milestone.
func UpsertMilestone(ctx context.Context, q Queryer, m *model.Milestone) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid milestone: %w", err)
	}

	query := `
	INSERT INTO milestones (` + milestoneColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		goal_id = excluded.goal_id,
		owner_id = excluded.owner_id,
		title = excluded.title,
		completed = excluded.completed,
		order_index = excluded.order_index,
		status = excluded.status,
		updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		m.ID,
		m.GoalID,
		m.OwnerID,
		m.Title,
		boolToInt(m.Completed),
		m.OrderIndex,
		status.Encode(m.Sync, m.Lifecycle),
		m.CreatedAt.UTC().Format(timeLayout),
		m.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert milestone %s: %w", m.ID, err)
	}
	return nil
}

// GetMilestone retrieves a milestone by ID. Returns (nil, nil) when absent.
func GetMilestone(ctx context.Context, q Queryer, id string) (*model.Milestone, error) {
	row := q.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = ?`, id)
	m, err := scanMilestone(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get milestone %s: %w", id, err)
	}
	return m, nil
}

// DeleteMilestone removes a milestone row; its steps cascade.
func DeleteMilestone(ctx context.Context, q Queryer, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM milestones WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete milestone %s: %w", id, err)
	}
	return nil
}

// ListMilestones retrieves milestones, optionally restricted to one goal.
func ListMilestones(ctx context.Context, q Queryer, ownerID, goalID string, pendingOnly bool) ([]*model.Milestone, error) {
	var conditions []string
	var args []any

	if ownerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, ownerID)
	}
	if goalID != "" {
		conditions = append(conditions, "goal_id = ?")
		args = append(args, goalID)
	}
	if pendingOnly {
		conditions = append(conditions, "status != ?")
		args = append(args, string(status.Synced))
	} else {
		conditions = append(conditions, "status != ?")
		args = append(args, string(status.PendingDelete))
	}

	query := `SELECT ` + milestoneColumns + ` FROM milestones`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY order_index ASC, created_at ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []*model.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating milestones: %w", err)
	}
	return milestones, nil
}

// RepointStepMilestoneRefs rewrites step references from oldMilestoneID to
// newMilestoneID inside the reconciliation transaction.
func RepointStepMilestoneRefs(ctx context.Context, q Queryer, oldMilestoneID, newMilestoneID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE steps SET milestone_id = ? WHERE milestone_id = ?`, newMilestoneID, oldMilestoneID)
	if err != nil {
		return fmt.Errorf("failed to repoint step milestone refs %s -> %s: %w", oldMilestoneID, newMilestoneID, err)
	}
	return nil
}

func scanMilestone(s scanner) (*model.Milestone, error) {
	var m model.Milestone
	var completed int
	var rawStatus, createdAt, updatedAt string

	err := s.Scan(
		&m.ID,
		&m.GoalID,
		&m.OwnerID,
		&m.Title,
		&completed,
		&m.OrderIndex,
		&rawStatus,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Completed = completed != 0
	m.CreatedAt = parseStoredTime(createdAt)
	m.UpdatedAt = parseStoredTime(updatedAt)

	m.Sync, m.Lifecycle = status.Decode(rawStatus)
	if m.Sync == status.Synced {
		m.Lifecycle = model.DeriveLifecycle(m.Completed)
	}
	return &m, nil
}

const stepColumns = `id, milestone_id, owner_id, title, completed, order_index,
	status, created_at, updated_at`

// UpsertStep inserts or updates a step.
func UpsertStep(ctx context.Context, q Queryer, st *model.Step) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("invalid step: %w", err)
	}

	query := `
	INSERT INTO steps (` + stepColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		milestone_id = excluded.milestone_id,
		owner_id = excluded.owner_id,
		title = excluded.title,
		completed = excluded.completed,
		order_index = excluded.order_index,
		status = excluded.status,
		updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		st.ID,
		st.MilestoneID,
		st.OwnerID,
		st.Title,
		boolToInt(st.Completed),
		st.OrderIndex,
		status.Encode(st.Sync, st.Lifecycle),
		st.CreatedAt.UTC().Format(timeLayout),
		st.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert step %s: %w", st.ID, err)
	}
	return nil
}

// GetStep retrieves a step by ID. Returns (nil, nil) when absent.
func GetStep(ctx context.Context, q Queryer, id string) (*model.Step, error) {
	row := q.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM steps WHERE id = ?`, id)
	st, err := scanStep(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step %s: %w", id, err)
	}
	return st, nil
}

// DeleteStep removes a step row. Idempotent.
func DeleteStep(ctx context.Context, q Queryer, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM steps WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete step %s: %w", id, err)
	}
	return nil
}

// ListSteps retrieves steps, optionally restricted to one milestone.
func ListSteps(ctx context.Context, q Queryer, ownerID, milestoneID string, pendingOnly bool) ([]*model.Step, error) {
	var conditions []string
	var args []any

	if ownerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, ownerID)
	}
	if milestoneID != "" {
		conditions = append(conditions, "milestone_id = ?")
		args = append(args, milestoneID)
	}
	if pendingOnly {
		conditions = append(conditions, "status != ?")
		args = append(args, string(status.Synced))
	} else {
		conditions = append(conditions, "status != ?")
		args = append(args, string(status.PendingDelete))
	}

	query := `SELECT ` + stepColumns + ` FROM steps`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY order_index ASC, created_at ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*model.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}
	return steps, nil
}

func scanStep(s scanner) (*model.Step, error) {
	var st model.Step
	var completed int
	var rawStatus, createdAt, updatedAt string

	err := s.Scan(
		&st.ID,
		&st.MilestoneID,
		&st.OwnerID,
		&st.Title,
		&completed,
		&st.OrderIndex,
		&rawStatus,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	st.Completed = completed != 0
	st.CreatedAt = parseStoredTime(createdAt)
	st.UpdatedAt = parseStoredTime(updatedAt)

	st.Sync, st.Lifecycle = status.Decode(rawStatus)
	if st.Sync == status.Synced {
		st.Lifecycle = model.DeriveLifecycle(st.Completed)
	}
	return &st, nil
}
