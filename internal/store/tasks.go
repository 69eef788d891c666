package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/status"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx, so every record
// operation can run standalone or inside a transactional scope.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const taskColumns = `id, owner_id, goal_id, title, notes, priority, due_at,
	completed, focus, location, estimated_minutes, order_index, status,
	created_at, updated_at`

// UpsertTask inserts or updates a task. The combined status column is encoded
// from the task's in-memory replication and lifecycle pair.
func UpsertTask(ctx context.Context, q Queryer, t *model.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
	INSERT INTO tasks (` + taskColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner_id = excluded.owner_id,
		goal_id = excluded.goal_id,
		title = excluded.title,
		notes = excluded.notes,
		priority = excluded.priority,
		due_at = excluded.due_at,
		completed = excluded.completed,
		focus = excluded.focus,
		location = excluded.location,
		estimated_minutes = excluded.estimated_minutes,
		order_index = excluded.order_index,
		status = excluded.status,
		updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		t.ID,
		t.OwnerID,
		stringToNull(t.GoalID),
		t.Title,
		t.Notes,
		int(t.Priority),
		timeToNullString(t.DueAt),
		boolToInt(t.Completed),
		boolToInt(t.Focus),
		t.Location,
		t.EstimatedMinutes,
		t.OrderIndex,
		status.Encode(t.Sync, t.Lifecycle),
		t.CreatedAt.UTC().Format(timeLayout),
		t.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns (nil, nil) when the task does not
// exist; read access never raises not-found.
func GetTask(ctx context.Context, q Queryer, id string) (*model.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// DeleteTask removes a task row. Idempotent.
func DeleteTask(ctx context.Context, q Queryer, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// TaskFilter configures ListTasks.
type TaskFilter struct {
	// OwnerID restricts to one owner (empty = all).
	OwnerID string
	// GoalID restricts to tasks attached to a goal (empty = all).
	GoalID string
	// FocusOnly restricts to the focused task.
	FocusOnly bool
	// IncludeCompleted includes completed tasks.
	IncludeCompleted bool
	// PendingOnly restricts to tasks whose replication state is not synced.
	PendingOnly bool
	// IncludeDeleted includes tasks marked pending_delete. Off by default;
	// a deleted record is invisible to everything but the push phase.
	IncludeDeleted bool
}

// ListTasks retrieves tasks matching the filter, ordered by order_index then
// creation time.
func ListTasks(ctx context.Context, q Queryer, f TaskFilter) ([]*model.Task, error) {
	var conditions []string
	var args []any

	if f.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.GoalID != "" {
		conditions = append(conditions, "goal_id = ?")
		args = append(args, f.GoalID)
	}
	if f.FocusOnly {
		conditions = append(conditions, "focus = 1")
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

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY order_index ASC, created_at ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// RepointTaskGoalRefs rewrites every task referencing oldGoalID to reference
// newGoalID. Used by identity reconciliation inside its transaction.
func RepointTaskGoalRefs(ctx context.Context, q Queryer, oldGoalID, newGoalID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE tasks SET goal_id = ? WHERE goal_id = ?`, newGoalID, oldGoalID)
	if err != nil {
		return fmt.Errorf("failed to repoint task goal refs %s -> %s: %w", oldGoalID, newGoalID, err)
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*model.Task, error) {
	var t model.Task
	var goalID, dueAt sql.NullString
	var completed, focus int
	var rawStatus, createdAt, updatedAt string

	err := s.Scan(
		&t.ID,
		&t.OwnerID,
		&goalID,
		&t.Title,
		&t.Notes,
		&t.Priority,
		&dueAt,
		&completed,
		&focus,
		&t.Location,
		&t.EstimatedMinutes,
		&t.OrderIndex,
		&rawStatus,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if goalID.Valid {
		t.GoalID = goalID.String
	}
	t.DueAt = nullStringToTime(dueAt)
	t.Completed = completed != 0
	t.Focus = focus != 0
	t.CreatedAt = parseStoredTime(createdAt)
	t.UpdatedAt = parseStoredTime(updatedAt)

	t.Sync, t.Lifecycle = status.Decode(rawStatus)
	if t.Sync == status.Synced {
		t.Lifecycle = model.DeriveLifecycle(t.Completed)
	}
	return &t, nil
}
