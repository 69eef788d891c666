package model

import (
	"fmt"
	"time"

	"github.com/strideapp/stride/internal/status"
)

// Task is a single unit of work, optionally attached to a goal.
//
// Sync and Lifecycle are the two in-memory dimensions of the record status;
// the storage layer serializes them into one combined string column. For a
// synced record the stored token carries no lifecycle, so Lifecycle is
// rebuilt from the Completed flag on read.
type Task struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	GoalID  string `json:"goal_id,omitempty"`

	Title    string   `json:"title"`
	Notes    string   `json:"notes,omitempty"`
	Priority Priority `json:"priority"`

	DueAt            *time.Time `json:"due_at,omitempty"`
	Completed        bool       `json:"completed"`
	Focus            bool       `json:"focus"`
	Location         string     `json:"location,omitempty"`
	EstimatedMinutes int        `json:"estimated_minutes,omitempty"`
	OrderIndex       int        `json:"order_index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sync      status.Replication `json:"-"`
	Lifecycle status.Lifecycle   `json:"-"`
}

// Validate checks field values before a write.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.Priority < PriorityNone || t.Priority > PriorityHigh {
		return fmt.Errorf("priority must be between 0 and 3 (got %d)", t.Priority)
	}
	return nil
}

// SetDefaults applies defaults for optional fields.
func (t *Task) SetDefaults() {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	if t.Sync == "" {
		t.Sync = status.PendingCreate
	}
	if t.Lifecycle == "" {
		t.Lifecycle = status.NotStarted
	}
}

// DeriveLifecycle returns the lifecycle implied by the completion flag, used
// when the stored status token carries none.
func DeriveLifecycle(completed bool) status.Lifecycle {
	if completed {
		return status.Completed
	}
	return status.NotStarted
}
