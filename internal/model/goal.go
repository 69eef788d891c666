package model

import (
	"fmt"
	"time"

	"github.com/strideapp/stride/internal/status"
)

// Goal is a long-lived objective. Milestones and tasks reference it by ID,
// which makes goals the root of the identity-reconciliation reference map.
type Goal struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority"`

	DueAt      *time.Time `json:"due_at,omitempty"`
	Completed  bool       `json:"completed"`
	OrderIndex int        `json:"order_index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sync      status.Replication `json:"-"`
	Lifecycle status.Lifecycle   `json:"-"`
}

func (g *Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("id is required")
	}
	if g.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if g.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(g.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(g.Title))
	}
	return nil
}

func (g *Goal) SetDefaults() {
	now := time.Now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = now
	}
	if g.Sync == "" {
		g.Sync = status.PendingCreate
	}
	if g.Lifecycle == "" {
		g.Lifecycle = status.NotStarted
	}
}

// Milestone is a checkpoint within a goal.
type Milestone struct {
	ID      string `json:"id"`
	GoalID  string `json:"goal_id"`
	OwnerID string `json:"owner_id"`

	Title      string `json:"title"`
	Completed  bool   `json:"completed"`
	OrderIndex int    `json:"order_index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sync      status.Replication `json:"-"`
	Lifecycle status.Lifecycle   `json:"-"`
}

func (m *Milestone) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.GoalID == "" {
		return fmt.Errorf("goal_id is required")
	}
	if m.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if m.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

func (m *Milestone) SetDefaults() {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	if m.Sync == "" {
		m.Sync = status.PendingCreate
	}
	if m.Lifecycle == "" {
		m.Lifecycle = status.NotStarted
	}
}

// Step is the smallest unit of progress, owned by a milestone.
type Step struct {
	ID          string `json:"id"`
	MilestoneID string `json:"milestone_id"`
	OwnerID     string `json:"owner_id"`

	Title      string `json:"title"`
	Completed  bool   `json:"completed"`
	OrderIndex int    `json:"order_index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sync      status.Replication `json:"-"`
	Lifecycle status.Lifecycle   `json:"-"`
}

func (s *Step) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.MilestoneID == "" {
		return fmt.Errorf("milestone_id is required")
	}
	if s.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

func (s *Step) SetDefaults() {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	if s.Sync == "" {
		s.Sync = status.PendingCreate
	}
	if s.Lifecycle == "" {
		s.Lifecycle = status.NotStarted
	}
}
