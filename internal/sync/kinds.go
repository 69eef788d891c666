package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/remote"
	"github.com/strideapp/stride/internal/status"
	"github.com/strideapp/stride/internal/store"
)

// kindSync is the per-kind adapter the orchestrator drives. Each adapter owns
// the wire representation of its kind and the local store operations for it.
type kindSync interface {
	kind() model.Kind

	// push sends every pending record of this kind, catching failures per
	// record.
	push(ctx context.Context, s *Syncer, sum *Summary)

	// applyRemote upserts the server's version of a record locally, marked
	// synced. Used by both pull phases and conflict resolution; applying
	// the same record twice yields the same local state.
	applyRemote(ctx context.Context, s *Syncer, rec remote.Record) error

	// destroyLocal permanently removes a record and its strictly-owned
	// children in one transaction. Idempotent.
	destroyLocal(ctx context.Context, s *Syncer, id string) error
}

// decodeWire unmarshals a remote record body, coercing type mismatches to
// zero values instead of failing: partial data beats losing the whole batch.
func decodeWire(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return fmt.Errorf("failed to decode record: %w", err)
		}
	}
	return nil
}

// ---- goals ----

type goalWire struct {
	OwnerID     string          `json:"owner_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Priority    int             `json:"priority"`
	DueAt       *remote.LaxTime `json:"due_at,omitempty"`
	Completed   bool            `json:"completed"`
	OrderIndex  int             `json:"order_index"`
	CreatedAt   remote.LaxTime  `json:"created_at"`
	UpdatedAt   remote.LaxTime  `json:"updated_at"`
}

// goalFields builds the push payload. The local identifier is never part of
// it; identity is the server's to assign.
func goalFields(g *model.Goal) goalWire {
	w := goalWire{
		OwnerID:     g.OwnerID,
		Title:       g.Title,
		Description: g.Description,
		Priority:    int(g.Priority),
		Completed:   g.Completed,
		OrderIndex:  g.OrderIndex,
		CreatedAt:   remote.LaxTime{Time: g.CreatedAt},
		UpdatedAt:   remote.LaxTime{Time: g.UpdatedAt},
	}
	if g.DueAt != nil {
		w.DueAt = &remote.LaxTime{Time: *g.DueAt}
	}
	return w
}

func goalFromRecord(ownerID string, rec remote.Record) (*model.Goal, error) {
	var w goalWire
	if err := decodeWire(rec.Fields, &w); err != nil {
		return nil, err
	}

	g := &model.Goal{
		ID:          rec.ID,
		OwnerID:     w.OwnerID,
		Title:       w.Title,
		Description: w.Description,
		Priority:    model.Priority(w.Priority),
		Completed:   w.Completed,
		OrderIndex:  w.OrderIndex,
		CreatedAt:   w.CreatedAt.Time,
		UpdatedAt:   w.UpdatedAt.Time,
		Sync:        status.Synced,
	}
	g.Lifecycle = model.DeriveLifecycle(g.Completed)
	if g.OwnerID == "" {
		g.OwnerID = ownerID
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = rec.UpdatedAt
	}
	if g.Title == "" {
		// A record that fails validation outright still should not sink
		// the batch; store it with a placeholder title.
		g.Title = "(untitled)"
	}
	return g, nil
}

type goalSync struct{}

func (goalSync) kind() model.Kind { return model.KindGoal }

func (a goalSync) push(ctx context.Context, s *Syncer, sum *Summary) {
	goals, err := store.ListGoals(ctx, s.db.RawDB(), store.GoalFilter{
		OwnerID:          s.ownerID,
		IncludeCompleted: true,
		PendingOnly:      true,
		IncludeDeleted:   true,
	})
	if err != nil {
		s.logger.Printf("WARNING: failed to list pending goals: %v", err)
		sum.fail(err)
		return
	}

	for _, g := range goals {
		if ctx.Err() != nil {
			return
		}
		a.pushOne(ctx, s, sum, g)
	}
}

func (a goalSync) pushOne(ctx context.Context, s *Syncer, sum *Summary, g *model.Goal) {
	switch g.Sync {
	case status.PendingCreate:
		rec, err := s.remote.Create(ctx, model.KindGoal, goalFields(g))
		if err != nil {
			s.logger.Printf("WARNING: failed to create goal %s: %v", g.ID, err)
			sum.fail(err)
			return
		}
		if err := s.reconcileGoal(ctx, g, rec); err != nil {
			s.logger.Printf("WARNING: %v", err)
			sum.fail(err)
			return
		}
		sum.Pushed++

	case status.PendingUpdate:
		_, err := s.remote.Update(ctx, model.KindGoal, g.ID, goalFields(g), g.UpdatedAt)
		var conflict *remote.ConflictError
		if errors.As(err, &conflict) {
			if err := a.applyRemote(ctx, s, conflict.Server); err != nil {
				sum.fail(err)
				return
			}
			s.logger.Printf("Conflict on goal %s resolved with server version", g.ID)
			sum.Conflicts++
			return
		}
		if err != nil {
			s.logger.Printf("WARNING: failed to update goal %s: %v", g.ID, err)
			sum.fail(err)
			return
		}
		g.Sync = status.Synced
		if err := store.UpsertGoal(ctx, s.db.RawDB(), g); err != nil {
			sum.fail(err)
			return
		}
		s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindGoal, ID: g.ID, Op: store.OpUpdate})
		sum.Pushed++

	case status.PendingDelete:
		if err := s.remote.Delete(ctx, model.KindGoal, g.ID); err != nil {
			s.logger.Printf("WARNING: failed to delete goal %s: %v", g.ID, err)
			sum.fail(err)
			return
		}
		if err := a.destroyLocal(ctx, s, g.ID); err != nil {
			sum.fail(err)
			return
		}
		sum.Pushed++
	}
}

func (goalSync) applyRemote(ctx context.Context, s *Syncer, rec remote.Record) error {
	g, err := goalFromRecord(s.ownerID, rec)
	if err != nil {
		return err
	}
	if err := store.UpsertGoal(ctx, s.db.RawDB(), g); err != nil {
		return err
	}
	s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindGoal, ID: g.ID, Op: store.OpUpdate})
	return nil
}

func (goalSync) destroyLocal(ctx context.Context, s *Syncer, id string) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return store.DestroyGoal(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindGoal, ID: id, Op: store.OpDelete})
	return nil
}

// ---- milestones ----

type milestoneWire struct {
	OwnerID    string         `json:"owner_id"`
	GoalID     string         `json:"goal_id"`
	Title      string         `json:"title"`
	Completed  bool           `json:"completed"`
	OrderIndex int            `json:"order_index"`
	CreatedAt  remote.LaxTime `json:"created_at"`
	UpdatedAt  remote.LaxTime `json:"updated_at"`
}

func milestoneFields(m *model.Milestone) milestoneWire {
	return milestoneWire{
		OwnerID:    m.OwnerID,
		GoalID:     m.GoalID,
		Title:      m.Title,
		Completed:  m.Completed,
		OrderIndex: m.OrderIndex,
		CreatedAt:  remote.LaxTime{Time: m.CreatedAt},
		UpdatedAt:  remote.LaxTime{Time: m.UpdatedAt},
	}
}

func milestoneFromRecord(ownerID string, rec remote.Record) (*model.Milestone, error) {
	var w milestoneWire
	if err := decodeWire(rec.Fields, &w); err != nil {
		return nil, err
	}

	m := &model.Milestone{
		ID:         rec.ID,
		GoalID:     w.GoalID,
		OwnerID:    w.OwnerID,
		Title:      w.Title,
		Completed:  w.Completed,
		OrderIndex: w.OrderIndex,
		CreatedAt:  w.CreatedAt.Time,
		UpdatedAt:  w.UpdatedAt.Time,
		Sync:       status.Synced,
	}
	m.Lifecycle = model.DeriveLifecycle(m.Completed)
	if m.OwnerID == "" {
		m.OwnerID = ownerID
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = rec.UpdatedAt
	}
	if m.Title == "" {
		m.Title = "(untitled)"
	}
	return m, nil
}

type milestoneSync struct{}

func (milestoneSync) kind() model.Kind { return model.KindMilestone }

func (a milestoneSync) push(ctx context.Context, s *Syncer, sum *Summary) {
	milestones, err := store.ListMilestones(ctx, s.db.RawDB(), s.ownerID, "", true)
	if err != nil {
		s.logger.Printf("WARNING: failed to list pending milestones: %v", err)
		sum.fail(err)
		return
	}

	for _, m := range milestones {
		if ctx.Err() != nil {
			return
		}
		a.pushOne(ctx, s, sum, m)
	}
}

func (a milestoneSync) pushOne(ctx context.Context, s *Syncer, sum *Summary, m *model.Milestone) {
	switch m.Sync {
	case status.PendingCreate:
		rec, err := s.remote.Create(ctx, model.KindMilestone, milestoneFields(m))
		if err != nil {
			s.logger.Printf("WARNING: failed to create milestone %s: %v", m.ID, err)
			sum.fail(err)
			return
		}
		if err := s.reconcileMilestone(ctx, m, rec); err != nil {
			s.logger.Printf("WARNING: %v", err)
			sum.fail(err)
			return
		}
		sum.Pushed++

	case status.PendingUpdate:
		_, err := s.remote.Update(ctx, model.KindMilestone, m.ID, milestoneFields(m), m.UpdatedAt)
		var conflict *remote.ConflictError
		if errors.As(err, &conflict) {
			if err := a.applyRemote(ctx, s, conflict.Server); err != nil {
				sum.fail(err)
				return
			}
			s.logger.Printf("Conflict on milestone %s resolved with server version", m.ID)
			sum.Conflicts++
			return
		}
		if err != nil {
			s.logger.Printf("WARNING: failed to update milestone %s: %v", m.ID, err)
			sum.fail(err)
			return
		}
		m.Sync = status.Synced
		if err := store.UpsertMilestone(ctx, s.db.RawDB(), m); err != nil {
			sum.fail(err)
			return
		}
		s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindMilestone, ID: m.ID, Op: store.OpUpdate})
		sum.Pushed++

	case status.PendingDelete:
		if err := s.remote.Delete(ctx, model.KindMilestone, m.ID); err != nil {
			s.logger.Printf("WARNING: failed to delete milestone %s: %v", m.ID, err)
			sum.fail(err)
			return
		}
		if err := a.destroyLocal(ctx, s, m.ID); err != nil {
			sum.fail(err)
			return
		}
		sum.Pushed++
	}
}

func (milestoneSync) applyRemote(ctx context.Context, s *Syncer, rec remote.Record) error {
	m, err := milestoneFromRecord(s.ownerID, rec)
	if err != nil {
		return err
	}
	if err := store.UpsertMilestone(ctx, s.db.RawDB(), m); err != nil {
		return err
	}
	s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindMilestone, ID: m.ID, Op: store.OpUpdate})
	return nil
}

func (milestoneSync) destroyLocal(ctx context.Context, s *Syncer, id string) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return store.DestroyMilestone(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindMilestone, ID: id, Op: store.OpDelete})
	return nil
}

// ---- tasks ----

type taskWire struct {
	OwnerID          string          `json:"owner_id"`
	GoalID           string          `json:"goal_id,omitempty"`
	Title            string          `json:"title"`
	Notes            string          `json:"notes,omitempty"`
	Priority         int             `json:"priority"`
	DueAt            *remote.LaxTime `json:"due_at,omitempty"`
	Completed        bool            `json:"completed"`
	Focus            bool            `json:"focus"`
	Location         string          `json:"location,omitempty"`
	EstimatedMinutes int             `json:"estimated_minutes,omitempty"`
	OrderIndex       int             `json:"order_index"`
	CreatedAt        remote.LaxTime  `json:"created_at"`
	UpdatedAt        remote.LaxTime  `json:"updated_at"`
}

func taskFields(t *model.Task) taskWire {
	w := taskWire{
		OwnerID:          t.OwnerID,
		GoalID:           t.GoalID,
		Title:            t.Title,
		Notes:            t.Notes,
		Priority:         int(t.Priority),
		Completed:        t.Completed,
		Focus:            t.Focus,
		Location:         t.Location,
		EstimatedMinutes: t.EstimatedMinutes,
		OrderIndex:       t.OrderIndex,
		CreatedAt:        remote.LaxTime{Time: t.CreatedAt},
		UpdatedAt:        remote.LaxTime{Time: t.UpdatedAt},
	}
	if t.DueAt != nil {
		w.DueAt = &remote.LaxTime{Time: *t.DueAt}
	}
	return w
}

func taskFromRecord(ownerID string, rec remote.Record) (*model.Task, error) {
	var w taskWire
	if err := decodeWire(rec.Fields, &w); err != nil {
		return nil, err
	}

	t := &model.Task{
		ID:               rec.ID,
		OwnerID:          w.OwnerID,
		GoalID:           w.GoalID,
		Title:            w.Title,
		Notes:            w.Notes,
		Priority:         model.Priority(w.Priority),
		Completed:        w.Completed,
		Focus:            w.Focus,
		Location:         w.Location,
		EstimatedMinutes: w.EstimatedMinutes,
		OrderIndex:       w.OrderIndex,
		CreatedAt:        w.CreatedAt.Time,
		UpdatedAt:        w.UpdatedAt.Time,
		Sync:             status.Synced,
	}
	if w.DueAt != nil && !w.DueAt.IsZero() {
		due := w.DueAt.Time
		t.DueAt = &due
	}
	t.Lifecycle = model.DeriveLifecycle(t.Completed)
	if t.OwnerID == "" {
		t.OwnerID = ownerID
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = rec.UpdatedAt
	}
	if t.Title == "" {
		t.Title = "(untitled)"
	}
	return t, nil
}

type taskSync struct{}

func (taskSync) kind() model.Kind { return model.KindTask }

func (a taskSync) push(ctx context.Context, s *Syncer, sum *Summary) {
	tasks, err := store.ListTasks(ctx, s.db.RawDB(), store.TaskFilter{
		OwnerID:          s.ownerID,
		IncludeCompleted: true,
		PendingOnly:      true,
		IncludeDeleted:   true,
	})
	if err != nil {
		s.logger.Printf("WARNING: failed to list pending tasks: %v", err)
		sum.fail(err)
		return
	}

	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		a.pushOne(ctx, s, sum, t)
	}
}

func (a taskSync) pushOne(ctx context.Context, s *Syncer, sum *Summary, t *model.Task) {
	switch t.Sync {
	case status.PendingCreate:
		rec, err := s.remote.Create(ctx, model.KindTask, taskFields(t))
		if err != nil {
			s.logger.Printf("WARNING: failed to create task %s: %v", t.ID, err)
			sum.fail(err)
			return
		}
		if err := s.reconcileTask(ctx, t, rec); err != nil {
			s.logger.Printf("WARNING: %v", err)
			sum.fail(err)
			return
		}
		sum.Pushed++

	case status.PendingUpdate:
		_, err := s.remote.Update(ctx, model.KindTask, t.ID, taskFields(t), t.UpdatedAt)
		var conflict *remote.ConflictError
		if errors.As(err, &conflict) {
			if err := a.applyRemote(ctx, s, conflict.Server); err != nil {
				sum.fail(err)
				return
			}
			s.logger.Printf("Conflict on task %s resolved with server version", t.ID)
			sum.Conflicts++
			return
		}
		if err != nil {
			s.logger.Printf("WARNING: failed to update task %s: %v", t.ID, err)
			sum.fail(err)
			return
		}
		t.Sync = status.Synced
		if err := store.UpsertTask(ctx, s.db.RawDB(), t); err != nil {
			sum.fail(err)
			return
		}
		s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindTask, ID: t.ID, Op: store.OpUpdate})
		sum.Pushed++

	case status.PendingDelete:
		if err := s.remote.Delete(ctx, model.KindTask, t.ID); err != nil {
			s.logger.Printf("WARNING: failed to delete task %s: %v", t.ID, err)
			sum.fail(err)
			return
		}
		if err := a.destroyLocal(ctx, s, t.ID); err != nil {
			sum.fail(err)
			return
		}
		sum.Pushed++
	}
}

func (taskSync) applyRemote(ctx context.Context, s *Syncer, rec remote.Record) error {
	t, err := taskFromRecord(s.ownerID, rec)
	if err != nil {
		return err
	}
	if err := store.UpsertTask(ctx, s.db.RawDB(), t); err != nil {
		return err
	}
	s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindTask, ID: t.ID, Op: store.OpUpdate})
	return nil
}

func (taskSync) destroyLocal(ctx context.Context, s *Syncer, id string) error {
	if err := store.DeleteTask(ctx, s.db.RawDB(), id); err != nil {
		return err
	}
	s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindTask, ID: id, Op: store.OpDelete})
	return nil
}

// ---- steps ----

type stepWire struct {
	OwnerID     string         `json:"owner_id"`
	MilestoneID string         `json:"milestone_id"`
	Title       string         `json:"title"`
	Completed   bool           `json:"completed"`
	OrderIndex  int            `json:"order_index"`
	CreatedAt   remote.LaxTime `json:"created_at"`
	UpdatedAt   remote.LaxTime `json:"updated_at"`
}

func stepFields(st *model.Step) stepWire {
	return stepWire{
		OwnerID:     st.OwnerID,
		MilestoneID: st.MilestoneID,
		Title:       st.Title,
		Completed:   st.Completed,
		OrderIndex:  st.OrderIndex,
		CreatedAt:   remote.LaxTime{Time: st.CreatedAt},
		UpdatedAt:   remote.LaxTime{Time: st.UpdatedAt},
	}
}

func stepFromRecord(ownerID string, rec remote.Record) (*model.Step, error) {
	var w stepWire
	if err := decodeWire(rec.Fields, &w); err != nil {
		return nil, err
	}

	st := &model.Step{
		ID:          rec.ID,
		MilestoneID: w.MilestoneID,
		OwnerID:     w.OwnerID,
		Title:       w.Title,
		Completed:   w.Completed,
		OrderIndex:  w.OrderIndex,
		CreatedAt:   w.CreatedAt.Time,
		UpdatedAt:   w.UpdatedAt.Time,
		Sync:        status.Synced,
	}
	st.Lifecycle = model.DeriveLifecycle(st.Completed)
	if st.OwnerID == "" {
		st.OwnerID = ownerID
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = rec.UpdatedAt
	}
	if st.Title == "" {
		st.Title = "(untitled)"
	}
	return st, nil
}

type stepSync struct{}

func (stepSync) kind() model.Kind { return model.KindStep }

func (a stepSync) push(ctx context.Context, s *Syncer, sum *Summary) {
	steps, err := store.ListSteps(ctx, s.db.RawDB(), s.ownerID, "", true)
	if err != nil {
		s.logger.Printf("WARNING: failed to list pending steps: %v", err)
		sum.fail(err)
		return
	}

	for _, st := range steps {
		if ctx.Err() != nil {
			return
		}
		a.pushOne(ctx, s, sum, st)
	}
}

func (a stepSync) pushOne(ctx context.Context, s *Syncer, sum *Summary, st *model.Step) {
	switch st.Sync {
	case status.PendingCreate:
		rec, err := s.remote.Create(ctx, model.KindStep, stepFields(st))
		if err != nil {
			s.logger.Printf("WARNING: failed to create step %s: %v", st.ID, err)
			sum.fail(err)
			return
		}
		if err := s.reconcileStep(ctx, st, rec); err != nil {
			s.logger.Printf("WARNING: %v", err)
			sum.fail(err)
			return
		}
		sum.Pushed++

	case status.PendingUpdate:
		_, err := s.remote.Update(ctx, model.KindStep, st.ID, stepFields(st), st.UpdatedAt)
		var conflict *remote.ConflictError
		if errors.As(err, &conflict) {
			if err := a.applyRemote(ctx, s, conflict.Server); err != nil {
				sum.fail(err)
				return
			}
			s.logger.Printf("Conflict on step %s resolved with server version", st.ID)
			sum.Conflicts++
			return
		}
		if err != nil {
			s.logger.Printf("WARNING: failed to update step %s: %v", st.ID, err)
			sum.fail(err)
			return
		}
		st.Sync = status.Synced
		if err := store.UpsertStep(ctx, s.db.RawDB(), st); err != nil {
			sum.fail(err)
			return
		}
		s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindStep, ID: st.ID, Op: store.OpUpdate})
		sum.Pushed++

	case status.PendingDelete:
		if err := s.remote.Delete(ctx, model.KindStep, st.ID); err != nil {
			s.logger.Printf("WARNING: failed to delete step %s: %v", st.ID, err)
			sum.fail(err)
			return
		}
		if err := a.destroyLocal(ctx, s, st.ID); err != nil {
			sum.fail(err)
			return
		}
		sum.Pushed++
	}
}

func (stepSync) applyRemote(ctx context.Context, s *Syncer, rec remote.Record) error {
	st, err := stepFromRecord(s.ownerID, rec)
	if err != nil {
		return err
	}
	if err := store.UpsertStep(ctx, s.db.RawDB(), st); err != nil {
		return err
	}
	s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindStep, ID: st.ID, Op: store.OpUpdate})
	return nil
}

func (stepSync) destroyLocal(ctx context.Context, s *Syncer, id string) error {
	if err := store.DeleteStep(ctx, s.db.RawDB(), id); err != nil {
		return err
	}
	s.db.Notifier().Publish(store.ChangeEvent{Kind: model.KindStep, ID: id, Op: store.OpDelete})
	return nil
}
