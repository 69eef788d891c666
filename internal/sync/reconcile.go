package sync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/remote"
	"github.com/strideapp/stride/internal/status"
	"github.com/strideapp/stride/internal/store"
)

// ReconcileError reports a failed identity swap after a successful remote
// create. The remote row exists; the local row still carries its provisional
// identifier and pending_create state, so the next cycle retries.
type ReconcileError struct {
	Kind     model.Kind
	LocalID  string
	ServerID string
	Err      error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("failed to reconcile %s %s with server id %s: %v", e.Kind, e.LocalID, e.ServerID, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// reconcileGoal swaps a freshly-created goal's provisional identifier for the
// server-assigned one. The new row, every repointed milestone and task, and
// the removal of the old row commit together or not at all.
func (s *Syncer) reconcileGoal(ctx context.Context, g *model.Goal, rec remote.Record) error {
	synced := *g
	synced.ID = rec.ID
	synced.Sync = status.Synced
	if !rec.UpdatedAt.IsZero() {
		synced.UpdatedAt = rec.UpdatedAt
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.UpsertGoal(ctx, tx, &synced); err != nil {
			return err
		}
		if rec.ID == g.ID {
			return nil
		}
		if err := store.RepointMilestoneGoalRefs(ctx, tx, g.ID, rec.ID); err != nil {
			return err
		}
		if err := store.RepointTaskGoalRefs(ctx, tx, g.ID, rec.ID); err != nil {
			return err
		}
		return store.DeleteGoal(ctx, tx, g.ID)
	})
	if err != nil {
		return &ReconcileError{Kind: model.KindGoal, LocalID: g.ID, ServerID: rec.ID, Err: err}
	}

	s.publishSwap(model.KindGoal, g.ID, rec.ID)
	return nil
}

func (s *Syncer) reconcileMilestone(ctx context.Context, m *model.Milestone, rec remote.Record) error {
	synced := *m
	synced.ID = rec.ID
	synced.Sync = status.Synced
	if !rec.UpdatedAt.IsZero() {
		synced.UpdatedAt = rec.UpdatedAt
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.UpsertMilestone(ctx, tx, &synced); err != nil {
			return err
		}
		if rec.ID == m.ID {
			return nil
		}
		if err := store.RepointStepMilestoneRefs(ctx, tx, m.ID, rec.ID); err != nil {
			return err
		}
		return store.DeleteMilestone(ctx, tx, m.ID)
	})
	if err != nil {
		return &ReconcileError{Kind: model.KindMilestone, LocalID: m.ID, ServerID: rec.ID, Err: err}
	}

	s.publishSwap(model.KindMilestone, m.ID, rec.ID)
	return nil
}

func (s *Syncer) reconcileTask(ctx context.Context, t *model.Task, rec remote.Record) error {
	synced := *t
	synced.ID = rec.ID
	synced.Sync = status.Synced
	if !rec.UpdatedAt.IsZero() {
		synced.UpdatedAt = rec.UpdatedAt
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.UpsertTask(ctx, tx, &synced); err != nil {
			return err
		}
		if rec.ID == t.ID {
			return nil
		}
		return store.DeleteTask(ctx, tx, t.ID)
	})
	if err != nil {
		return &ReconcileError{Kind: model.KindTask, LocalID: t.ID, ServerID: rec.ID, Err: err}
	}

	s.publishSwap(model.KindTask, t.ID, rec.ID)
	return nil
}

func (s *Syncer) reconcileStep(ctx context.Context, st *model.Step, rec remote.Record) error {
	synced := *st
	synced.ID = rec.ID
	synced.Sync = status.Synced
	if !rec.UpdatedAt.IsZero() {
		synced.UpdatedAt = rec.UpdatedAt
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.UpsertStep(ctx, tx, &synced); err != nil {
			return err
		}
		if rec.ID == st.ID {
			return nil
		}
		return store.DeleteStep(ctx, tx, st.ID)
	})
	if err != nil {
		return &ReconcileError{Kind: model.KindStep, LocalID: st.ID, ServerID: rec.ID, Err: err}
	}

	s.publishSwap(model.KindStep, st.ID, rec.ID)
	return nil
}

func (s *Syncer) publishSwap(kind model.Kind, oldID, newID string) {
	n := s.db.Notifier()
	if oldID != newID {
		n.Publish(store.ChangeEvent{Kind: kind, ID: oldID, Op: store.OpDelete})
	}
	n.Publish(store.ChangeEvent{Kind: kind, ID: newID, Op: store.OpUpdate})
}
