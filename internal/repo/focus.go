package repo

import (
	"context"
	"errors"
	"sort"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/store"
)

// TravelPreference narrows focus candidates by where they can be done.
type TravelPreference string

const (
	// TravelAny places no location constraint on candidates.
	TravelAny TravelPreference = ""

	// TravelHomeOnly excludes candidates with a nonempty location.
	TravelHomeOnly TravelPreference = "home_only"
)

// FocusOptions configures SelectFocus.
type FocusOptions struct {
	// CurrentFocusID is the task losing focus, if any. Its flag is
	// cleared before selection and it never selects itself.
	CurrentFocusID string

	// Travel filters candidates by location.
	Travel TravelPreference

	// ExcludeIDs are tasks the user already skipped this session.
	ExcludeIDs []string
}

// SelectFocus picks the owner's next focus task deterministically.
//
// Candidates are the owner's non-deleted, non-completed tasks minus the
// exclusions. Ranking is priority descending, then due date ascending with
// unset dates last, then record identity so identical inputs always produce
// the same choice. The winner gets the focus flag, a default duration
// estimate if it had none, and a pending status so the change syncs.
func (r *TaskRepo) SelectFocus(ctx context.Context, ownerID string, opts FocusOptions) (*model.Task, error) {
	if opts.CurrentFocusID != "" {
		// Clearing focus is a normal update; a vanished task is fine.
		if _, err := r.SetFocus(ctx, opts.CurrentFocusID, false); err != nil && !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}

	candidates, err := store.ListTasks(ctx, r.db.RawDB(), store.TaskFilter{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(opts.ExcludeIDs)+1)
	for _, id := range opts.ExcludeIDs {
		skip[id] = true
	}
	if opts.CurrentFocusID != "" {
		skip[opts.CurrentFocusID] = true
	}

	eligible := candidates[:0]
	for _, t := range candidates {
		if skip[t.ID] {
			continue
		}
		if opts.Travel == TravelHomeOnly && t.Location != "" {
			continue
		}
		eligible = append(eligible, t)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		switch {
		case a.DueAt == nil && b.DueAt == nil:
			return a.ID < b.ID
		case a.DueAt == nil:
			return false // unset due date sorts last
		case b.DueAt == nil:
			return true
		case !a.DueAt.Equal(*b.DueAt):
			return a.DueAt.Before(*b.DueAt)
		default:
			return a.ID < b.ID
		}
	})

	if len(eligible) == 0 {
		return nil, model.ErrNoEligibleTask
	}

	selected := eligible[0]
	return r.Update(ctx, selected.ID, func(t *model.Task) {
		t.Focus = true
		if t.EstimatedMinutes <= 0 {
			t.EstimatedMinutes = model.DefaultEstimateMinutes
		}
	})
}
