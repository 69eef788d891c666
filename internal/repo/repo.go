// Package repo implements the repositories that own all writes to the local
// store.
//
// Repositories are the only components allowed to mutate records directly:
// they stamp replication status on every write, refresh update timestamps,
// enforce the not-found contract, and publish change events after commit so
// live queries and the sync daemon can react without polling. The sync engine
// routes its own mutations through the store's transactional scope instead,
// but follows the same status-encoding rules.
package repo

import (
	"context"

	"github.com/strideapp/stride/internal/model"
	"github.com/strideapp/stride/internal/store"
)

// Repos bundles the per-aggregate repositories over one database.
type Repos struct {
	Tasks *TaskRepo
	Goals *GoalRepo
}

// New creates repositories over the given database.
func New(db *store.DB) *Repos {
	return &Repos{
		Tasks: &TaskRepo{db: db},
		Goals: &GoalRepo{db: db},
	}
}

// watch re-runs query whenever a change event for one of the kinds arrives,
// delivering fresh result sets on the returned channel. The initial result is
// delivered immediately. The channel closes when ctx is done.
func watch[T any](ctx context.Context, db *store.DB, kinds map[model.Kind]bool, query func(context.Context) ([]T, error)) (<-chan []T, error) {
	first, err := query(ctx)
	if err != nil {
		return nil, err
	}

	events, cancel := db.Notifier().Subscribe(32)
	out := make(chan []T, 1)
	out <- first

	go func() {
		defer cancel()
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !kinds[ev.Kind] {
					continue
				}
				result, err := query(ctx)
				if err != nil {
					// The store is gone or the ctx died; either
					// way the watcher is over.
					return
				}
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
