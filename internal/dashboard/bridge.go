package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/strideapp/stride/internal/status"
	"github.com/strideapp/stride/internal/store"
	"github.com/strideapp/stride/internal/sync"
)

// Bridge feeds local store change events and sync results into the server.
type Bridge struct {
	server  *Server
	db      *store.DB
	ownerID string
	logger  *log.Logger
}

// NewBridge creates a bridge between the store's change feed and a server.
func NewBridge(server *Server, db *store.DB, ownerID string, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{server: server, db: db, ownerID: ownerID, logger: logger}
}

// Run subscribes to the store's change feed and broadcasts until ctx is
// cancelled. Each record change also refreshes the stats message.
func (b *Bridge) Run(ctx context.Context) {
	events, cancel := b.db.Notifier().Subscribe(64)
	defer cancel()

	b.broadcastStats(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.onChange(ctx, ev)
		}
	}
}

func (b *Bridge) onChange(ctx context.Context, ev store.ChangeEvent) {
	data, err := json.Marshal(RecordUpdateData{
		Kind:   string(ev.Kind),
		ID:     ev.ID,
		Action: actionName(ev.Op),
	})
	if err != nil {
		b.logger.Printf("Failed to marshal record update: %v", err)
		return
	}

	b.server.Broadcast(Message{
		Type:      MessageTypeRecordUpdate,
		Timestamp: time.Now(),
		Data:      data,
	})

	b.broadcastStats(ctx)
}

// OnSyncComplete broadcasts the result of a finished sync cycle.
func (b *Bridge) OnSyncComplete(sum sync.Summary) {
	data, err := json.Marshal(SyncCompleteData{
		Mode:      sum.Mode.String(),
		Pushed:    sum.Pushed,
		Pulled:    sum.Pulled,
		Deleted:   sum.Deleted,
		Conflicts: sum.Conflicts,
		Failures:  sum.Failures,
		Duration:  sum.Finished.Sub(sum.Started),
	})
	if err != nil {
		b.logger.Printf("Failed to marshal sync summary: %v", err)
		return
	}

	b.server.Broadcast(Message{
		Type:      MessageTypeSyncComplete,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (b *Bridge) broadcastStats(ctx context.Context) {
	tasks, err := store.ListTasks(ctx, b.db.RawDB(), store.TaskFilter{
		OwnerID:          b.ownerID,
		IncludeCompleted: true,
	})
	if err != nil {
		b.logger.Printf("Failed to load stats: %v", err)
		return
	}

	stats := StatsData{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			stats.Completed++
		}
		if t.Sync != status.Synced {
			stats.Pending++
		}
		if t.Focus {
			stats.FocusID = t.ID
		}
	}

	data, err := json.Marshal(stats)
	if err != nil {
		b.logger.Printf("Failed to marshal stats: %v", err)
		return
	}

	b.server.Broadcast(Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func actionName(op store.Op) string {
	switch op {
	case store.OpCreate:
		return "created"
	case store.OpDelete:
		return "deleted"
	default:
		return "updated"
	}
}
