// Package remote defines the contract stride consumes from the authoritative
// backend, plus the HTTP client that implements it.
//
// The contract is deliberately abstract: the sync engine only ever sees the
// Store interface, so tests script a fake and the wire format stays an
// implementation detail of the client.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/strideapp/stride/internal/model"
)

// Record is a remote record as returned by the backend: the server-assigned
// identifier, the server's stored update timestamp, and the full record body.
type Record struct {
	ID        string
	UpdatedAt time.Time
	Fields    json.RawMessage
}

// Changes is a delta-pull response, partitioned into changed records and
// deleted identifiers.
type Changes struct {
	Changed []Record
	Deleted []string
}

// ConflictError is returned by Update when the server rejects a stale write.
// It carries the server's current version of the record so the caller can
// resolve locally.
type ConflictError struct {
	Server Record
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote rejected stale update for %s", e.Server.ID)
}

// Store is the abstract remote backend.
//
// Every call is timeout-bounded by its context. Errors other than
// *ConflictError are treated as transient by the sync engine: logged,
// swallowed at batch level, retried next cycle.
type Store interface {
	// Create stores a new record and returns its server-assigned identity.
	// The submitted fields never include a local identifier.
	Create(ctx context.Context, kind model.Kind, fields any) (Record, error)

	// Update overwrites a record's fields, submitting the client's update
	// timestamp as a precondition. The server accepts only if that
	// timestamp is not older than its stored one; otherwise it returns
	// *ConflictError carrying its current record.
	Update(ctx context.Context, kind model.Kind, id string, fields any, clientUpdatedAt time.Time) (Record, error)

	// Delete removes a record. A record the server reports as already
	// gone is a success, so delete pushes are idempotent.
	Delete(ctx context.Context, kind model.Kind, id string) error

	// ListChanges returns records changed and identifiers deleted since
	// the cursor. A zero cursor means everything.
	ListChanges(ctx context.Context, kind model.Kind, ownerID string, since time.Time) (Changes, error)

	// ListAll returns every record of the kind for the owner.
	ListAll(ctx context.Context, kind model.Kind, ownerID string) ([]Record, error)
}

// LaxTime is a timestamp that never fails to decode. Malformed or missing
// values become the zero time, because a bad timestamp in one pulled record
// must not abort a whole sync batch.
type LaxTime struct {
	time.Time
}

func (t *LaxTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed
	return nil
}

// recordEnvelope extracts identity and timestamp from a raw record body.
type recordEnvelope struct {
	ID        string  `json:"id"`
	UpdatedAt LaxTime `json:"updated_at"`
}

// DecodeRecord builds a Record from a raw JSON body.
func DecodeRecord(raw json.RawMessage) (Record, error) {
	var env recordEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Record{}, fmt.Errorf("failed to decode record envelope: %w", err)
	}
	if env.ID == "" {
		return Record{}, fmt.Errorf("record has no id")
	}
	return Record{ID: env.ID, UpdatedAt: env.UpdatedAt.Time, Fields: raw}, nil
}
