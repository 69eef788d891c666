// Package status encodes and decodes the combined record status carried on
// every mutable stride record.
//
// A record's status has two independent dimensions: a replication state
// (does the remote store know about this record, and how) and a lifecycle
// state (how far along the record is in its domain life). The storage layer
// and the remote wire format collapse both into a single string of the form
// "replication[:lifecycle]". In memory the two are always kept as separate
// typed values; this package is the only place the combined form is parsed
// or produced.
package status

import "strings"

// Replication describes a record's synchronization state relative to the
// remote store.
type Replication string

const (
	// PendingCreate marks a record created locally that the remote store
	// has never seen.
	PendingCreate Replication = "pending_create"

	// PendingUpdate marks a record the remote store knows about but whose
	// local copy has unsynced field changes.
	PendingUpdate Replication = "pending_update"

	// PendingDelete marks a record deleted locally but not yet deleted
	// remotely. The local row is kept until the delete is confirmed.
	PendingDelete Replication = "pending_delete"

	// Synced marks a record identical on both sides.
	Synced Replication = "synced"
)

// Lifecycle describes a record's domain progress, independent of sync state.
type Lifecycle string

const (
	NotStarted Lifecycle = "not_started"
	InProgress Lifecycle = "in_progress"
	Completed  Lifecycle = "completed"
)

// Pending reports whether the replication state requires a push.
func (r Replication) Pending() bool {
	return r == PendingCreate || r == PendingUpdate || r == PendingDelete
}

// Valid reports whether r is one of the four known replication states.
func (r Replication) Valid() bool {
	switch r {
	case PendingCreate, PendingUpdate, PendingDelete, Synced:
		return true
	}
	return false
}

// Valid reports whether l is one of the three known lifecycle states.
func (l Lifecycle) Valid() bool {
	switch l {
	case NotStarted, InProgress, Completed:
		return true
	}
	return false
}

// Encode produces the combined status string for storage or the wire.
//
// Pending creates and updates always carry the lifecycle suffix so that a
// lifecycle change made between sync cycles is never lost. A pending delete
// has no lifecycle (a deleted record's lifecycle is irrelevant), and a synced
// record is stored as the bare token because its lifecycle already lives in
// the record's business fields.
func Encode(r Replication, l Lifecycle) string {
	if !r.Valid() {
		r = Synced
	}
	if !l.Valid() {
		l = NotStarted
	}
	switch r {
	case PendingCreate, PendingUpdate:
		return string(r) + ":" + string(l)
	default:
		return string(r)
	}
}

// Decode parses a combined status string into its two dimensions.
//
// Decoding is total: any string whose replication token is unrecognized is
// treated as a synced record with default lifecycle rather than an error, so
// a malformed row pulled from the remote can still be stored and displayed.
// An unrecognized lifecycle suffix likewise falls back to NotStarted.
func Decode(raw string) (Replication, Lifecycle) {
	rep, life, _ := strings.Cut(raw, ":")

	r := Replication(rep)
	if !r.Valid() {
		return Synced, NotStarted
	}

	l := Lifecycle(life)
	if !l.Valid() {
		l = NotStarted
	}
	if r == PendingDelete {
		// Lifecycle is meaningless for a deleted record.
		l = NotStarted
	}
	return r, l
}

// Touch returns the replication state a record should carry after a local
// field mutation. A record that was never pushed stays PendingCreate; calling
// the remote with an update for it would target a nonexistent row. Everything
// else becomes PendingUpdate. A PendingDelete record is never mutated, so
// Touch is not defined for it and callers must reject the write first.
func Touch(current Replication) Replication {
	if current == PendingCreate {
		return PendingCreate
	}
	return PendingUpdate
}
