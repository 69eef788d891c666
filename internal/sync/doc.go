// Package sync drives replication between the local store and the remote
// backend.
//
// A sync cycle has two phases. The push phase walks every record whose
// replication state is not synced, in dependency order (goals, milestones,
// tasks, steps — parents before the children that reference them), and calls
// the matching remote operation:
//
//   - pending_create: remote create, then identity reconciliation swapping
//     the locally-generated identifier for the server-assigned one and
//     repointing every referencing record in the same transaction
//   - pending_update: remote update with the local update timestamp as a
//     precondition; a conflict response means the server kept a newer
//     version, which then overwrites the local record entirely
//   - pending_delete: remote delete (already-gone counts as success), then
//     permanent local destruction including strictly-owned children
//
// The pull phase then applies remote changes: a full pull upserts everything
// the server has (remote wins unconditionally — the recovery path), a delta
// pull applies changed/deleted sets since the last successful pull cursor.
//
// Failures are caught per record. A timed-out push of one task leaves that
// task pending and the batch moves on; the record is retried next cycle. A
// record either completes its transition in one local transaction or is left
// exactly as it was.
//
// At most one cycle runs at a time. A request arriving mid-cycle coalesces
// into a single follow-up run, so redundant callers cost O(1) extra work.
//
// Known limitation: create delivery is at-least-once. If the server commits
// a create but the response is lost, the retry next cycle creates a second
// remote row. Deduplicating requires a server-side idempotency key, which
// the backend does not currently offer.
package sync
