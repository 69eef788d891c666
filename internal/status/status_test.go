package status

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	reps := []Replication{PendingCreate, PendingUpdate, PendingDelete, Synced}
	lifes := []Lifecycle{NotStarted, InProgress, Completed}

	for _, r := range reps {
		for _, l := range lifes {
			raw := Encode(r, l)
			gotR, gotL := Decode(raw)

			if gotR != r {
				t.Errorf("Encode(%s, %s) = %q: decoded replication %s, want %s", r, l, raw, gotR, r)
			}

			wantL := l
			if r == PendingDelete || r == Synced {
				// Bare tokens drop lifecycle; it lives in business fields.
				wantL = NotStarted
			}
			if gotL != wantL {
				t.Errorf("Encode(%s, %s) = %q: decoded lifecycle %s, want %s", r, l, raw, gotL, wantL)
			}
		}
	}
}

func TestEncodePendingCarriesLifecycle(t *testing.T) {
	if got := Encode(PendingCreate, Completed); got != "pending_create:completed" {
		t.Errorf("Encode(PendingCreate, Completed) = %q, want pending_create:completed", got)
	}
	if got := Encode(PendingUpdate, InProgress); got != "pending_update:in_progress" {
		t.Errorf("Encode(PendingUpdate, InProgress) = %q, want pending_update:in_progress", got)
	}
}

func TestEncodeBareTokens(t *testing.T) {
	if got := Encode(Synced, Completed); got != "synced" {
		t.Errorf("Encode(Synced, Completed) = %q, want synced", got)
	}
	if got := Encode(PendingDelete, InProgress); got != "pending_delete" {
		t.Errorf("Encode(PendingDelete, InProgress) = %q, want pending_delete", got)
	}
}

func TestDecodeDefensive(t *testing.T) {
	cases := []string{
		"",
		"garbage",
		"pending",
		"synced:bogus:extra",
		"deleted:completed",
	}
	for _, raw := range cases {
		r, l := Decode(raw)
		if raw == "synced:bogus:extra" {
			// Known replication token with junk suffix: keep the token,
			// default the lifecycle.
			if r != Synced || l != NotStarted {
				t.Errorf("Decode(%q) = (%s, %s), want (synced, not_started)", raw, r, l)
			}
			continue
		}
		if r != Synced || l != NotStarted {
			t.Errorf("Decode(%q) = (%s, %s), want (synced, not_started)", raw, r, l)
		}
	}
}

func TestDecodeUnknownLifecycleSuffix(t *testing.T) {
	r, l := Decode("pending_create:launched")
	if r != PendingCreate {
		t.Errorf("replication = %s, want pending_create", r)
	}
	if l != NotStarted {
		t.Errorf("lifecycle = %s, want not_started", l)
	}
}

func TestTouchNeverDowngradesPendingCreate(t *testing.T) {
	if got := Touch(PendingCreate); got != PendingCreate {
		t.Errorf("Touch(PendingCreate) = %s, want pending_create", got)
	}
	if got := Touch(Synced); got != PendingUpdate {
		t.Errorf("Touch(Synced) = %s, want pending_update", got)
	}
	if got := Touch(PendingUpdate); got != PendingUpdate {
		t.Errorf("Touch(PendingUpdate) = %s, want pending_update", got)
	}
}

func TestTouchEncodeKeepsPendingCreate(t *testing.T) {
	// A lifecycle-only change on an unsynced record must not produce an
	// update status; the remote has no row to update.
	r, _ := Decode("pending_create:not_started")
	raw := Encode(Touch(r), Completed)
	if raw != "pending_create:completed" {
		t.Errorf("re-encoded status = %q, want pending_create:completed", raw)
	}
}

func TestPending(t *testing.T) {
	if Synced.Pending() {
		t.Error("synced should not be pending")
	}
	for _, r := range []Replication{PendingCreate, PendingUpdate, PendingDelete} {
		if !r.Pending() {
			t.Errorf("%s should be pending", r)
		}
	}
}
