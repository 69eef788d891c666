package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/strideapp/stride/internal/remote"
	"github.com/strideapp/stride/internal/store"
)

// Mode selects how a cycle pulls and reports.
type Mode int

const (
	// Silent is the background mode: delta pull, failures only logged.
	Silent Mode = iota

	// Full is the user-triggered recovery mode: pull everything, remote
	// wins unconditionally, and the summary surfaces failures.
	Full
)

func (m Mode) String() string {
	if m == Full {
		return "full"
	}
	return "silent"
}

// Summary reports what one sync run did.
type Summary struct {
	Mode      Mode
	Pushed    int
	Pulled    int
	Deleted   int
	Conflicts int
	Failures  int

	// FirstError is the first per-record failure, kept for the summary a
	// full sync surfaces. Silent cycles only log it.
	FirstError error

	Started  time.Time
	Finished time.Time
}

func (s *Summary) fail(err error) {
	s.Failures++
	if s.FirstError == nil {
		s.FirstError = err
	}
}

// runState is the single-flight guard's explicit state machine.
type runState int

const (
	idle runState = iota
	running
	runningWithPending
)

// Syncer orchestrates push and pull cycles for one owner.
type Syncer struct {
	db      *store.DB
	remote  remote.Store
	ownerID string
	logger  *log.Logger
	kinds   []kindSync

	onComplete func(Summary)

	mu          sync.Mutex
	state       runState
	pendingMode Mode
	done        chan struct{}
	lastSummary Summary
	lastErr     error
}

// New creates a Syncer. If logger is nil, a default logger writing to stderr
// is used.
func New(db *store.DB, rs remote.Store, ownerID string, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Syncer{
		db:      db,
		remote:  rs,
		ownerID: ownerID,
		logger:  logger,
		kinds:   []kindSync{goalSync{}, milestoneSync{}, taskSync{}, stepSync{}},
	}
}

// NotifyComplete registers fn to run after every finished cycle with that
// cycle's summary. The dashboard bridge uses this to broadcast sync results.
// Must be called before the first Run.
func (s *Syncer) NotifyComplete(fn func(Summary)) {
	s.onComplete = fn
}

// RunSync is the no-argument entry point for background-wake collaborators.
// Safe to call redundantly: concurrent calls coalesce.
func (s *Syncer) RunSync(ctx context.Context) error {
	_, err := s.Run(ctx, Silent)
	return err
}

// Run executes one sync cycle in the given mode.
//
// At most one cycle is active. A call arriving during an active cycle joins
// its completion and is additionally queued as exactly one follow-up cycle;
// further arrivals collapse into that same follow-up. A queued Full request
// upgrades the follow-up's mode.
func (s *Syncer) Run(ctx context.Context, mode Mode) (Summary, error) {
	s.mu.Lock()
	if s.state != idle {
		s.state = runningWithPending
		if mode == Full {
			s.pendingMode = Full
		}
		done := s.done
		s.mu.Unlock()

		select {
		case <-done:
			s.mu.Lock()
			sum, err := s.lastSummary, s.lastErr
			s.mu.Unlock()
			return sum, err
		case <-ctx.Done():
			return Summary{}, ctx.Err()
		}
	}
	s.state = running
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	for {
		sum, err := s.cycle(ctx, mode)

		s.mu.Lock()
		s.lastSummary, s.lastErr = sum, err
		if s.state == runningWithPending && ctx.Err() == nil {
			s.state = running
			mode = s.pendingMode
			s.pendingMode = Silent
			s.mu.Unlock()
			continue
		}
		s.state = idle
		s.pendingMode = Silent
		close(done)
		s.mu.Unlock()
		return sum, err
	}
}

// cycle runs one push+pull pass.
func (s *Syncer) cycle(ctx context.Context, mode Mode) (Summary, error) {
	sum := Summary{Mode: mode, Started: time.Now()}
	s.logger.Printf("Starting %s sync for owner %s", mode, s.ownerID)

	s.push(ctx, &sum)

	if err := s.pull(ctx, mode, &sum); err != nil {
		sum.fail(err)
	}

	sum.Finished = time.Now()
	s.logger.Printf("Sync complete: pushed=%d pulled=%d deleted=%d conflicts=%d failures=%d in %v",
		sum.Pushed, sum.Pulled, sum.Deleted, sum.Conflicts, sum.Failures,
		sum.Finished.Sub(sum.Started).Round(time.Millisecond))

	if s.onComplete != nil {
		s.onComplete(sum)
	}

	if ctx.Err() != nil {
		return sum, ctx.Err()
	}
	if mode == Full && sum.Failures > 0 {
		return sum, fmt.Errorf("full sync completed with %d failures (first: %w)", sum.Failures, sum.FirstError)
	}
	return sum, nil
}

// push walks every kind in dependency order and pushes its pending records.
// Failures are per-record: the batch always continues.
func (s *Syncer) push(ctx context.Context, sum *Summary) {
	for _, k := range s.kinds {
		if ctx.Err() != nil {
			return
		}
		k.push(ctx, s, sum)
	}
}

// pull applies remote changes. Full mode (or a missing cursor) lists
// everything; otherwise a delta since the cursor is applied.
func (s *Syncer) pull(ctx context.Context, mode Mode, sum *Summary) error {
	cursor, err := s.db.PullCursor(ctx, s.ownerID)
	if err != nil {
		return err
	}

	pullStart := time.Now()
	full := mode == Full || cursor.IsZero()

	for _, k := range s.kinds {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if full {
			s.pullAll(ctx, k, sum)
		} else {
			s.pullDelta(ctx, k, cursor, sum)
		}
	}

	// Advance the cursor only when every kind pulled without failure, so a
	// half-applied delta is replayed next cycle. Replays are safe: upsert
	// and destroy are both idempotent.
	if sum.FirstError != nil {
		return nil
	}
	if mode == Full {
		return s.db.MarkFullSync(ctx, s.ownerID, pullStart)
	}
	return s.db.SetPullCursor(ctx, s.ownerID, pullStart)
}

func (s *Syncer) pullAll(ctx context.Context, k kindSync, sum *Summary) {
	records, err := s.remote.ListAll(ctx, k.kind(), s.ownerID)
	if err != nil {
		s.logger.Printf("WARNING: failed to list %ss: %v", k.kind(), err)
		sum.fail(err)
		return
	}

	for _, rec := range records {
		if err := k.applyRemote(ctx, s, rec); err != nil {
			s.logger.Printf("WARNING: failed to apply %s %s: %v", k.kind(), rec.ID, err)
			sum.fail(err)
			continue
		}
		sum.Pulled++
	}
}

func (s *Syncer) pullDelta(ctx context.Context, k kindSync, since time.Time, sum *Summary) {
	changes, err := s.remote.ListChanges(ctx, k.kind(), s.ownerID, since)
	if err != nil {
		s.logger.Printf("WARNING: failed to list %s changes: %v", k.kind(), err)
		sum.fail(err)
		return
	}

	for _, rec := range changes.Changed {
		if err := k.applyRemote(ctx, s, rec); err != nil {
			s.logger.Printf("WARNING: failed to apply %s %s: %v", k.kind(), rec.ID, err)
			sum.fail(err)
			continue
		}
		sum.Pulled++
	}

	// Remote deletes only ever target identifiers the remote side itself
	// issued, so destroying by exact ID can never hit a locally-created
	// record still waiting for its first push.
	for _, id := range changes.Deleted {
		if err := k.destroyLocal(ctx, s, id); err != nil {
			s.logger.Printf("WARNING: failed to destroy %s %s: %v", k.kind(), id, err)
			sum.fail(err)
			continue
		}
		sum.Deleted++
	}
}
