// Package daemon runs background synchronization: periodic sync cycles plus
// change-triggered wakeups from watching the database file.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SyncRunner is the slice of the sync orchestrator the daemon drives.
// Redundant wakeups are cheap: the runner coalesces concurrent calls.
type SyncRunner interface {
	RunSync(ctx context.Context) error
}

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often a sync cycle runs regardless of local
	// activity, picking up changes other devices pushed.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after a database change before
	// waking the syncer, batching rapid local edits together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon watches the database file and keeps the syncer running.
type Daemon struct {
	runner SyncRunner
	dbPath string
	config *Config

	watcher *fsnotify.Watcher

	mu           sync.Mutex
	lastChange   time.Time
	lastSyncDone time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon watching the directory of dbPath. Use Start to begin.
func New(runner SyncRunner, dbPath string, config *Config) (*Daemon, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		runner:  runner,
		dbPath:  dbPath,
		config:  config,
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled. An initial sync runs first,
// then file events and the interval ticker trigger further cycles.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.runSync(ctx)

	// Watch the parent directory: SQLite rewrites the WAL and journal
	// files next to the database, and watching the file itself breaks on
	// atomic replaces.
	dir := filepath.Dir(d.dbPath)
	if err := d.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	d.config.Logger.Printf("Watching: %s", dir)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.tick(ctx)

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchFileEvents records database change timestamps for the debounce loop.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}
			if !d.isDatabaseFile(event.Name) {
				continue
			}

			d.mu.Lock()
			d.lastChange = time.Now()
			d.mu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// isDatabaseFile matches the database file and its WAL/journal siblings.
func (d *Daemon) isDatabaseFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), filepath.Base(d.dbPath))
}

// tick drives both the debounce loop and the periodic interval.
func (d *Daemon) tick(ctx context.Context) {
	defer d.wg.Done()

	debounce := time.NewTicker(d.config.DebounceInterval)
	defer debounce.Stop()
	interval := time.NewTicker(d.config.SyncInterval)
	defer interval.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-debounce.C:
			if d.changePending() {
				d.runSync(ctx)
			}

		case <-interval.C:
			d.runSync(ctx)
		}
	}
}

// changePending reports whether a settled database change is waiting.
// Changes observed before the last sync finished are the syncer's own writes
// and are discarded, which keeps sync from waking itself in a loop.
func (d *Daemon) changePending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastChange.IsZero() {
		return false
	}
	if !d.lastChange.After(d.lastSyncDone) {
		d.lastChange = time.Time{}
		return false
	}
	if time.Since(d.lastChange) < d.config.DebounceInterval {
		return false
	}
	d.lastChange = time.Time{}
	return true
}

func (d *Daemon) runSync(ctx context.Context) {
	if err := d.runner.RunSync(ctx); err != nil && ctx.Err() == nil {
		d.config.Logger.Printf("Sync error: %v", err)
	}

	d.mu.Lock()
	d.lastSyncDone = time.Now()
	d.mu.Unlock()
}
