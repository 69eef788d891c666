// Package store provides the embedded SQLite replica that holds every stride
// record.
//
// The database runs in embedded mode using ncruces/go-sqlite3 with WAL for
// concurrent reads during writes. All mutations go through the repositories
// in internal/repo (or through a transactional scope handed out by WithTx for
// the sync engine); the store itself only knows SQL.
//
// Schema:
//   - goals, milestones, tasks, steps: one table per record kind, each with a
//     combined status column encoded by internal/status
//   - sync_state: one row per owner holding the delta-pull cursor
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection with stride-specific functionality.
type DB struct {
	conn     *sql.DB
	path     string
	notifier *Notifier
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads. The
// caller must call Close when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:     conn,
		path:     path,
		notifier: newNotifier(),
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Notifier returns the post-commit change notifier for this database.
func (db *DB) Notifier() *Notifier {
	return db.notifier
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	db.notifier.close()

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		priority INTEGER NOT NULL DEFAULT 0,
		due_at TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		order_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS milestones (
		id TEXT PRIMARY KEY,
		goal_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		order_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (goal_id) REFERENCES goals(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS steps (
		id TEXT PRIMARY KEY,
		milestone_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		order_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (milestone_id) REFERENCES milestones(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		goal_id TEXT,
		title TEXT NOT NULL,
		notes TEXT,
		priority INTEGER NOT NULL DEFAULT 0,
		due_at TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		focus INTEGER NOT NULL DEFAULT 0,
		location TEXT,
		estimated_minutes INTEGER NOT NULL DEFAULT 0,
		order_index INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (goal_id) REFERENCES goals(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		owner_id TEXT PRIMARY KEY,
		last_pull_at TEXT,
		last_full_sync_at TEXT,
		cycles INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_goals_owner ON goals(owner_id);
	CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
	CREATE INDEX IF NOT EXISTS idx_milestones_goal ON milestones(goal_id);
	CREATE INDEX IF NOT EXISTS idx_milestones_status ON milestones(status);
	CREATE INDEX IF NOT EXISTS idx_steps_milestone ON steps(milestone_id);
	CREATE INDEX IF NOT EXISTS idx_steps_status ON steps(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_goal ON tasks(goal_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_focus ON tasks(owner_id, focus);

	-- Composite index for focus candidate queries
	CREATE INDEX IF NOT EXISTS idx_tasks_candidates
	    ON tasks(owner_id, completed, status, priority);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// WithTx runs fn inside a transaction, committing on nil and rolling back on
// error. This is the transactional boundary handed to the sync engine so that
// a push confirmation, identity swap, and reference repointing land atomically
// or not at all.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PullCursor returns the last successful delta-pull time for the owner.
// A zero time means no pull has succeeded yet (callers fall back to full sync).
func (db *DB) PullCursor(ctx context.Context, ownerID string) (time.Time, error) {
	var raw sql.NullString
	err := db.conn.QueryRowContext(ctx,
		"SELECT last_pull_at FROM sync_state WHERE owner_id = ?", ownerID).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read pull cursor: %w", err)
	}
	if !raw.Valid {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// SetPullCursor records a successful pull at the given time.
func (db *DB) SetPullCursor(ctx context.Context, ownerID string, t time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO sync_state (owner_id, last_pull_at, cycles) VALUES (?, ?, 1)
	ON CONFLICT(owner_id) DO UPDATE SET
		last_pull_at = excluded.last_pull_at,
		cycles = cycles + 1
	`, ownerID, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to set pull cursor: %w", err)
	}
	return nil
}

// MarkFullSync records a completed full sync for the owner.
func (db *DB) MarkFullSync(ctx context.Context, ownerID string, t time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO sync_state (owner_id, last_pull_at, last_full_sync_at, cycles) VALUES (?, ?, ?, 1)
	ON CONFLICT(owner_id) DO UPDATE SET
		last_pull_at = excluded.last_pull_at,
		last_full_sync_at = excluded.last_full_sync_at,
		cycles = cycles + 1
	`, ownerID, t.UTC().Format(time.RFC3339Nano), t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to mark full sync: %w", err)
	}
	return nil
}

// timeLayout is the storage format for every timestamp column.
const timeLayout = time.RFC3339Nano

// parseStoredTime parses a stored timestamp, tolerating the plain RFC3339
// form. A malformed value yields the zero time rather than an error.
func parseStoredTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// stringToNull converts an empty string to SQL NULL so optional foreign keys
// stay enforceable.
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
