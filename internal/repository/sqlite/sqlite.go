// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// The bot is a single process with a handful of small tables. An embedded
// database means no server to run: one file, backed up by copying it.
// For multi-process deployments see the postgres package, which implements
// the same contracts.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of the SQLite C code, so no C
// compiler needed, cross-compiles like any other Go program.
//
// CONCURRENCY MODEL:
// Many Telegram updates are handled at once, so several goroutines hit the
// store concurrently. SQLite allows exactly one writer at a time; we make that
// explicit by capping the pool at ONE connection. database/sql then queues
// callers for us, and every mutation is a single statement (or a short
// transaction that never waits on network I/O), so the queue drains fast.
// The atomicity of "create-or-increment" comes from the SQL statement itself,
// not from this cap.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// BLANK IMPORT:
	// The sqlite package's init() registers a database/sql driver named "sqlite".
	_ "modernc.org/sqlite"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/repository"
)

// compile-time check that *DB implements the full store contract
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Option customises a DB at construction time.
type Option func(*DB)

// WithClock replaces time.Now. Tests use it to pin the current month and day.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/bot.db"  → file-based database (persistent)
//   - ":memory:"     → in-memory database (great for tests, lost on close)
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: SQLite has a single writer anyway, and ":memory:"
	// databases are per-connection, so a bigger pool would silently give
	// different goroutines different (empty) databases.
	conn.SetMaxOpenConns(1)

	// Ping verifies the connection actually works.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// If another process (a backup tool, the sqlite3 CLI) holds the lock,
	// wait up to 5s instead of failing with SQLITE_BUSY straight away.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return apperror.Unavailable("sqlite: ping", err)
	}
	return nil
}

// migrate creates the schema.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so this runs on every boot.
// Timestamps are DATETIME so the driver hands them back as time.Time.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			user_id    INTEGER PRIMARY KEY,
			first_seen DATETIME NOT NULL,
			last_seen  DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// PRIMARY KEY (user_id, month) is what makes ON CONFLICT in
	// IncrementMonthlyUsage target the right row.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS usage_monthly (
			user_id    INTEGER NOT NULL,
			month      TEXT NOT NULL,
			used       INTEGER NOT NULL DEFAULT 0 CHECK (used >= 0),
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, month)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating usage_monthly table: %w", err)
	}

	// No foreign key to users: system events have no user, and the ledger must
	// accept an event even if the user upsert for the same request failed.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			ts         DATETIME NOT NULL,
			day        TEXT NOT NULL,
			user_id    INTEGER,
			event_kind TEXT NOT NULL,
			meta       TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_day_kind ON events(day, event_kind);
	`)
	if err != nil {
		return fmt.Errorf("creating events table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS plans (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			code            TEXT NOT NULL UNIQUE,
			title           TEXT NOT NULL,
			price           INTEGER NOT NULL,
			credits         INTEGER NOT NULL,
			is_subscription INTEGER NOT NULL DEFAULT 0,
			is_active       INTEGER NOT NULL DEFAULT 1,
			created_at      DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating plans table: %w", err)
	}

	return nil
}
