// Package postgres implements the repository interfaces on PostgreSQL via pgx.
//
// Use it instead of the sqlite package when more than one bot process shares
// the same counters. The SQL is the same shape as the sqlite backend; the
// differences are $n placeholders, BIGSERIAL ids and a real connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Option customises a DB at construction time.
type Option func(*DB)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// New connects to databaseURL and creates the schema if needed.
func New(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return apperror.Unavailable("postgres: ping", err)
	}
	return nil
}

func (db *DB) migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS users (
			user_id    BIGINT PRIMARY KEY,
			first_seen TIMESTAMPTZ NOT NULL,
			last_seen  TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS usage_monthly (
			user_id    BIGINT NOT NULL,
			month      TEXT NOT NULL,
			used       INTEGER NOT NULL DEFAULT 0 CHECK (used >= 0),
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, month)
		);
		CREATE TABLE IF NOT EXISTS events (
			id         BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			day        TEXT NOT NULL,
			user_id    BIGINT,
			event_kind TEXT NOT NULL,
			meta       TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_day_kind ON events(day, event_kind);
		CREATE TABLE IF NOT EXISTS plans (
			id              BIGSERIAL PRIMARY KEY,
			code            TEXT NOT NULL UNIQUE,
			title           TEXT NOT NULL,
			price           INTEGER NOT NULL,
			credits         INTEGER NOT NULL,
			is_subscription BOOLEAN NOT NULL DEFAULT FALSE,
			is_active       BOOLEAN NOT NULL DEFAULT TRUE,
			created_at      TIMESTAMPTZ NOT NULL
		);
	`
	_, err := db.pool.Exec(ctx, schema)
	return err
}

// UpsertUser inserts the user or bumps last_seen. first_seen is only written
// by the INSERT branch.
func (db *DB) UpsertUser(ctx context.Context, userID int64) error {
	now := db.now().UTC()
	const q = `
		INSERT INTO users (user_id, first_seen, last_seen)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO UPDATE SET last_seen = EXCLUDED.last_seen
	`
	if _, err := db.pool.Exec(ctx, q, userID, now); err != nil {
		return apperror.Unavailable("postgres: upserting user", err)
	}
	return nil
}

func (db *DB) GetMonthlyUsage(ctx context.Context, userID int64, month string) (int, error) {
	var used int
	err := db.pool.QueryRow(ctx,
		`SELECT used FROM usage_monthly WHERE user_id = $1 AND month = $2`,
		userID, month,
	).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, apperror.Unavailable("postgres: getting monthly usage", err)
	}
	return used, nil
}

// IncrementMonthlyUsage relies on the row lock Postgres takes inside
// ON CONFLICT DO UPDATE, so concurrent increments serialise per key.
func (db *DB) IncrementMonthlyUsage(ctx context.Context, userID int64, month string) error {
	const q = `
		INSERT INTO usage_monthly (user_id, month, used, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (user_id, month)
		DO UPDATE SET used = usage_monthly.used + 1, updated_at = EXCLUDED.updated_at
	`
	if _, err := db.pool.Exec(ctx, q, userID, month, db.now().UTC()); err != nil {
		return apperror.Unavailable("postgres: incrementing monthly usage", err)
	}
	return nil
}

func (db *DB) AppendEvent(ctx context.Context, kind model.EventKind, userID *int64, meta string) error {
	now := db.now().UTC()
	var m *string
	if meta != "" {
		t := model.TruncateMeta(meta)
		m = &t
	}
	const q = `INSERT INTO events (ts, day, user_id, event_kind, meta) VALUES ($1, $2, $3, $4, $5)`
	if _, err := db.pool.Exec(ctx, q, now, model.DayKey(now), userID, string(kind), m); err != nil {
		return apperror.Unavailable("postgres: appending event", err)
	}
	return nil
}

func (db *DB) QueryEventCounts(ctx context.Context, dayFrom, dayTo string, kinds []model.EventKind) (map[model.EventKind]int, error) {
	counts := make(map[model.EventKind]int, len(kinds))
	if len(kinds) == 0 {
		return counts, nil
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		counts[k] = 0
		names[i] = string(k)
	}

	const q = `
		SELECT event_kind, COUNT(*)
		FROM events
		WHERE day BETWEEN $1 AND $2
		  AND event_kind = ANY($3)
		GROUP BY event_kind
	`
	rows, err := db.pool.Query(ctx, q, dayFrom, dayTo, names)
	if err != nil {
		return nil, apperror.Unavailable("postgres: counting events", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, apperror.Unavailable("postgres: scanning event count", err)
		}
		counts[model.EventKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable("postgres: iterating event counts", err)
	}
	return counts, nil
}

func (db *DB) ListPlans(ctx context.Context, activeOnly bool) ([]model.Plan, error) {
	const q = `
		SELECT id, code, title, price, credits, is_subscription, is_active, created_at
		FROM plans
		WHERE is_active OR NOT $1
		ORDER BY id
	`
	rows, err := db.pool.Query(ctx, q, activeOnly)
	if err != nil {
		return nil, apperror.Unavailable("postgres: listing plans", err)
	}
	defer rows.Close()

	plans := make([]model.Plan, 0, 4)
	for rows.Next() {
		var p model.Plan
		if err := rows.Scan(
			&p.ID, &p.Code, &p.Title, &p.Price, &p.Credits,
			&p.IsSubscription, &p.IsActive, &p.CreatedAt,
		); err != nil {
			return nil, apperror.Unavailable("postgres: scanning plan row", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable("postgres: iterating plans", err)
	}
	return plans, nil
}

// EnsureDefaultPlans seeds the catalog when it is empty. The table lock keeps
// two processes booting at once from both seeing zero rows.
func (db *DB) EnsureDefaultPlans(ctx context.Context) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return apperror.Unavailable("postgres: beginning plan seed", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `LOCK TABLE plans IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return apperror.Unavailable("postgres: locking plans", err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM plans`).Scan(&count); err != nil {
		return apperror.Unavailable("postgres: counting plans", err)
	}
	if count > 0 {
		return nil
	}

	now := db.now().UTC()
	batch := &pgx.Batch{}
	for _, p := range model.DefaultPlans() {
		batch.Queue(
			`INSERT INTO plans (code, title, price, credits, is_subscription, is_active, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (code) DO NOTHING`,
			p.Code, p.Title, p.Price, p.Credits, p.IsSubscription, p.IsActive, now,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperror.Unavailable("postgres: seeding plans", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.Unavailable("postgres: committing plan seed", err)
	}
	return nil
}
