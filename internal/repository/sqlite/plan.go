package sqlite

import (
	"context"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/repository"
)

var _ repository.PlanRepository = (*DB)(nil)

// ListPlans returns the catalog ordered by id (seed order).
func (db *DB) ListPlans(ctx context.Context, activeOnly bool) ([]model.Plan, error) {
	query := `SELECT id, code, title, price, credits, is_subscription, is_active, created_at
		 FROM plans`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, apperror.Unavailable("sqlite: listing plans", err)
	}
	defer rows.Close()

	plans := make([]model.Plan, 0, 4)
	for rows.Next() {
		var p model.Plan
		if err := rows.Scan(
			&p.ID, &p.Code, &p.Title, &p.Price, &p.Credits,
			&p.IsSubscription, &p.IsActive, &p.CreatedAt,
		); err != nil {
			return nil, apperror.Unavailable("sqlite: scanning plan row", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable("sqlite: iterating plans", err)
	}

	return plans, nil
}

// EnsureDefaultPlans seeds the built-in catalog on first boot.
//
// The count and the inserts share a transaction so two processes booting at
// once can't both see an empty table. ON CONFLICT(code) DO NOTHING is a second
// guard: even a racing seed can't duplicate a code or overwrite a row an
// operator edited.
func (db *DB) EnsureDefaultPlans(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Unavailable("sqlite: beginning plan seed", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM plans`).Scan(&count); err != nil {
		return apperror.Unavailable("sqlite: counting plans", err)
	}
	if count > 0 {
		return nil
	}

	now := db.now().UTC()
	for _, p := range model.DefaultPlans() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO plans (code, title, price, credits, is_subscription, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(code) DO NOTHING`,
			p.Code, p.Title, p.Price, p.Credits, p.IsSubscription, p.IsActive, now,
		)
		if err != nil {
			return apperror.Unavailable("sqlite: seeding plan "+p.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.Unavailable("sqlite: committing plan seed", err)
	}
	return nil
}
