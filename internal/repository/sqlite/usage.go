package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/repository"
)

var _ repository.UsageRepository = (*DB)(nil)

// GetMonthlyUsage returns how many images userID had processed in month.
// A missing row is not an error: it means nothing was used yet.
func (db *DB) GetMonthlyUsage(ctx context.Context, userID int64, month string) (int, error) {
	var used int
	err := db.conn.QueryRowContext(ctx,
		`SELECT used FROM usage_monthly WHERE user_id = ? AND month = ?`,
		userID, month,
	).Scan(&used)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, apperror.Unavailable("sqlite: getting monthly usage", err)
	}
	return used, nil
}

// IncrementMonthlyUsage is the create-or-increment primitive.
//
// WHY ONE STATEMENT?
// A read-then-write ("SELECT used; UPDATE used = used_read + 1") loses updates
// when two requests for the same user race: both read 3, both write 4.
// `used = used + 1` inside ON CONFLICT is evaluated by SQLite against the row
// as it is at write time, so each call adds exactly one.
func (db *DB) IncrementMonthlyUsage(ctx context.Context, userID int64, month string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO usage_monthly (user_id, month, used, updated_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(user_id, month)
		 DO UPDATE SET used = used + 1, updated_at = excluded.updated_at`,
		userID, month, db.now().UTC(),
	)
	if err != nil {
		return apperror.Unavailable("sqlite: incrementing monthly usage", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
