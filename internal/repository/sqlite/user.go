package sqlite

import (
	"context"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// UpsertUser records an interaction from userID.
//
// INSERT ... ON CONFLICT DO UPDATE:
// A single statement handles both cases. first_seen is only written by the
// INSERT branch; the UPDATE branch touches last_seen alone, so first_seen is
// immutable after the first call. No read-then-write race is possible.
func (db *DB) UpsertUser(ctx context.Context, userID int64) error {
	now := db.now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (user_id, first_seen, last_seen)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET last_seen = excluded.last_seen`,
		userID, now, now,
	)
	if err != nil {
		return apperror.Unavailable("sqlite: upserting user", err)
	}
	return nil
}

// GetUser returns a user row. Not part of the service contracts; the tests use
// it to check first_seen / last_seen.
func (db *DB) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, first_seen, last_seen FROM users WHERE user_id = ?`,
		userID,
	).Scan(&u.ID, &u.FirstSeen, &u.LastSeen)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", formatID(userID))
		}
		return nil, apperror.Unavailable("sqlite: getting user", err)
	}
	return &u, nil
}
