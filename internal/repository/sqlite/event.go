package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/repository"
)

var _ repository.EventRepository = (*DB)(nil)

// AppendEvent inserts one ledger row. The ledger is append-only: nothing in
// this package updates or deletes from events.
func (db *DB) AppendEvent(ctx context.Context, kind model.EventKind, userID *int64, meta string) error {
	now := db.now().UTC()

	// NULL-able columns: a nil *int64 and an empty meta are stored as NULL.
	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}
	var m sql.NullString
	if meta != "" {
		m = sql.NullString{String: model.TruncateMeta(meta), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO events (ts, day, user_id, event_kind, meta) VALUES (?, ?, ?, ?, ?)`,
		now, model.DayKey(now), uid, string(kind), m,
	)
	if err != nil {
		return apperror.Unavailable("sqlite: appending event", err)
	}
	return nil
}

// QueryEventCounts counts events per kind over an inclusive day range.
//
// Day keys are "YYYY-MM-DD", which sort lexicographically in date order, so
// BETWEEN on the TEXT column is a correct (and indexed) range scan.
//
// DYNAMIC IN (...) LIST:
// Only the "?" placeholders are generated; the values still go through the
// driver as parameters, so this is not string-built SQL.
func (db *DB) QueryEventCounts(ctx context.Context, dayFrom, dayTo string, kinds []model.EventKind) (map[model.EventKind]int, error) {
	counts := make(map[model.EventKind]int, len(kinds))
	if len(kinds) == 0 {
		return counts, nil
	}

	args := make([]any, 0, len(kinds)+2)
	args = append(args, dayFrom, dayTo)
	for _, k := range kinds {
		counts[k] = 0
		args = append(args, string(k))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")

	rows, err := db.conn.QueryContext(ctx,
		`SELECT event_kind, COUNT(*)
		 FROM events
		 WHERE day BETWEEN ? AND ?
		   AND event_kind IN (`+placeholders+`)
		 GROUP BY event_kind`,
		args...,
	)
	if err != nil {
		return nil, apperror.Unavailable("sqlite: counting events", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, apperror.Unavailable("sqlite: scanning event count", err)
		}
		counts[model.EventKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable("sqlite: iterating event counts", err)
	}

	return counts, nil
}

// ListEvents returns the ledger rows for userID in insertion order. Only
// tests call it, to assert on what a flow recorded; the operator API serves
// aggregates and never a single user's history.
func (db *DB) ListEvents(ctx context.Context, userID int64) ([]model.Event, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, ts, day, user_id, event_kind, meta
		 FROM events
		 WHERE user_id = ?
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, apperror.Unavailable("sqlite: listing events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var (
			e    model.Event
			uid  sql.NullInt64
			meta sql.NullString
			kind string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Day, &uid, &kind, &meta); err != nil {
			return nil, apperror.Unavailable("sqlite: scanning event row", err)
		}
		if uid.Valid {
			id := uid.Int64
			e.UserID = &id
		}
		e.Kind = model.EventKind(kind)
		e.Meta = meta.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable("sqlite: iterating events", err)
	}
	return events, nil
}
