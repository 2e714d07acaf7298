package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cutout-bot/internal/model"
)

// newTestDB connects to TEST_DATABASE_URL and empties every table.
// The tests are skipped when the variable is unset so `go test ./...` works
// on a laptop without Postgres.
func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres tests")
	}

	ctx := context.Background()
	db, err := New(ctx, url, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.pool.Exec(ctx, `TRUNCATE users, usage_monthly, events, plans RESTART IDENTITY`)
	require.NoError(t, err)
	return db
}

func TestPostgres_UpsertUserKeepsFirstSeen(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	db := newTestDB(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, db.UpsertUser(ctx, 1))
	now = now.Add(48 * time.Hour)
	require.NoError(t, db.UpsertUser(ctx, 1))

	var first, last time.Time
	require.NoError(t, db.pool.QueryRow(ctx,
		`SELECT first_seen, last_seen FROM users WHERE user_id = 1`).Scan(&first, &last))
	assert.Equal(t, 48*time.Hour, last.Sub(first))
}

func TestPostgres_ConcurrentIncrement(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const k = 50
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, db.IncrementMonthlyUsage(ctx, 9, "2026-03"))
		}()
	}
	wg.Wait()

	used, err := db.GetMonthlyUsage(ctx, 9, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, k, used)

	none, err := db.GetMonthlyUsage(ctx, 9, "2026-04")
	require.NoError(t, err)
	assert.Equal(t, 0, none)
}

func TestPostgres_EventCounts(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	db := newTestDB(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	uid := int64(3)

	require.NoError(t, db.AppendEvent(ctx, model.EventStart, &uid, ""))
	require.NoError(t, db.AppendEvent(ctx, model.EventStart, nil, "system"))
	now = now.AddDate(0, 0, 5)
	require.NoError(t, db.AppendEvent(ctx, model.EventStart, &uid, ""))

	counts, err := db.QueryEventCounts(ctx, "2026-03-01", "2026-03-02",
		[]model.EventKind{model.EventStart, model.EventSubOK})
	require.NoError(t, err)
	assert.Equal(t, map[model.EventKind]int{model.EventStart: 2, model.EventSubOK: 0}, counts)
}

func TestPostgres_EnsureDefaultPlansTwice(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.EnsureDefaultPlans(ctx))
	require.NoError(t, db.EnsureDefaultPlans(ctx))

	plans, err := db.ListPlans(ctx, true)
	require.NoError(t, err)
	assert.Len(t, plans, len(model.DefaultPlans()))
	assert.Equal(t, "p1", plans[0].Code)
}
