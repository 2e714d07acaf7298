package model

import "time"

// MonthlyUsage counts successful background removals for one user in one
// calendar month.
//
// INVARIANTS:
//   - at most one row per (UserID, Month)
//   - Used starts at 0 when no row exists and never decreases within a month
//   - only the image orchestrator's post-success step increments it
type MonthlyUsage struct {
	UserID    int64     `json:"userId"    db:"user_id"`
	Month     string    `json:"month"     db:"month"` // "YYYY-MM", UTC
	Used      int       `json:"used"      db:"used"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Key layouts for the month and day columns. Both are always rendered in UTC
// so that a user near midnight doesn't straddle two months depending on where
// the server happens to run.
const (
	MonthLayout = "2006-01"
	DayLayout   = "2006-01-02"
)

// MonthKey returns the "YYYY-MM" usage bucket that t falls into.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// DayKey returns the "YYYY-MM-DD" calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}
