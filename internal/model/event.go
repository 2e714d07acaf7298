package model

import (
	"time"
	"unicode/utf8"
)

// EventKind is one entry of the fixed funnel vocabulary.
//
// The values are persisted as-is in events.event_kind, so renaming a constant's
// VALUE breaks historical reports. Add new kinds; don't rename old ones.
type EventKind string

const (
	EventStart             EventKind = "start"
	EventImageReceived     EventKind = "image_received"
	EventLimitMonthReached EventKind = "limit_month_reached"
	EventSubRequired       EventKind = "sub_required"
	EventPaidRequired      EventKind = "paid_required"
	EventRemoveBgStart     EventKind = "remove_bg_start"
	EventRemoveBgSuccess   EventKind = "remove_bg_success"
	EventRemoveBgError     EventKind = "remove_bg_error"
	EventSubOK             EventKind = "sub_ok"
	EventSubFail           EventKind = "sub_fail"
	EventCheckSubError     EventKind = "check_sub_error"
	EventTariffsShown      EventKind = "tariffs_shown"
	EventTariffsClicked    EventKind = "tariffs_clicked"
)

// MaxEventMetaLength caps the free-text diagnostic stored with an event.
// Raw error bodies from external services can be arbitrarily large.
const MaxEventMetaLength = 800

// Event is an immutable row of the analytics ledger.
//
// UserID is a pointer because some events are system-level and have no user.
// Day duplicates Timestamp as a "YYYY-MM-DD" string so range queries are a
// cheap indexed string comparison.
type Event struct {
	ID        int64     `json:"id"                db:"id"`
	Timestamp time.Time `json:"ts"                db:"ts"`
	Day       string    `json:"day"               db:"day"`
	UserID    *int64    `json:"userId,omitempty"  db:"user_id"`
	Kind      EventKind `json:"kind"              db:"event_kind"`
	Meta      string    `json:"meta,omitempty"    db:"meta"`
}

// ReportKinds returns the event kinds shown in operator reports, in display order.
// A fresh slice is returned on every call so callers may modify it.
func ReportKinds() []EventKind {
	return []EventKind{
		EventStart,
		EventImageReceived,
		EventRemoveBgStart,
		EventRemoveBgSuccess,
		EventRemoveBgError,
		EventLimitMonthReached,
		EventSubRequired,
		EventSubOK,
		EventSubFail,
		EventPaidRequired,
		EventCheckSubError,
		EventTariffsShown,
		EventTariffsClicked,
	}
}

// TruncateMeta shortens s to at most MaxEventMetaLength runes.
// It counts runes, not bytes, so multi-byte text is never cut mid-character.
func TruncateMeta(s string) string {
	if utf8.RuneCountInString(s) <= MaxEventMetaLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxEventMetaLength])
}
