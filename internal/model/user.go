// Package model defines the data structures used throughout the bot.
// In Go, we use structs to represent our data: plain values with no behaviour
// beyond a few small helpers. The storage layer fills them, the services read them.
package model

import "time"

// User is a person who has talked to the bot at least once.
//
// WHY ID int64 AND NO INTERNAL ID?
// The messaging platform issues the identifier (Telegram user IDs are 64-bit
// integers). We never generate our own: the platform ID is stable, unique and
// is what every other table keys on. Users are upserted on interaction and
// never deleted.
type User struct {
	ID        int64     `json:"id"        db:"user_id"`
	FirstSeen time.Time `json:"firstSeen" db:"first_seen"` // set once on insert
	LastSeen  time.Time `json:"lastSeen"  db:"last_seen"`  // bumped on every interaction
}
