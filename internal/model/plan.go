package model

import "time"

// Plan is a row of the tariff catalog.
//
// Plans are informational in this version: they're rendered to users and
// operators, but nothing charges for them and the quota engine never reads
// them. Price is in whole currency units (UAH), Credits is the number of
// images the plan grants (per month when IsSubscription is true).
type Plan struct {
	ID             int64     `json:"id"             db:"id"`
	Code           string    `json:"code"           db:"code"` // unique, e.g. "p10"
	Title          string    `json:"title"          db:"title"`
	Price          int       `json:"price"          db:"price"`
	Credits        int       `json:"credits"        db:"credits"`
	IsSubscription bool      `json:"isSubscription" db:"is_subscription"`
	IsActive       bool      `json:"isActive"       db:"is_active"`
	CreatedAt      time.Time `json:"createdAt"      db:"created_at"`
}

// DefaultPlans is the built-in catalog seeded on first boot when the plans
// table is empty. ID and CreatedAt are assigned by the store.
func DefaultPlans() []Plan {
	return []Plan{
		{Code: "p1", Title: "1 photo", Price: 5, Credits: 1, IsActive: true},
		{Code: "p10", Title: "10 photos", Price: 45, Credits: 10, IsActive: true},
		{Code: "p30", Title: "30 photos", Price: 120, Credits: 30, IsActive: true},
		{Code: "sub100", Title: "100 photos / month", Price: 199, Credits: 100, IsSubscription: true, IsActive: true},
	}
}
