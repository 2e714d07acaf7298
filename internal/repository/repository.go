// Package repository declares the persistence contracts the services depend on.
//
// There is one small interface per table. Services ask only for the ones they
// need (the stats aggregator never sees UsageRepository, for example), and the
// concrete backends (sqlite, postgres) implement all of them through Store.
//
// FAILURE SEMANTICS:
// Every method returns an error wrapping apperror.ErrStoreUnavailable when the
// backend fails. No method retries; retry policy belongs to the caller.
package repository

import (
	"context"

	"github.com/sakif/cutout-bot/internal/model"
)

type UserRepository interface {
	// UpsertUser inserts the user with first_seen = last_seen = now, or bumps
	// last_seen if the user already exists. Safe to call repeatedly.
	UpsertUser(ctx context.Context, userID int64) error
}

type UsageRepository interface {
	// GetMonthlyUsage returns the used counter for (userID, month), 0 if no row exists.
	GetMonthlyUsage(ctx context.Context, userID int64, month string) (int, error)
	// IncrementMonthlyUsage atomically creates the row with used = 1 or adds one.
	// Concurrent calls for the same key never lose an update.
	IncrementMonthlyUsage(ctx context.Context, userID int64, month string) error
}

type EventRepository interface {
	// AppendEvent inserts a ledger row. userID may be nil for system events.
	// meta is truncated to model.MaxEventMetaLength.
	AppendEvent(ctx context.Context, kind model.EventKind, userID *int64, meta string) error
	// QueryEventCounts counts events per kind for the inclusive UTC day range
	// [dayFrom, dayTo]. Every requested kind is present in the result; kinds
	// with no matching rows map to 0.
	QueryEventCounts(ctx context.Context, dayFrom, dayTo string, kinds []model.EventKind) (map[model.EventKind]int, error)
}

type PlanRepository interface {
	// ListPlans returns catalog rows ordered by id, optionally only active ones.
	ListPlans(ctx context.Context, activeOnly bool) ([]model.Plan, error)
	// EnsureDefaultPlans seeds model.DefaultPlans when the catalog is empty.
	// Existing rows are never touched.
	EnsureDefaultPlans(ctx context.Context) error
}

// Store is everything a backend provides. main.go builds one and hands the
// narrower interfaces to each service.
type Store interface {
	UserRepository
	UsageRepository
	EventRepository
	PlanRepository
	Ping(ctx context.Context) error
	Close() error
}
