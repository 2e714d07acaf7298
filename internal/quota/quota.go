// Package quota decides whether a user may process another image this month.
//
// THE DECISION TABLE (evaluated top to bottom, first match wins):
//
//	used >= MonthlyHardCap                   → DenyHardCap
//	used <  FreeUses                         → Allow (no subscription lookup)
//	used <  FreeUses + SubscriptionBonusUses → Allow if subscribed, else RequireSubscription
//	otherwise                                → RequirePayment
//
// "used" is the count ALREADY consumed this month, so every boundary is a
// strict "<". With FreeUses = 1 the first image (used = 0) is free and the
// second (used = 1) is not.
//
// The engine is pure: it reads no store and writes no events. The caller
// supplies the usage count and a lazy subscription predicate, and acts on the
// returned Decision.
package quota

import (
	"context"
	"fmt"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
)

// Default thresholds.
const (
	DefaultFreeUses              = 1
	DefaultSubscriptionBonusUses = 1
	DefaultMonthlyHardCap        = 50
)

// Limits are the configured thresholds. Zero is a legal value for each of them:
// FreeUses = 0 means there is no free tier, MonthlyHardCap = 0 blocks everyone.
type Limits struct {
	FreeUses              int `json:"freeUses"`
	SubscriptionBonusUses int `json:"subscriptionBonusUses"`
	MonthlyHardCap        int `json:"monthlyHardCap"`
}

// DefaultLimits returns 1 free, 1 bonus for subscribers, hard cap 50.
func DefaultLimits() Limits {
	return Limits{
		FreeUses:              DefaultFreeUses,
		SubscriptionBonusUses: DefaultSubscriptionBonusUses,
		MonthlyHardCap:        DefaultMonthlyHardCap,
	}
}

// Validate rejects negative thresholds.
func (l Limits) Validate() error {
	switch {
	case l.FreeUses < 0:
		return apperror.ValidationFailed("freeUses", fmt.Sprintf("must be >= 0, got %d", l.FreeUses))
	case l.SubscriptionBonusUses < 0:
		return apperror.ValidationFailed("subscriptionBonusUses", fmt.Sprintf("must be >= 0, got %d", l.SubscriptionBonusUses))
	case l.MonthlyHardCap < 0:
		return apperror.ValidationFailed("monthlyHardCap", fmt.Sprintf("must be >= 0, got %d", l.MonthlyHardCap))
	}
	return nil
}

// Decision is the outcome of Engine.Decide.
type Decision int

const (
	Allow Decision = iota
	RequireSubscription
	RequirePayment
	DenyHardCap
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RequireSubscription:
		return "require_subscription"
	case RequirePayment:
		return "require_payment"
	case DenyHardCap:
		return "deny_hard_cap"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d == Allow }

// EventKind returns the ledger event recorded when the request is blocked.
// Allow has no block event and returns "".
func (d Decision) EventKind() model.EventKind {
	switch d {
	case RequireSubscription:
		return model.EventSubRequired
	case RequirePayment:
		return model.EventPaidRequired
	case DenyHardCap:
		return model.EventLimitMonthReached
	default:
		return ""
	}
}

// SubscribedFunc reports whether the user is subscribed to the gate channel.
// It is only called in the subscription tier.
type SubscribedFunc func(ctx context.Context) bool

// Engine applies Limits to a usage count.
type Engine struct {
	limits Limits
}

// NewEngine returns an Engine for limits. Call Limits.Validate first;
// NewEngine does not.
func NewEngine(limits Limits) *Engine {
	return &Engine{limits: limits}
}

// Limits returns the thresholds the engine was built with.
func (e *Engine) Limits() Limits { return e.limits }

// Decide runs the decision table. subscribed may be nil, which counts as
// "not subscribed".
func (e *Engine) Decide(ctx context.Context, used int, subscribed SubscribedFunc) Decision {
	l := e.limits

	// The hard cap is a safety net over every tier, so it goes first.
	if used >= l.MonthlyHardCap {
		return DenyHardCap
	}
	if used < l.FreeUses {
		return Allow
	}
	if used < l.FreeUses+l.SubscriptionBonusUses {
		if subscribed != nil && subscribed(ctx) {
			return Allow
		}
		return RequireSubscription
	}
	return RequirePayment
}

// Remaining describes what is left of a user's allowance this month.
type Remaining struct {
	Free         int `json:"free"`
	Subscription int `json:"subscription"`
	HardCap      int `json:"hardCap"`
}

// Remaining computes the unused free and subscription allowance for used.
// It never calls the subscription oracle.
func (e *Engine) Remaining(used int) Remaining {
	l := e.limits
	free := max(l.FreeUses-used, 0)
	bonusUsed := max(used-l.FreeUses, 0)
	sub := max(l.SubscriptionBonusUses-bonusUsed, 0)
	return Remaining{
		Free:         free,
		Subscription: sub,
		HardCap:      max(l.MonthlyHardCap-used, 0),
	}
}
