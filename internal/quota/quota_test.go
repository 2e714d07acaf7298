package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
)

// oracle returns a SubscribedFunc answering with result and a pointer to a
// call counter.
func oracle(result bool) (SubscribedFunc, *int) {
	calls := 0
	return func(context.Context) bool {
		calls++
		return result
	}, &calls
}

func TestDecide_DefaultBoundaries(t *testing.T) {
	e := NewEngine(DefaultLimits())

	tests := []struct {
		name       string
		used       int
		subscribed bool
		want       Decision
		wantCalls  int
	}{
		{"first image is free", 0, false, Allow, 0},
		{"second image needs subscription", 1, false, RequireSubscription, 1},
		{"second image with subscription", 1, true, Allow, 1},
		{"third image needs payment", 2, true, RequirePayment, 0},
		{"third image needs payment without subscription", 2, false, RequirePayment, 0},
		{"hard cap reached", 50, true, DenyHardCap, 0},
		{"above hard cap", 73, false, DenyHardCap, 0},
		{"just under hard cap", 49, true, RequirePayment, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, calls := oracle(tt.subscribed)
			got := e.Decide(context.Background(), tt.used, fn)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, *calls, "oracle call count")
		})
	}
}

func TestDecide_ZeroThresholds(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
		used   int
		sub    bool
		want   Decision
	}{
		{"no free tier, subscriber", Limits{0, 1, 50}, 0, true, Allow},
		{"no free tier, not subscribed", Limits{0, 1, 50}, 0, false, RequireSubscription},
		{"no bonus tier", Limits{1, 0, 50}, 1, true, RequirePayment},
		{"no tiers at all", Limits{0, 0, 50}, 0, true, RequirePayment},
		{"zero hard cap blocks everything", Limits{5, 5, 0}, 0, true, DenyHardCap},
		{"hard cap below free tier wins", Limits{10, 0, 3}, 3, true, DenyHardCap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, _ := oracle(tt.sub)
			assert.Equal(t, tt.want, NewEngine(tt.limits).Decide(context.Background(), tt.used, fn))
		})
	}
}

func TestDecide_NilOracleIsNotSubscribed(t *testing.T) {
	e := NewEngine(DefaultLimits())
	assert.Equal(t, RequireSubscription, e.Decide(context.Background(), 1, nil))
}

func TestDecision_EventKind(t *testing.T) {
	assert.Equal(t, model.EventKind(""), Allow.EventKind())
	assert.Equal(t, model.EventSubRequired, RequireSubscription.EventKind())
	assert.Equal(t, model.EventPaidRequired, RequirePayment.EventKind())
	assert.Equal(t, model.EventLimitMonthReached, DenyHardCap.EventKind())

	assert.True(t, Allow.Allowed())
	assert.False(t, DenyHardCap.Allowed())
	assert.Equal(t, "require_subscription", RequireSubscription.String())
}

func TestLimits_Validate(t *testing.T) {
	require.NoError(t, DefaultLimits().Validate())
	require.NoError(t, Limits{}.Validate())

	err := Limits{FreeUses: -1}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	var appErr *apperror.AppError
	require.ErrorAs(t, Limits{MonthlyHardCap: -5}.Validate(), &appErr)
	assert.Equal(t, "monthlyHardCap", appErr.Field)
}

func TestRemaining(t *testing.T) {
	e := NewEngine(DefaultLimits())

	assert.Equal(t, Remaining{Free: 1, Subscription: 1, HardCap: 50}, e.Remaining(0))
	assert.Equal(t, Remaining{Free: 0, Subscription: 1, HardCap: 49}, e.Remaining(1))
	assert.Equal(t, Remaining{Free: 0, Subscription: 0, HardCap: 48}, e.Remaining(2))
	assert.Equal(t, Remaining{Free: 0, Subscription: 0, HardCap: 0}, e.Remaining(60))
}
