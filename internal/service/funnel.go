package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/quota"
	"github.com/sakif/cutout-bot/internal/repository"
)

// FunnelStore is what the funnel actions touch.
type FunnelStore interface {
	repository.UserRepository
	repository.UsageRepository
	repository.EventRepository
	repository.PlanRepository
}

// FunnelService records the non-image steps of the funnel: /start, the
// "I subscribed" button and the tariffs screen.
type FunnelService struct {
	store  FunnelStore
	subs   Subscription
	engine *quota.Engine
	now    func() time.Time
	logger *slog.Logger
}

func NewFunnelService(store FunnelStore, subs Subscription, engine *quota.Engine, logger *slog.Logger) *FunnelService {
	return &FunnelService{
		store:  store,
		subs:   subs,
		engine: engine,
		now:    time.Now,
		logger: logger,
	}
}

// Start records a start event and registers the user.
func (s *FunnelService) Start(ctx context.Context, userID int64) error {
	if err := s.store.AppendEvent(ctx, model.EventStart, &userID, ""); err != nil {
		return fmt.Errorf("service/funnel: recording start: %w", err)
	}
	if err := s.store.UpsertUser(ctx, userID); err != nil {
		return fmt.Errorf("service/funnel: upserting user: %w", err)
	}
	return nil
}

// ConfirmSubscription re-checks membership after the user says they joined.
// The result is recorded as sub_ok or sub_fail. A lookup error additionally
// shows up as check_sub_error, written by the oracle itself.
func (s *FunnelService) ConfirmSubscription(ctx context.Context, userID int64) (bool, error) {
	ok := s.subs.IsSubscribed(ctx, userID)

	kind := model.EventSubFail
	if ok {
		kind = model.EventSubOK
	}
	if err := s.store.AppendEvent(ctx, kind, &userID, ""); err != nil {
		return ok, fmt.Errorf("service/funnel: recording %s: %w", kind, err)
	}

	s.logger.Info("subscription confirmation",
		slog.Int64("user_id", userID),
		slog.Bool("subscribed", ok),
	)
	return ok, nil
}

// ShowTariffs returns the active plans and records that they were shown.
// clicked is true when the user pressed the tariffs button (as opposed to
// the bot showing the screen after a block).
func (s *FunnelService) ShowTariffs(ctx context.Context, userID int64, clicked bool) ([]model.Plan, error) {
	if clicked {
		if err := s.store.AppendEvent(ctx, model.EventTariffsClicked, &userID, ""); err != nil {
			return nil, fmt.Errorf("service/funnel: recording tariffs click: %w", err)
		}
	}

	plans, err := s.store.ListPlans(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("service/funnel: listing plans: %w", err)
	}

	if err := s.store.AppendEvent(ctx, model.EventTariffsShown, &userID, ""); err != nil {
		return nil, fmt.Errorf("service/funnel: recording tariffs shown: %w", err)
	}
	return plans, nil
}

// UsageSummary is the answer to "how much do I have left?".
type UsageSummary struct {
	Month     string          `json:"month"`
	Used      int             `json:"used"`
	Remaining quota.Remaining `json:"remaining"`
}

// UsageSummary reads the current month's counter. It does not check the
// subscription, so it never triggers an external call.
func (s *FunnelService) UsageSummary(ctx context.Context, userID int64) (*UsageSummary, error) {
	month := model.MonthKey(s.now())
	used, err := s.store.GetMonthlyUsage(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("service/funnel: reading usage: %w", err)
	}
	return &UsageSummary{
		Month:     month,
		Used:      used,
		Remaining: s.engine.Remaining(used),
	}, nil
}
