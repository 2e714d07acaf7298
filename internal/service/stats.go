package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/repository"
)

// MaxStatsDaysBack bounds how far back a report may reach.
const MaxStatsDaysBack = 366

// RangeStats is the per-kind event count over an inclusive UTC day range.
type RangeStats struct {
	DayFrom string                  `json:"dayFrom"`
	DayTo   string                  `json:"dayTo"`
	Counts  map[model.EventKind]int `json:"counts"`
}

// Count returns the count for kind, 0 when absent.
func (r *RangeStats) Count(kind model.EventKind) int {
	return r.Counts[kind]
}

// Blocked is the total of the three quota block events.
func (r *RangeStats) Blocked() int {
	return r.Count(model.EventLimitMonthReached) + r.Count(model.EventSubRequired) + r.Count(model.EventPaidRequired)
}

// Ratio is one funnel step. When the denominator is zero, Available is false
// and Percent is 0; callers render it as "n/a".
type Ratio struct {
	Name        string  `json:"name"`
	Numerator   int     `json:"numerator"`
	Denominator int     `json:"denominator"`
	Percent     float64 `json:"percent"`
	Available   bool    `json:"available"`
}

// String renders "name: num/den (pp.p%)" or "name: n/a".
func (r Ratio) String() string {
	if !r.Available {
		return fmt.Sprintf("%s: n/a", r.Name)
	}
	return fmt.Sprintf("%s: %d/%d (%.1f%%)", r.Name, r.Numerator, r.Denominator, r.Percent)
}

// NewRatio divides num by den, guarding den == 0.
func NewRatio(name string, num, den int) Ratio {
	r := Ratio{Name: name, Numerator: num, Denominator: den}
	if den == 0 {
		return r
	}
	r.Available = true
	r.Percent = math.Round(float64(num)*1000/float64(den)) / 10
	return r
}

// ConversionReport is a set of ratios computed from one RangeStats snapshot.
type ConversionReport struct {
	Range  *RangeStats `json:"range"`
	Ratios []Ratio     `json:"ratios"`
}

// StatsService is the analytics aggregator behind the operator reports.
type StatsService struct {
	events repository.EventRepository
	plans  repository.PlanRepository
	now    func() time.Time
	logger *slog.Logger
}

func NewStatsService(events repository.EventRepository, plans repository.PlanRepository, logger *slog.Logger) *StatsService {
	return &StatsService{
		events: events,
		plans:  plans,
		now:    time.Now,
		logger: logger,
	}
}

// DayRange returns the inclusive day keys for daysBack relative to now.
//
//	daysBack = 0 → today only
//	daysBack = N → the N calendar days ending today (today and N-1 before it)
func DayRange(now time.Time, daysBack int) (from, to string, err error) {
	if daysBack < 0 || daysBack > MaxStatsDaysBack {
		return "", "", apperror.ValidationFailed("days",
			fmt.Sprintf("days must be between 0 and %d", MaxStatsDaysBack))
	}
	today := now.UTC()
	span := daysBack - 1
	if span < 0 {
		span = 0
	}
	return model.DayKey(today.AddDate(0, 0, -span)), model.DayKey(today), nil
}

// RangeStats counts every report kind over the range for daysBack.
// All counts come from a single store query.
func (s *StatsService) RangeStats(ctx context.Context, daysBack int) (*RangeStats, error) {
	from, to, err := DayRange(s.now(), daysBack)
	if err != nil {
		return nil, err
	}

	counts, err := s.events.QueryEventCounts(ctx, from, to, model.ReportKinds())
	if err != nil {
		s.logger.Error("failed to query event counts",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/stats: counting events: %w", err)
	}

	return &RangeStats{DayFrom: from, DayTo: to, Counts: counts}, nil
}

// Today is RangeStats(ctx, 0).
func (s *StatsService) Today(ctx context.Context) (*RangeStats, error) {
	return s.RangeStats(ctx, 0)
}

// Conversion derives the funnel ratios from one RangeStats snapshot.
func (s *StatsService) Conversion(ctx context.Context, daysBack int) (*ConversionReport, error) {
	rs, err := s.RangeStats(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	return &ConversionReport{Range: rs, Ratios: ConversionRatios(rs)}, nil
}

// ConversionRatios computes the fixed ratio list. It never divides by zero.
func ConversionRatios(rs *RangeStats) []Ratio {
	c := rs.Count
	received := c(model.EventImageReceived)
	blocked := rs.Blocked()

	return []Ratio{
		NewRatio("start → image", received, c(model.EventStart)),
		NewRatio("image → success", c(model.EventRemoveBgSuccess), received),
		NewRatio("image → blocked", blocked, received),
		NewRatio("image → monthly limit", c(model.EventLimitMonthReached), received),
		NewRatio("sub required → sub ok", c(model.EventSubOK), c(model.EventSubRequired)),
		NewRatio("blocked → tariffs shown", c(model.EventTariffsShown), blocked),
		NewRatio("tariffs shown → clicked", c(model.EventTariffsClicked), c(model.EventTariffsShown)),
		NewRatio("removal start → success", c(model.EventRemoveBgSuccess), c(model.EventRemoveBgStart)),
	}
}

// Plans returns the active catalog.
func (s *StatsService) Plans(ctx context.Context) ([]model.Plan, error) {
	plans, err := s.plans.ListPlans(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("service/stats: listing plans: %w", err)
	}
	return plans, nil
}
