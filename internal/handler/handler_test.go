package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/auth"
	"github.com/sakif/cutout-bot/internal/handler"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/service"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

// MockStats implements handler.StatsReporter.
type MockStats struct {
	CapturedDays int
	ReturnErr    error
}

func (m *MockStats) Today(ctx context.Context) (*service.RangeStats, error) {
	return m.RangeStats(ctx, 0)
}

func (m *MockStats) RangeStats(_ context.Context, days int) (*service.RangeStats, error) {
	m.CapturedDays = days
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return &service.RangeStats{
		DayFrom: "2026-03-08",
		DayTo:   "2026-03-14",
		Counts:  map[model.EventKind]int{model.EventStart: 3},
	}, nil
}

func (m *MockStats) Conversion(ctx context.Context, days int) (*service.ConversionReport, error) {
	rs, err := m.RangeStats(ctx, days)
	if err != nil {
		return nil, err
	}
	return &service.ConversionReport{Range: rs, Ratios: service.ConversionRatios(rs)}, nil
}

func (m *MockStats) Plans(context.Context) ([]model.Plan, error) {
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return model.DefaultPlans(), nil
}

// MockLogin implements handler.OperatorLogin.
type MockLogin struct {
	CapturedPassword string
	ReturnErr        error
}

func (m *MockLogin) Login(_ context.Context, password string) (*service.AuthResult, error) {
	m.CapturedPassword = password
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return &service.AuthResult{Token: "signed.jwt.token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type MockPinger struct{ Err error }

func (m MockPinger) Ping(context.Context) error { return m.Err }

// ===== STATS =====

func TestStatsHandler(t *testing.T) {
	t.Run("today", func(t *testing.T) {
		m := &MockStats{}
		h := handler.NewStatsHandler(m, logger)
		rr := httptest.NewRecorder()

		h.HandleToday(rr, httptest.NewRequest(http.MethodGet, "/api/stats/today", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 0, m.CapturedDays)

		var rs service.RangeStats
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&rs))
		assert.Equal(t, 3, rs.Counts[model.EventStart])
	})

	t.Run("range defaults to seven days", func(t *testing.T) {
		m := &MockStats{}
		h := handler.NewStatsHandler(m, logger)
		rr := httptest.NewRecorder()

		h.HandleRange(rr, httptest.NewRequest(http.MethodGet, "/api/stats/range", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 7, m.CapturedDays)
	})

	t.Run("range with days", func(t *testing.T) {
		m := &MockStats{}
		h := handler.NewStatsHandler(m, logger)
		rr := httptest.NewRecorder()

		h.HandleRange(rr, httptest.NewRequest(http.MethodGet, "/api/stats/range?days=30", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 30, m.CapturedDays)
	})

	t.Run("non-numeric days", func(t *testing.T) {
		h := handler.NewStatsHandler(&MockStats{}, logger)
		rr := httptest.NewRecorder()

		h.HandleRange(rr, httptest.NewRequest(http.MethodGet, "/api/stats/range?days=week", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "validation_error")
	})

	t.Run("conversion marks zero denominators", func(t *testing.T) {
		h := handler.NewStatsHandler(&MockStats{}, logger)
		rr := httptest.NewRecorder()

		h.HandleConversion(rr, httptest.NewRequest(http.MethodGet, "/api/stats/conversion?days=7", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var report service.ConversionReport
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&report))
		require.NotEmpty(t, report.Ratios)
		assert.True(t, report.Ratios[0].Available, "start → image divides by start = 3")
		assert.Zero(t, report.Ratios[0].Percent)
		assert.False(t, report.Ratios[1].Available, "image → success divides by image_received = 0")
	})

	t.Run("store unavailable is 503", func(t *testing.T) {
		m := &MockStats{ReturnErr: apperror.Unavailable("sqlite: counting events", errors.New("database is locked"))}
		h := handler.NewStatsHandler(m, logger)
		rr := httptest.NewRecorder()

		h.HandleToday(rr, httptest.NewRequest(http.MethodGet, "/api/stats/today", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.NotContains(t, rr.Body.String(), "database is locked")
	})

	t.Run("unknown error hides details", func(t *testing.T) {
		m := &MockStats{ReturnErr: errors.New("secret path /var/lib/bot.db")}
		h := handler.NewStatsHandler(m, logger)
		rr := httptest.NewRecorder()

		h.HandlePlans(rr, httptest.NewRequest(http.MethodGet, "/api/plans", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "/var/lib")
	})

	t.Run("plans", func(t *testing.T) {
		h := handler.NewStatsHandler(&MockStats{}, logger)
		rr := httptest.NewRecorder()

		h.HandlePlans(rr, httptest.NewRequest(http.MethodGet, "/api/plans", nil))

		var plans []model.Plan
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&plans))
		assert.Len(t, plans, 4)
	})
}

func TestStatsHandler_FailureLogNamesOperator(t *testing.T) {
	tokens, err := auth.NewTokenService("0123456789abcdef0123", time.Hour)
	require.NoError(t, err)
	token, err := tokens.Generate("operator")
	require.NoError(t, err)

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := handler.NewStatsHandler(&MockStats{ReturnErr: errors.New("boom")}, log)
	protected := auth.RequireOperator(tokens)(http.HandlerFunc(h.HandleToday))

	req := httptest.NewRequest(http.MethodGet, "/api/stats/today", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "stats request failed", entry["msg"])
	assert.Equal(t, "operator", entry["operator"])
}

// ===== AUTH =====

func TestAuthHandler_HandleLogin(t *testing.T) {
	t.Run("valid password", func(t *testing.T) {
		m := &MockLogin{}
		h := handler.NewAuthHandler(m, true, logger)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"password":"hunter2"}`))
		rr := httptest.NewRecorder()

		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "hunter2", m.CapturedPassword)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.CookieName, cookies[0].Name)
		assert.Equal(t, "signed.jwt.token", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
	})

	t.Run("wrong password", func(t *testing.T) {
		m := &MockLogin{ReturnErr: apperror.Forbidden("invalid operator credentials")}
		h := handler.NewAuthHandler(m, false, logger)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"password":"nope"}`))
		rr := httptest.NewRecorder()

		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("invalid body", func(t *testing.T) {
		h := handler.NewAuthHandler(&MockLogin{}, false, logger)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"password":`))
		rr := httptest.NewRecorder()

		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		h := handler.NewAuthHandler(&MockLogin{}, false, logger)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"user":"admin"}`))
		rr := httptest.NewRecorder()

		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAuthHandler_HandleLogout(t *testing.T) {
	h := handler.NewAuthHandler(&MockLogin{}, false, logger)
	rr := httptest.NewRecorder()

	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}

// ===== HEALTH =====

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	handler.NewHealthHandler(MockPinger{}, logger).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	rr = httptest.NewRecorder()
	handler.NewHealthHandler(MockPinger{Err: apperror.ErrStoreUnavailable}, logger).
		HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
