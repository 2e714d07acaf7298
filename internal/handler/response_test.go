package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cutout-bot/internal/apperror"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     int
		wantBody ErrorResponse
	}{
		{
			name:     "validation carries message and field",
			err:      fmt.Errorf("service/stats: %w", apperror.ValidationFailed("days", "days must be between 0 and 366")),
			want:     http.StatusBadRequest,
			wantBody: ErrorResponse{Error: "validation_error", Message: "days must be between 0 and 366", Field: "days"},
		},
		{
			name:     "forbidden",
			err:      apperror.Forbidden("invalid operator credentials"),
			want:     http.StatusForbidden,
			wantBody: ErrorResponse{Error: "forbidden", Message: "invalid operator credentials"},
		},
		{
			name:     "store failure hides the driver error",
			err:      fmt.Errorf("service/stats: %w", apperror.Unavailable("sqlite: counting events", errors.New("/var/lib/bot.db: disk I/O error"))),
			want:     http.StatusServiceUnavailable,
			wantBody: ErrorResponse{Error: "store_unavailable", Message: "The store is unavailable, try again later"},
		},
		{
			name:     "unknown error is a generic 500",
			err:      errors.New("SELECT kind FROM events: syntax error"),
			want:     http.StatusInternalServerError,
			wantBody: ErrorResponse{Error: "internal_error", Message: "An internal error occurred"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var got ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantBody, got)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Password string `json:"password"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"password":"x"}`, false},
		{"unknown field", `{"password":"x","admin":true}`, true},
		{"malformed", `{"password":`, true},
		{"too large", `{"password":"` + strings.Repeat("a", maxBodyBytes) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body))
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
