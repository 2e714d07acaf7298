package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/cutout-bot/internal/auth"
	"github.com/sakif/cutout-bot/internal/service"
)

// OperatorLogin is the slice of service.OperatorAuthService the handler needs.
type OperatorLogin interface {
	Login(ctx context.Context, password string) (*service.AuthResult, error)
}

// AuthHandler manages operator sessions.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin  → check the password, issue a JWT (body + HttpOnly cookie)
//   - HandleLogout → clear the cookie
type AuthHandler struct {
	operators    OperatorLogin
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secureCookie should be true whenever
// the API is served over HTTPS.
func NewAuthHandler(operators OperatorLogin, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		operators:    operators,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

// HandleLogin exchanges the operator password for a token.
//
// HTTP: POST /api/auth/login  {"password": "..."}
//
// The token is returned in the body for scripts (send it back as
// "Authorization: Bearer ...") and set as an HttpOnly cookie for browsers.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.operators.Login(r.Context(), req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, result)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /api/auth/logout
//
// JWTs are stateless, so a bearer token stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
