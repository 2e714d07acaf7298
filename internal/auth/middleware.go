package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of type contextKey, so no other package
// can read or shadow the operator value.
type contextKey string

const operatorKey contextKey = "operator"

// CookieName is the cookie the login handler sets for browser sessions.
const CookieName = "token"

var errNoToken = errors.New("auth: no token")

// RequireOperator is a middleware that guards the operator API.
//
// It accepts the JWT from an "Authorization: Bearer <jwt>" header first, then
// from the CookieName HttpOnly cookie. On success the token subject is stored
// in the request context; otherwise the chain stops with 401.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireOperator(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := extractSubject(r, tokens)
			if err != nil {
				msg := "valid operator token required"
				if errors.Is(err, ErrTokenExpired) {
					msg = "operator token expired, log in again"
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + msg + `"}`))
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext returns the authenticated operator's subject.
// Returns ("", false) outside RequireOperator.
func OperatorFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(operatorKey).(string)
	return id, ok && id != ""
}

// extractSubject reads the bearer header or the cookie and validates it.
func extractSubject(r *http.Request, tokens *TokenService) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errNoToken
		}
		return tokens.Validate(strings.TrimSpace(token))
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", errNoToken
	}
	return tokens.Validate(cookie.Value)
}
