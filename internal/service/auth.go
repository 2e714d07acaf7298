// Package service: operator authentication.
//
// OperatorAuthService sits between the login handler and the auth utilities:
//
//	AuthHandler (HTTP) → OperatorAuthService (rules) → PasswordService (bcrypt)
//	                                               ↘ TokenService (JWT)
//
// There is exactly one operator. Its password hash comes from configuration,
// so there is no user table lookup; the token subject is the fixed OperatorSubject.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/auth"
)

// OperatorSubject is the JWT subject issued to the operator.
const OperatorSubject = "operator"

// OperatorAuthService checks the operator password and issues tokens.
type OperatorAuthService struct {
	passwordHash string
	tokens       *auth.TokenService
	passwords    *auth.PasswordService
	logger       *slog.Logger
}

// NewOperatorAuthService creates an OperatorAuthService for passwordHash.
func NewOperatorAuthService(
	passwordHash string,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *OperatorAuthService {
	return &OperatorAuthService{
		passwordHash: passwordHash,
		tokens:       tokens,
		passwords:    passwords,
		logger:       logger,
	}
}

// AuthResult bundles the issued token with its lifetime so the handler can
// set the cookie and answer in one step.
type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login verifies password and returns a signed token.
//
// A wrong password is reported as apperror.ErrForbidden with a fixed message;
// the caller never learns whether the hash was malformed or simply did not match.
func (s *OperatorAuthService) Login(ctx context.Context, password string) (*AuthResult, error) {
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	if err := s.passwords.Verify(s.passwordHash, password); err != nil {
		s.logger.WarnContext(ctx, "operator login rejected", slog.String("error", err.Error()))
		return nil, apperror.Forbidden("invalid operator credentials")
	}

	token, err := s.tokens.Generate(OperatorSubject)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating operator token: %w", err)
	}

	s.logger.InfoContext(ctx, "operator logged in")
	return &AuthResult{
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokens.TTL()),
	}, nil
}

// ValidateToken returns the subject of a valid operator token.
func (s *OperatorAuthService) ValidateToken(tokenStr string) (string, error) {
	subject, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return subject, nil
}
