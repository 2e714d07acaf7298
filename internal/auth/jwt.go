// Package auth issues and checks the tokens that guard the operator HTTP API.
//
// OPERATOR FLOW:
//  1. The operator POSTs the shared password to /api/auth/login
//  2. The server bcrypt-compares it with OPERATOR_PASSWORD_HASH
//  3. On match it signs a JWT whose subject is the operator id
//  4. Later requests carry the token as "Authorization: Bearer ..." (scripts)
//     or in the "token" HttpOnly cookie (browsers); the middleware validates it
//
// WHY JWT?
// The bot keeps no session table. Everything the middleware needs (who, until
// when) is inside the signed token, and the signature is checked with the
// secret alone.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"operator","iss":"cutout-bot","exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "cutout-bot"
	// DefaultTokenTTL is how long an operator token stays valid.
	DefaultTokenTTL = 12 * time.Hour
	// minSecretLen applies to OPERATOR_JWT_SECRET.
	minSecretLen = 16
)

var (
	// ErrTokenExpired means the token was genuine but is past its exp.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers every other rejection.
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. A secret shorter than 16 characters
// is rejected; ttl <= 0 selects DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLen)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the lifetime of tokens from Generate.
func (s *TokenService) TTL() time.Duration { return s.ttl }

type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a token for subject valid for the configured TTL.
func (s *TokenService) Generate(subject string) (string, error) {
	return s.GenerateWithDuration(subject, s.ttl)
}

// GenerateWithDuration signs a token for subject valid for d.
// A negative d yields an already-expired token, which the tests rely on.
func (s *TokenService) GenerateWithDuration(subject string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenStr and returns its subject.
//
// Only HS256 is accepted. Pinning the method stops the "alg: none" and
// RS/HS confusion attacks.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: bad claims", ErrTokenInvalid)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrTokenInvalid)
	}
	return c.Subject, nil
}
