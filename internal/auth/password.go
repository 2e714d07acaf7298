// Package auth: operator password checks.
//
// The operator password is never stored in plain text. OPERATOR_PASSWORD_HASH
// holds a bcrypt hash produced once with `cutout-bot hash-password`, and the
// login endpoint compares submitted passwords against it.
//
// bcrypt embeds the salt and the cost in its output, so the env var is the
// only thing to keep:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor. Roughly 250ms per hash on a small
// VM, which only matters at login.
const defaultCost = 12

// maxPasswordBytes is where bcrypt stops reading. Longer input would be
// truncated without notice, so it is refused instead.
const maxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify for a well-formed hash that
// does not match.
var ErrPasswordMismatch = errors.New("auth: password does not match")

// PasswordService hashes and verifies operator passwords.
type PasswordService struct {
	cost int
}

// NewPasswordService uses the production cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest lets other packages' tests hash with a cheap
// cost (bcrypt.MinCost is 4). Never use it outside tests.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext, ready to paste into
// OPERATOR_PASSWORD_HASH.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	switch {
	case plaintext == "":
		return "", errors.New("auth: password is empty")
	case len(plaintext) > maxPasswordBytes:
		return "", fmt.Errorf("auth: password is %d bytes, the limit is %d", len(plaintext), maxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash, ErrPasswordMismatch when it
// does not, and another error when hash itself is unusable. The comparison
// is constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
}

// CheckHash reports whether hash is a bcrypt hash Verify can use. main.go
// calls it at startup so a mangled OPERATOR_PASSWORD_HASH fails fast instead
// of rejecting every login.
func (p *PasswordService) CheckHash(hash string) error {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("auth: operator password hash is not a bcrypt hash: %w", err)
	}
	return nil
}
