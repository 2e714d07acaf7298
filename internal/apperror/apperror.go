// Package apperror defines the error taxonomy shared by every layer of the bot.
//
// Two kinds of values live here:
//   - sentinel errors (ErrNotFound, ErrStoreUnavailable, ...) that callers match
//     with errors.Is
//   - AppError, which pairs a sentinel with a human-readable message
//
// Front-ends (the Telegram bot, the operator HTTP API) translate sentinels into
// user-facing text or status codes. Raw diagnostics never cross that boundary.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrForbidden  = errors.New("forbidden")

	// ErrStoreUnavailable marks any persistence failure. Fatal for the current
	// request; the store never retries on its own.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSubscriptionCheck marks a failed membership lookup. The oracle recovers
	// it locally (fail-closed), so it only shows up in logs and event meta.
	ErrSubscriptionCheck = errors.New("subscription check failed")
	// ErrTransportFetch marks a failure to download the user's source image.
	ErrTransportFetch = errors.New("transport fetch failed")
	// ErrRemovalFailed marks a non-success or timed-out background removal call.
	ErrRemovalFailed = errors.New("background removal failed")
	// ErrImageTooLarge marks a source image above the configured size ceiling.
	ErrImageTooLarge = errors.New("image too large")
	// ErrConfigMissing marks a required setting absent at startup.
	ErrConfigMissing = errors.New("configuration missing")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// ConfigMissing reports a required environment variable that was not set.
// Field carries the variable name so startup logs point straight at it.
func ConfigMissing(name string) *AppError {
	return &AppError{
		Err:     ErrConfigMissing,
		Message: fmt.Sprintf("required setting %s is not set", name),
		Field:   name,
	}
}

// ImageTooLarge reports a source image above the size ceiling.
// The message is safe to show to end users.
func ImageTooLarge(size, limit int64) *AppError {
	return &AppError{
		Err:     ErrImageTooLarge,
		Message: fmt.Sprintf("image is %d bytes, limit is %d bytes", size, limit),
	}
}

// Unavailable wraps a driver error so that errors.Is(err, ErrStoreUnavailable)
// holds while the original cause stays reachable through the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
