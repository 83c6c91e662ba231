package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountDisabled   = errors.New("account is disabled")
	ErrAccountLocked     = errors.New("account is temporarily locked")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// Link protocol errors
	ErrLinkExpired = errors.New("link code has expired")
)

// LockedError reports a lockout together with the time the lock lifts.
// It matches ErrAccountLocked under errors.Is.
type LockedError struct {
	LockedUntil time.Time
	Message     string
}

func (e *LockedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("account locked until %s", e.LockedUntil.Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RetryAfter returns the remaining lock time, never negative
func (e *LockedError) RetryAfter(now time.Time) time.Duration {
	d := e.LockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ValidationError carries a message that is safe to show to the caller.
// It matches ErrBadRequest under errors.Is.
type ValidationError struct {
	Message string
}

// NewValidationError creates a ValidationError with msg
func NewValidationError(msg string) error {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrBadRequest
}
