package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BradenHooton/osnovci/internal/metrics"
	"github.com/BradenHooton/osnovci/internal/models"
	pkglogger "github.com/BradenHooton/osnovci/pkg/logger"
)

// Lockout scopes. The scope prefixes the store key so login and PIN
// counters never collide.
const (
	LockoutScopeLogin = "login"
	LockoutScopePIN   = "pin"
)

// LockoutStore holds failure counters keyed by identifier
type LockoutStore interface {
	Increment(ctx context.Context, identifier string, ttl time.Duration) (*models.LockoutCounter, error)
	Get(ctx context.Context, identifier string) (*models.LockoutCounter, error)
	SetLockedUntil(ctx context.Context, identifier string, lockedUntil time.Time, ttl time.Duration) error
	Delete(ctx context.Context, identifier string) error
	Scan(ctx context.Context, fn func(*models.LockoutCounter) error) error
}

// LockoutConfig holds the lockout threshold and duration
type LockoutConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// DefaultLockoutConfig locks after 5 failures for 30 minutes
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:  5,
		LockDuration: 30 * time.Minute,
	}
}

// LockoutService throttles credential guessing per identifier
type LockoutService struct {
	store  LockoutStore
	audit  *AuditService
	cfg    LockoutConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(store LockoutStore, audit *AuditService, cfg LockoutConfig, logger *slog.Logger) *LockoutService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultLockoutConfig().MaxAttempts
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = DefaultLockoutConfig().LockDuration
	}

	return &LockoutService{
		store:  store,
		audit:  audit,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// NormalizeEmail is the lookup key for an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func pinKey(studentID string) string {
	return LockoutScopePIN + ":" + studentID
}

// RecordLoginAttempt updates the counter for email after a login attempt.
// Success deletes the counter; failure increments it and locks at the threshold.
func (s *LockoutService) RecordLoginAttempt(ctx context.Context, email string, success bool) (*models.LockoutResult, error) {
	return s.record(ctx, LockoutScopeLogin, NormalizeEmail(email), success)
}

// IsAccountLocked reports whether email is locked. An expired lock is removed.
// Store failures are logged and reported as unlocked so Redis outages do not
// block every login.
func (s *LockoutService) IsAccountLocked(ctx context.Context, email string) (*models.LockoutResult, error) {
	key := NormalizeEmail(email)

	result, err := s.check(ctx, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "lockout check failed, allowing attempt",
			slog.String("email", pkglogger.SanitizedEmail(key)),
			slog.Any("error", err))
		return &models.LockoutResult{Locked: false}, nil
	}

	return result, nil
}

// UnlockAccount deletes the counter for email regardless of its state
func (s *LockoutService) UnlockAccount(ctx context.Context, email, actorID string) error {
	key := NormalizeEmail(email)

	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}

	s.audit.LogLockoutEvent(ctx, models.AuditEventTypeAccountUnlocked, LockoutScopeLogin, key, actorID, nil)
	return nil
}

// RecordPINAttempt updates the parental-lock PIN counter for a student
func (s *LockoutService) RecordPINAttempt(ctx context.Context, studentID string, success bool) (*models.LockoutResult, error) {
	return s.record(ctx, LockoutScopePIN, pinKey(studentID), success)
}

// IsPINLocked reports whether PIN entry is locked for a student. Unlike the
// login check, a store failure is returned to the caller.
func (s *LockoutService) IsPINLocked(ctx context.Context, studentID string) (*models.LockoutResult, error) {
	return s.check(ctx, pinKey(studentID))
}

// CleanupExpiredLockouts deletes every counter whose lock has lifted and
// returns how many were removed
func (s *LockoutService) CleanupExpiredLockouts(ctx context.Context) (int, error) {
	now := s.now()
	removed := 0

	err := s.store.Scan(ctx, func(c *models.LockoutCounter) error {
		if !c.IsExpired(now) {
			return nil
		}
		if err := s.store.Delete(ctx, c.Key); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to clean up lockouts: %w", err)
	}

	return removed, nil
}

// LockedError converts a locked result into the error returned to callers
func LockedError(result *models.LockoutResult) error {
	if result == nil || !result.Locked || result.LockedUntil == nil {
		return models.ErrAccountLocked
	}
	return &models.LockedError{LockedUntil: *result.LockedUntil, Message: result.Message}
}

func (s *LockoutService) record(ctx context.Context, scope, key string, success bool) (*models.LockoutResult, error) {
	if success {
		if err := s.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to reset lockout counter: %w", err)
		}
		return &models.LockoutResult{Locked: false}, nil
	}

	now := s.now()
	ttl := s.keyTTL()

	counter, err := s.store.Increment(ctx, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to record failed attempt: %w", err)
	}

	// A lapsed lock that nobody read yet: start a fresh count.
	if counter.IsExpired(now) {
		if err := s.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to reset expired lockout: %w", err)
		}
		counter, err = s.store.Increment(ctx, key, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to record failed attempt: %w", err)
		}
	}

	// Already locked. Callers should have short-circuited; the lock is not extended.
	if counter.IsLocked(now) {
		return s.lockedResult(*counter.LockedUntil, now), nil
	}

	metrics.FailedAttemptsTotal.WithLabelValues(scope).Inc()

	if counter.Count >= s.cfg.MaxAttempts {
		lockedUntil := now.Add(s.cfg.LockDuration)
		if err := s.store.SetLockedUntil(ctx, key, lockedUntil, ttl); err != nil {
			return nil, fmt.Errorf("failed to lock account: %w", err)
		}

		metrics.LockoutsTotal.WithLabelValues(scope).Inc()
		s.audit.LogLockoutEvent(ctx, models.AuditEventTypeAccountLocked, scope, key, "", &lockedUntil)

		result := s.lockedResult(lockedUntil, now)
		result.JustLocked = true
		return result, nil
	}

	remaining := s.cfg.MaxAttempts - counter.Count
	return &models.LockoutResult{
		Locked:            false,
		AttemptsRemaining: &remaining,
	}, nil
}

func (s *LockoutService) check(ctx context.Context, key string) (*models.LockoutResult, error) {
	counter, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if counter == nil || counter.LockedUntil == nil {
		return &models.LockoutResult{Locked: false}, nil
	}

	now := s.now()
	if counter.IsExpired(now) {
		if err := s.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to remove expired lockout: %w", err)
		}
		return &models.LockoutResult{Locked: false}, nil
	}

	return s.lockedResult(*counter.LockedUntil, now), nil
}

func (s *LockoutService) lockedResult(lockedUntil, now time.Time) *models.LockoutResult {
	return &models.LockoutResult{
		Locked:      true,
		LockedUntil: &lockedUntil,
		Message:     lockoutMessage(lockedUntil.Sub(now)),
	}
}

// keyTTL outlives the lock so the lock is never dropped before it lifts
func (s *LockoutService) keyTTL() time.Duration {
	return s.cfg.LockDuration + time.Minute
}

func lockoutMessage(remaining time.Duration) string {
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}

	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}

	return fmt.Sprintf("Account locked due to too many failed attempts. Try again in %d %s.", minutes, unit)
}
