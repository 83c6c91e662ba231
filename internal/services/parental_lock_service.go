package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/osnovci/internal/models"
	pkgauth "github.com/BradenHooton/osnovci/pkg/auth"
)

// ParentalLockStore persists hashed parental-lock PINs
type ParentalLockStore interface {
	Upsert(ctx context.Context, lock *models.ParentalLock) error
	Get(ctx context.Context, studentID string) (*models.ParentalLock, error)
	Delete(ctx context.Context, studentID string) error
}

// ActiveLinkChecker reports whether a guardian is actively linked to a student
type ActiveLinkChecker interface {
	HasActiveLink(ctx context.Context, guardianID, studentID string) (bool, error)
}

// ParentalLockService manages the PIN a guardian sets on a student account.
// There is no default PIN: a student without a stored hash cannot unlock.
type ParentalLockService struct {
	store   ParentalLockStore
	links   ActiveLinkChecker
	lockout *LockoutService
	audit   *AuditService
	logger  *slog.Logger
	now     func() time.Time
}

// NewParentalLockService creates a new ParentalLockService
func NewParentalLockService(store ParentalLockStore, links ActiveLinkChecker, lockout *LockoutService, audit *AuditService, logger *slog.Logger) *ParentalLockService {
	return &ParentalLockService{
		store:   store,
		links:   links,
		lockout: lockout,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// SetPIN stores a new PIN for a student the guardian is linked to
func (s *ParentalLockService) SetPIN(ctx context.Context, session *models.Session, studentID, pin string) error {
	if err := s.requireLinkedGuardian(ctx, session, studentID); err != nil {
		return err
	}

	if err := pkgauth.ValidatePIN(pin); err != nil {
		return models.NewValidationError("PIN must be 4 to 8 digits")
	}

	hash, err := pkgauth.HashPIN(pin)
	if err != nil {
		s.logger.Error("failed to hash PIN", slog.Any("error", err))
		return models.ErrInternalServer
	}

	err = s.store.Upsert(ctx, &models.ParentalLock{
		StudentID: studentID,
		PINHash:   hash,
		UpdatedBy: session.UserID,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to store PIN",
			slog.String("student_id", studentID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	// A new PIN starts with a clean attempt count.
	if _, err := s.lockout.RecordPINAttempt(ctx, studentID, true); err != nil {
		s.logger.Error("failed to reset PIN lockout", slog.String("student_id", studentID), slog.Any("error", err))
	}

	s.audit.LogParentalLockEvent(ctx, session.UserID, studentID, models.AuditActionUpdate)
	return nil
}

// ClearPIN removes a student's PIN
func (s *ParentalLockService) ClearPIN(ctx context.Context, session *models.Session, studentID string) error {
	if err := s.requireLinkedGuardian(ctx, session, studentID); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, studentID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to clear PIN",
			slog.String("student_id", studentID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogParentalLockEvent(ctx, session.UserID, studentID, models.AuditActionDelete)
	return nil
}

// VerifyPIN checks the student's PIN. Wrong PINs count toward a lockout.
func (s *ParentalLockService) VerifyPIN(ctx context.Context, session *models.Session, pin string) error {
	if !session.IsStudent() {
		return models.ErrForbidden
	}
	studentID := session.UserID

	status, err := s.lockout.IsPINLocked(ctx, studentID)
	if err != nil {
		s.logger.Error("failed to check PIN lockout", slog.String("student_id", studentID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if status.Locked {
		return LockedError(status)
	}

	lock, err := s.store.Get(ctx, studentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrForbidden
		}
		s.logger.Error("failed to load PIN", slog.String("student_id", studentID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !pkgauth.ComparePIN(lock.PINHash, pin) {
		result, err := s.lockout.RecordPINAttempt(ctx, studentID, false)
		if err != nil {
			s.logger.Error("failed to record PIN attempt", slog.String("student_id", studentID), slog.Any("error", err))
		}
		if result != nil && result.Locked {
			return LockedError(result)
		}
		return models.ErrForbidden
	}

	if _, err := s.lockout.RecordPINAttempt(ctx, studentID, true); err != nil {
		s.logger.Error("failed to reset PIN lockout", slog.String("student_id", studentID), slog.Any("error", err))
	}

	return nil
}

func (s *ParentalLockService) requireLinkedGuardian(ctx context.Context, session *models.Session, studentID string) error {
	if !session.IsGuardian() {
		return models.ErrForbidden
	}

	linked, err := s.links.HasActiveLink(ctx, session.UserID, studentID)
	if err != nil {
		s.logger.Error("failed to check guardian link",
			slog.String("guardian_id", session.UserID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !linked {
		return models.ErrForbidden
	}

	return nil
}
