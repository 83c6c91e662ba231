package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/osnovci/internal/models"
	pkglogger "github.com/BradenHooton/osnovci/pkg/logger"
	"github.com/google/uuid"
)

// AuditLogRepository defines the audit log persistence operations
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	GetByUserID(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]*models.AuditLog, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// AuditService writes audit events to slog and to the audit_logs table.
// A failed database write is logged and never fails the calling operation.
// All Log* methods are safe on a nil receiver.
type AuditService struct {
	repo        AuditLogRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		logger:      logger,
		auditLogger: pkglogger.NewAuditLogger(logger),
	}
}

// LogAuthEvent records login, logout and registration outcomes
func (s *AuditService) LogAuthEvent(ctx context.Context, eventType, userID string, success bool, failureReason, ipAddress, userAgent string) {
	if s == nil {
		return
	}

	s.auditLogger.Auth(ctx, pkglogger.AuditEvent{
		EventType:     eventType,
		UserID:        userID,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: failureReason,
	})

	resourceType := models.AuditResourceTypeUser
	s.persist(ctx, &models.AuditLog{
		EventType:     eventType,
		ActorID:       parseUUID(userID),
		ResourceType:  &resourceType,
		ResourceID:    optionalString(userID),
		Action:        models.AuditActionAccess,
		Success:       success,
		FailureReason: optionalString(failureReason),
		IPAddress:     optionalString(ipAddress),
		UserAgent:     optionalString(userAgent),
	})
}

// LogLockoutEvent records a lock or an unlock. Email identifiers are stored masked.
func (s *AuditService) LogLockoutEvent(ctx context.Context, eventType, scope, identifier, actorID string, lockedUntil *time.Time) {
	if s == nil {
		return
	}

	s.auditLogger.Lockout(ctx, eventType, identifier, lockedUntil, actorID)

	metadata := models.AuditMetadata{"scope": scope, "identifier": pkglogger.MaskIdentifier(identifier)}
	if lockedUntil != nil {
		metadata["locked_until"] = lockedUntil.UTC().Format(time.RFC3339)
	}

	action := models.AuditActionUpdate
	if eventType == models.AuditEventTypeAccountUnlocked {
		action = models.AuditActionDelete
	}

	s.persist(ctx, &models.AuditLog{
		EventType: eventType,
		ActorID:   parseUUID(actorID),
		Action:    action,
		Success:   true,
		Metadata:  metadata,
	})
}

// LogLinkEvent records a link request state transition
func (s *AuditService) LogLinkEvent(ctx context.Context, eventType, actorID string, req *models.LinkRequest, from, to models.LinkStatus) {
	if s == nil || req == nil {
		return
	}

	target := req.StudentID
	if actorID == req.StudentID {
		target = req.GuardianID
	}

	s.logger.InfoContext(ctx, "link transition",
		slog.String("event_type", eventType),
		slog.String("link_request_id", req.ID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	action := models.AuditActionUpdate
	if from == "" {
		action = models.AuditActionCreate
	}

	resourceType := models.AuditResourceTypeLinkRequest
	s.persist(ctx, &models.AuditLog{
		EventType:    eventType,
		ActorID:      parseUUID(actorID),
		TargetID:     parseUUID(target),
		ResourceType: &resourceType,
		ResourceID:   optionalString(req.ID),
		Action:       action,
		Success:      true,
		Metadata:     models.NewLinkAuditMetadata(req.LinkCode, from, to),
	})
}

// LogLinkRevoked records an active link being revoked by one of its parties
func (s *AuditService) LogLinkRevoked(ctx context.Context, actorID string, link *models.ActiveLink) {
	if s == nil || link == nil {
		return
	}

	target := link.StudentID
	if actorID == link.StudentID {
		target = link.GuardianID
	}

	s.logger.InfoContext(ctx, "link revoked",
		slog.String("link_id", link.ID),
		slog.String("revoked_by", actorID),
	)

	resourceType := models.AuditResourceTypeLink
	s.persist(ctx, &models.AuditLog{
		EventType:    models.AuditEventTypeLinkRevoked,
		ActorID:      parseUUID(actorID),
		TargetID:     parseUUID(target),
		ResourceType: &resourceType,
		ResourceID:   optionalString(link.ID),
		Action:       models.AuditActionDelete,
		Success:      true,
	})
}

// LogParentalLockEvent records a guardian setting or clearing a student's PIN
func (s *AuditService) LogParentalLockEvent(ctx context.Context, guardianID, studentID, action string) {
	if s == nil {
		return
	}

	s.auditLogger.Account(ctx, models.AuditEventTypeParentalLockChanged, guardianID, studentID, action)

	resourceType := models.AuditResourceTypeParentalLock
	s.persist(ctx, &models.AuditLog{
		EventType:    models.AuditEventTypeParentalLockChanged,
		ActorID:      parseUUID(guardianID),
		TargetID:     parseUUID(studentID),
		ResourceType: &resourceType,
		ResourceID:   optionalString(studentID),
		Action:       action,
		Success:      true,
	})
}

// GetUserAuditTrail returns one page of a user's audit trail and the total count
func (s *AuditService) GetUserAuditTrail(ctx context.Context, userID string, limit int, offset int) ([]*models.AuditLog, int64, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, 0, models.ErrBadRequest
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.repo.GetByUserID(ctx, id, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get user audit trail: %w", err)
	}

	total, err := s.repo.CountByUserID(ctx, id)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return logs, total, nil
}

// Cleanup deletes audit rows past the retention period
func (s *AuditService) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return s.repo.Cleanup(ctx, retentionDays)
}

func (s *AuditService) persist(ctx context.Context, log *models.AuditLog) {
	if s.repo == nil {
		return
	}

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("event_type", log.EventType),
			slog.Any("error", err),
		)
	}
}

func parseUUID(id string) *uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	return &parsed
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
