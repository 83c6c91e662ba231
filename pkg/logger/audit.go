package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is an authentication outcome written to the audit stream
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
}

// AuditLogger writes security events as structured "audit" records, tagged
// with an audit_type so they can be routed apart from request logs
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// Auth logs a login, logout or registration. Failures are logged at Warn.
func (al *AuditLogger) Auth(ctx context.Context, event AuditEvent) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}

	al.emit(ctx, level, "auth", event.EventType,
		slog.Bool("success", event.Success),
		optional("user_id", event.UserID),
		optional("ip_address", event.IPAddress),
		optional("user_agent", event.UserAgent),
		optional("failure_reason", event.FailureReason),
	)
}

// Lockout logs a lock or unlock. Email identifiers are masked.
func (al *AuditLogger) Lockout(ctx context.Context, eventType, identifier string, lockedUntil *time.Time, actorID string) {
	until := slog.Attr{}
	if lockedUntil != nil {
		until = slog.String("locked_until", lockedUntil.UTC().Format(time.RFC3339))
	}

	al.emit(ctx, slog.LevelWarn, "lockout", eventType,
		slog.String("identifier", MaskIdentifier(identifier)),
		until,
		optional("actor_id", actorID),
	)
}

// Account logs a change one user made to another user's account state
func (al *AuditLogger) Account(ctx context.Context, eventType, actorID, targetID, action string) {
	al.emit(ctx, slog.LevelInfo, "account", eventType,
		slog.String("actor_id", actorID),
		optional("target_id", targetID),
		optional("action", action),
	)
}

func (al *AuditLogger) emit(ctx context.Context, level slog.Level, auditType, eventType string, attrs ...slog.Attr) {
	record := make([]slog.Attr, 0, len(attrs)+3)
	record = append(record,
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
	for _, a := range attrs {
		if a.Key != "" {
			record = append(record, a)
		}
	}

	al.logger.LogAttrs(ctx, level, "audit", record...)
}

// optional drops empty values
func optional(key, value string) slog.Attr {
	if value == "" {
		return slog.Attr{}
	}
	return slog.String(key, value)
}
