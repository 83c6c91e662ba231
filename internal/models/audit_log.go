package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for audit logging
const (
	AuditEventTypeLogin                = "login"
	AuditEventTypeLogout               = "logout"
	AuditEventTypeRegister             = "register"
	AuditEventTypeAccountLocked        = "account_locked"
	AuditEventTypeAccountUnlocked      = "account_unlocked"
	AuditEventTypeLinkInitiated        = "link_initiated"
	AuditEventTypeLinkChildApproved    = "link_child_approved"
	AuditEventTypeLinkRejected         = "link_rejected"
	AuditEventTypeLinkGuardianVerified = "link_guardian_verified"
	AuditEventTypeLinkRevoked          = "link_revoked"
	AuditEventTypeLinkExpired          = "link_expired"
	AuditEventTypeParentalLockChanged  = "parental_lock_changed"
)

// Resource types
const (
	AuditResourceTypeUser         = "user"
	AuditResourceTypeLinkRequest  = "link_request"
	AuditResourceTypeLink         = "link"
	AuditResourceTypeParentalLock = "parental_lock"
)

// Actions
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionAccess = "access"
)

type AuditLog struct {
	ID            uuid.UUID     `db:"id"`
	EventType     string        `db:"event_type"`
	ActorID       *uuid.UUID    `db:"actor_id"`
	TargetID      *uuid.UUID    `db:"target_id"`
	ResourceType  *string       `db:"resource_type"`
	ResourceID    *string       `db:"resource_id"`
	Action        string        `db:"action"`
	Success       bool          `db:"success"`
	FailureReason *string       `db:"failure_reason"`
	IPAddress     *string       `db:"ip_address"`
	UserAgent     *string       `db:"user_agent"`
	Metadata      AuditMetadata `db:"metadata"`
	CreatedAt     time.Time     `db:"created_at"`
}

// AuditMetadata is the JSONB context stored with an audit entry
type AuditMetadata map[string]any

// Scan implements sql.Scanner. NULL scans to an empty map.
func (am *AuditMetadata) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*am = AuditMetadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	m := AuditMetadata{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*am = m
	return nil
}

// Value implements driver.Valuer
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(map[string]any(am))
}

// NewLinkAuditMetadata builds the metadata recorded for a link protocol transition
func NewLinkAuditMetadata(linkCode string, from, to LinkStatus) AuditMetadata {
	md := AuditMetadata{"to_status": string(to)}
	if linkCode != "" {
		md["link_code"] = linkCode
	}
	if from != "" {
		md["from_status"] = string(from)
	}
	return md
}
