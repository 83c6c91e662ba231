package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/BradenHooton/osnovci/internal/models"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
)

// AuditTrailReader reads one user's audit trail
type AuditTrailReader interface {
	GetUserAuditTrail(ctx context.Context, userID string, limit int, offset int) ([]*models.AuditLog, int64, error)
}

// AuditHandler handles audit log HTTP requests
type AuditHandler struct {
	auditService AuditTrailReader
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditService AuditTrailReader) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// AuditLogResponse represents an audit log entry in HTTP response
type AuditLogResponse struct {
	ID            string                 `json:"id"`
	EventType     string                 `json:"event_type"`
	ActorID       *string                `json:"actor_id,omitempty"`
	TargetID      *string                `json:"target_id,omitempty"`
	ResourceType  *string                `json:"resource_type,omitempty"`
	ResourceID    *string                `json:"resource_id,omitempty"`
	Action        string                 `json:"action"`
	Success       bool                   `json:"success"`
	FailureReason *string                `json:"failure_reason,omitempty"`
	IPAddress     *string                `json:"ip_address,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     string                 `json:"created_at"`
}

// AuditTrailPage is one page of the caller's audit trail
type AuditTrailPage struct {
	Logs   []*AuditLogResponse `json:"logs"`
	Total  int64               `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// Me handles GET /audit/me?limit=&offset=
func (h *AuditHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	logs, total, err := h.auditService.GetUserAuditTrail(r.Context(), session.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	page := AuditTrailPage{
		Logs:   make([]*AuditLogResponse, len(logs)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for i, log := range logs {
		page.Logs[i] = auditLogToResponse(log)
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	pkghttp.WriteOK(w, page)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// auditLogToResponse converts an audit log model to a response DTO.
// The stored user agent is left out of the caller-facing view.
func auditLogToResponse(log *models.AuditLog) *AuditLogResponse {
	resp := &AuditLogResponse{
		ID:            log.ID.String(),
		EventType:     log.EventType,
		ResourceType:  log.ResourceType,
		ResourceID:    log.ResourceID,
		Action:        log.Action,
		Success:       log.Success,
		FailureReason: log.FailureReason,
		IPAddress:     log.IPAddress,
		Metadata:      log.Metadata,
		CreatedAt:     log.CreatedAt.UTC().Format(time.RFC3339),
	}

	if log.ActorID != nil {
		actor := log.ActorID.String()
		resp.ActorID = &actor
	}
	if log.TargetID != nil {
		target := log.TargetID.String()
		resp.TargetID = &target
	}

	return resp
}
