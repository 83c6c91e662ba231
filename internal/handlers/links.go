package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/BradenHooton/osnovci/internal/services"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
	"github.com/go-chi/chi/v5"
)

// LinkServiceInterface is the guardian/student link protocol
type LinkServiceInterface interface {
	IssueStudentQR(ctx context.Context, session *models.Session) (*services.StudentQR, error)
	InitiateLink(ctx context.Context, qrData string, session *models.Session) (*services.LinkSummary, error)
	ChildApproves(ctx context.Context, linkCode string, session *models.Session) (*services.LinkSummary, error)
	ChildRejects(ctx context.Context, linkCode string, session *models.Session) (*services.LinkSummary, error)
	VerifyGuardian(ctx context.Context, token string) (*models.ActiveLink, error)
	ListPendingForStudent(ctx context.Context, session *models.Session) ([]*models.PendingLinkRequest, error)
	GetRequestStatus(ctx context.Context, linkCode string, session *models.Session) (*services.LinkSummary, error)
	ListLinks(ctx context.Context, session *models.Session) ([]*models.LinkedAccount, error)
	RevokeLink(ctx context.Context, linkID string, session *models.Session) error
}

// LinkHandler serves the /links endpoints
type LinkHandler struct {
	service LinkServiceInterface
}

// NewLinkHandler creates a new LinkHandler
func NewLinkHandler(service LinkServiceInterface) *LinkHandler {
	return &LinkHandler{service: service}
}

// InitiateLinkRequest carries the scanned QR payload
type InitiateLinkRequest struct {
	QRData string `json:"qr_data" validate:"required,max=2048"`
}

// VerifyGuardianRequest carries the token from the verification email
type VerifyGuardianRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// QR handles GET /links/qr. Returns a PNG unless ?format=json is given.
func (h *LinkHandler) QR(w http.ResponseWriter, r *http.Request) {
	qr, err := h.service.IssueStudentQR(r.Context(), auth.GetSessionFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		pkghttp.WriteOK(w, qr)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(qr.PNG)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(qr.PNG)
}

// Pending handles GET /links/pending
func (h *LinkHandler) Pending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.ListPendingForStudent(r.Context(), auth.GetSessionFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if pending == nil {
		pending = []*models.PendingLinkRequest{}
	}
	pkghttp.WriteOK(w, pending)
}

// Initiate handles POST /links/initiate
func (h *LinkHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	summary, err := h.service.InitiateLink(r.Context(), req.QRData, auth.GetSessionFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteCreated(w, summary)
}

// RequestStatus handles GET /links/requests/{code}
func (h *LinkHandler) RequestStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetRequestStatus(r.Context(), chi.URLParam(r, "code"), auth.GetSessionFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, summary)
}

// Approve handles POST /links/requests/{code}/approve
func (h *LinkHandler) Approve(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ChildApproves(r.Context(), chi.URLParam(r, "code"), auth.GetSessionFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, summary)
}

// Reject handles POST /links/requests/{code}/reject
func (h *LinkHandler) Reject(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ChildRejects(r.Context(), chi.URLParam(r, "code"), auth.GetSessionFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, summary)
}

// Verify handles POST /links/verify. Every failure looks the same to the caller.
func (h *LinkHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyGuardianRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	link, err := h.service.VerifyGuardian(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, link)
}

// List handles GET /links
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	links, err := h.service.ListLinks(r.Context(), auth.GetSessionFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if links == nil {
		links = []*models.LinkedAccount{}
	}
	pkghttp.WriteOK(w, links)
}

// Revoke handles DELETE /links/{id}
func (h *LinkHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	linkID, ok := uuidParam(r, "id")
	if !ok {
		writeServiceError(w, models.ErrNotFound)
		return
	}

	if err := h.service.RevokeLink(r.Context(), linkID, auth.GetSessionFromContext(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
