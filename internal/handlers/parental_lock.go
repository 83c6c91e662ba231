package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/BradenHooton/osnovci/internal/models"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
)

// ParentalLockServiceInterface manages student PINs
type ParentalLockServiceInterface interface {
	SetPIN(ctx context.Context, session *models.Session, studentID, pin string) error
	ClearPIN(ctx context.Context, session *models.Session, studentID string) error
	VerifyPIN(ctx context.Context, session *models.Session, pin string) error
}

// ParentalLockHandler serves the parental lock endpoints
type ParentalLockHandler struct {
	service ParentalLockServiceInterface
}

// NewParentalLockHandler creates a new ParentalLockHandler
func NewParentalLockHandler(service ParentalLockServiceInterface) *ParentalLockHandler {
	return &ParentalLockHandler{service: service}
}

// PINRequest carries a parental lock PIN. Format rules live in the service.
type PINRequest struct {
	PIN string `json:"pin" validate:"required,max=64"`
}

// Set handles PUT /students/{id}/parental-lock
func (h *ParentalLockHandler) Set(w http.ResponseWriter, r *http.Request) {
	studentID, ok := uuidParam(r, "id")
	if !ok {
		writeServiceError(w, models.ErrForbidden)
		return
	}

	var req PINRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.SetPIN(r.Context(), auth.GetSessionFromContext(r.Context()), studentID, req.PIN)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /students/{id}/parental-lock
func (h *ParentalLockHandler) Clear(w http.ResponseWriter, r *http.Request) {
	studentID, ok := uuidParam(r, "id")
	if !ok {
		writeServiceError(w, models.ErrForbidden)
		return
	}

	err := h.service.ClearPIN(r.Context(), auth.GetSessionFromContext(r.Context()), studentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Verify handles POST /parental-lock/verify
func (h *ParentalLockHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req PINRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.VerifyPIN(r.Context(), auth.GetSessionFromContext(r.Context()), req.PIN); err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, map[string]bool{"unlocked": true})
}
