package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/BradenHooton/osnovci/internal/models"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
	"github.com/go-chi/chi/v5"
)

// LockoutAdminInterface is the lockout surface exposed to admins
type LockoutAdminInterface interface {
	IsAccountLocked(ctx context.Context, email string) (*models.LockoutResult, error)
	UnlockAccount(ctx context.Context, email, actorID string) error
}

// AdminHandler handles admin lockout HTTP requests.
type AdminHandler struct {
	lockout LockoutAdminInterface
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(lockout LockoutAdminInterface) *AdminHandler {
	return &AdminHandler{lockout: lockout}
}

// UnlockRequest names the account to unlock
type UnlockRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// Unlock handles POST /admin/lockouts/unlock
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var actorID string
	if session := auth.GetSessionFromContext(r.Context()); session != nil {
		actorID = session.UserID
	}

	if err := h.lockout.UnlockAccount(r.Context(), req.Email, actorID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /admin/lockouts/{email}
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		pkghttp.WriteBadRequest(w, "Invalid email")
		return
	}

	status, err := h.lockout.IsAccountLocked(r.Context(), email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteOK(w, status)
}
