package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/BradenHooton/osnovci/internal/services"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error)
	Register(ctx context.Context, in services.RegisterInput) (*services.UserResponse, error)
	Logout(ctx context.Context, session *models.Session) error
	Me(ctx context.Context, userID string) (*services.UserResponse, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Role     string `json:"role" validate:"required,oneof=guardian student"`
}

// Login handles POST /auth/login. A locked account gets 403 with Retry-After.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: pkghttp.UserAgent(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, resp)
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteCreated(w, user)
}

// Logout handles POST /auth/logout by revoking the current access token
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), session); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.service.Me(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, user)
}
