package routes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/osnovci/internal/handlers"
	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/BradenHooton/osnovci/internal/services"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

// tokenTable validates bearer tokens of the form "<role>:<user id>"
type tokenTable struct{}

func (tokenTable) ValidateAccessToken(token string) (*models.TokenClaims, error) {
	role, userID, ok := strings.Cut(token, ":")
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &models.TokenClaims{
		Type:   "access",
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-" + userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, nil
}

func newTestRouter() http.Handler {
	linkSvc := &handlers.MockLinkService{
		IssueStudentQRFunc: func(ctx context.Context, session *models.Session) (*services.StudentQR, error) {
			return &services.StudentQR{Payload: "qr", PNG: []byte{0x89}}, nil
		},
		InitiateLinkFunc: func(ctx context.Context, qrData string, session *models.Session) (*services.LinkSummary, error) {
			return &services.LinkSummary{LinkCode: "ABCDEFGHJK", Status: models.LinkStatusInitiated}, nil
		},
	}

	r := chi.NewRouter()
	RegisterRoutes(r, Dependencies{
		Auth:         handlers.NewAuthHandler(&handlers.MockAuthService{}, nil),
		Links:        handlers.NewLinkHandler(linkSvc),
		ParentalLock: handlers.NewParentalLockHandler(&handlers.MockParentalLockService{}),
		Admin:        handlers.NewAdminHandler(&handlers.MockLockoutAdmin{}),
		Audit:        handlers.NewAuditHandler(&handlers.MockAuditTrailReader{}),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthChecker{
			"postgres": handlers.HealthCheckFunc(func(ctx context.Context) error { return nil }),
		}),
		Tokens:   tokenTable{},
		IPConfig: &pkghttp.IPConfig{},
		Logger:   slog.Default(),
	})
	return r
}

func TestRoutes_RoleGating(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
	}{
		{"health is public", "GET", "/health", "", "", http.StatusOK},
		{"metrics is public", "GET", "/metrics", "", "", http.StatusOK},
		{"me requires auth", "GET", "/auth/me", "", "", http.StatusUnauthorized},
		{"student gets qr", "GET", "/links/qr", "student:s1", "", http.StatusOK},
		{"guardian cannot get qr", "GET", "/links/qr", "guardian:g1", "", http.StatusForbidden},
		{"guardian initiates", "POST", "/links/initiate", "guardian:g1", `{"qr_data":"qr"}`, http.StatusCreated},
		{"student cannot initiate", "POST", "/links/initiate", "student:s1", `{"qr_data":"qr"}`, http.StatusForbidden},
		{"guardian cannot approve", "POST", "/links/requests/ABCDEFGHJK/approve", "guardian:g1", "", http.StatusForbidden},
		{"student approve reaches service", "POST", "/links/requests/ABCDEFGHJK/approve", "student:s1", "", http.StatusNotFound},
		{"admin cannot list links", "GET", "/links", "admin:a1", "", http.StatusForbidden},
		{"student lists links", "GET", "/links", "student:s1", "", http.StatusOK},
		{"guardian cannot unlock", "POST", "/admin/lockouts/unlock", "guardian:g1", `{"email":"a@b.com"}`, http.StatusForbidden},
		{"admin unlocks", "POST", "/admin/lockouts/unlock", "admin:a1", `{"email":"a@b.com"}`, http.StatusNoContent},
		{"student cannot set pin", "PUT", "/students/7f3c2b1e-9a4d-4c5e-8f60-1b2a3c4d5e6f/parental-lock", "student:s1", `{"pin":"1234"}`, http.StatusForbidden},
		{"guardian sets pin", "PUT", "/students/7f3c2b1e-9a4d-4c5e-8f60-1b2a3c4d5e6f/parental-lock", "guardian:g1", `{"pin":"1234"}`, http.StatusNoContent},
		{"verify is public", "POST", "/links/verify", "", `{"token":"t"}`, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.RemoteAddr = "198.51.100.10:1234"
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestRoutes_LoginIsRateLimited(t *testing.T) {
	router := newTestRouter()

	var last int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"email":"a@b.com","password":"x"}`))
		req.RemoteAddr = "198.51.100.77:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}
