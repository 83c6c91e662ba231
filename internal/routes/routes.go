package routes

import (
	"log/slog"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/BradenHooton/osnovci/internal/handlers"
	"github.com/BradenHooton/osnovci/internal/metrics"
	"github.com/BradenHooton/osnovci/internal/middleware"
	"github.com/BradenHooton/osnovci/internal/models"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds everything the router needs
type Dependencies struct {
	Auth         *handlers.AuthHandler
	Links        *handlers.LinkHandler
	ParentalLock *handlers.ParentalLockHandler
	Admin        *handlers.AdminHandler
	Audit        *handlers.AuditHandler
	Health       *handlers.HealthHandler

	Tokens      auth.AccessTokenValidator
	Revocations auth.TokenRevocationChecker
	Revocation  auth.RevocationConfig
	IPConfig    *pkghttp.IPConfig
	Logger      *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	byIP := func(cfg middleware.RateLimitConfig) chi.Middlewares {
		return chi.Middlewares{middleware.RateLimitByIP(cfg, deps.IPConfig)}
	}
	loginLimit := byIP(middleware.LoginRateLimit())

	// Public routes
	router.Get("/health", deps.Health.Health)
	router.Handle("/metrics", metrics.Handler())
	router.With(loginLimit...).Post("/auth/register", deps.Auth.Register)
	router.With(loginLimit...).Post("/auth/login", deps.Auth.Login)
	router.With(byIP(middleware.VerifyRateLimit())...).Post("/links/verify", deps.Links.Verify)

	// Authenticated routes
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.Tokens, deps.Revocations, deps.Revocation, deps.Logger))

		r.Post("/auth/logout", deps.Auth.Logout)
		r.Get("/auth/me", deps.Auth.Me)
		r.Get("/audit/me", deps.Audit.Me)

		r.With(auth.RequireRole(models.RoleGuardian, models.RoleStudent)).Group(func(r chi.Router) {
			r.Get("/links", deps.Links.List)
			r.Delete("/links/{id}", deps.Links.Revoke)
		})

		// Student routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleStudent))
			r.Get("/links/qr", deps.Links.QR)
			r.Get("/links/pending", deps.Links.Pending)
			r.Post("/links/requests/{code}/approve", deps.Links.Approve)
			r.Post("/links/requests/{code}/reject", deps.Links.Reject)
			r.Post("/parental-lock/verify", deps.ParentalLock.Verify)
		})

		// Guardian routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleGuardian))
			r.With(middleware.RateLimitByUser(middleware.LinkInitiateRateLimit(), deps.IPConfig)).
				Post("/links/initiate", deps.Links.Initiate)
			r.Get("/links/requests/{code}", deps.Links.RequestStatus)
			r.Put("/students/{id}/parental-lock", deps.ParentalLock.Set)
			r.Delete("/students/{id}/parental-lock", deps.ParentalLock.Clear)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Post("/admin/lockouts/unlock", deps.Admin.Unlock)
			r.Get("/admin/lockouts/{email}", deps.Admin.Status)
		})
	})
}
