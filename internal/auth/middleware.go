package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/osnovci/internal/models"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
)

type contextKey string

const sessionContextKey contextKey = "session"

// TokenRevocationChecker reports whether a token id has been revoked
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// RevocationConfig holds configuration for token revocation behavior
type RevocationConfig struct {
	FailClosed bool // deny access when the revocation store is unreachable
}

// AccessTokenValidator validates bearer tokens
type AccessTokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// AuthMiddleware validates the bearer token once per request and stores the
// resulting Session in the request context.
func AuthMiddleware(tv AccessTokenValidator, revocationChecker TokenRevocationChecker, revocationConfig RevocationConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tv.ValidateAccessToken(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			if revocationChecker != nil && claims.ID != "" {
				revoked, err := revocationChecker.IsTokenRevoked(r.Context(), claims.ID)
				if err != nil {
					if logger != nil {
						logger.Error("token revocation check failed",
							slog.String("jti", claims.ID),
							slog.Any("error", err),
						)
					}
					if revocationConfig.FailClosed {
						pkghttp.WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "unable to verify token status")
						return
					}
				}
				if revoked {
					pkghttp.WriteUnauthorized(w, "token has been revoked")
					return
				}
			}

			session := &models.Session{
				UserID:  claims.UserID,
				Role:    claims.Role,
				Email:   claims.Email,
				TokenID: claims.ID,
			}
			if claims.ExpiresAt != nil {
				session.ExpiresAt = claims.ExpiresAt.Time
			} else {
				session.ExpiresAt = time.Now()
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// RequireRole allows the request through only if the session has one of the given roles.
// Must run after AuthMiddleware.
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := GetSessionFromContext(r.Context())
			if session == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			if _, ok := allowed[session.Role]; !ok {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns a copy of ctx carrying session
func WithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// GetSessionFromContext returns the request session, or nil for unauthenticated requests
func GetSessionFromContext(ctx context.Context) *models.Session {
	session, ok := ctx.Value(sessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}
