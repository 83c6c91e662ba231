package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/osnovci/internal/auth"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// LoginRateLimit applies to login and register, per client IP
func LoginRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: time.Minute}
}

// LinkInitiateRateLimit applies to guardians scanning QR codes, per user
func LinkInitiateRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: time.Minute}
}

// VerifyRateLimit applies to the public guardian verification endpoint, per client IP
func VerifyRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 20, Window: time.Minute}
}

// RateLimitByIP limits requests per client IP. Forwarding headers are honored
// only from trusted proxies.
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "ip:" + pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByUser limits requests per authenticated user, falling back to the
// client IP when no session is present. Must run after the auth middleware.
func RateLimitByUser(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if session := auth.GetSessionFromContext(r.Context()); session != nil {
				return "user:" + session.UserID, nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "rate limit exceeded")
}
