package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(SecurityHeadersConfig{Env: "development"})(okHandler())
	rec := serve(handler, httptest.NewRequest(http.MethodGet, "/links/qr", nil))

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "no-referrer"},
		{"Cache-Control", "no-store"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, rec.Header().Get(tt.header), tt.header)
	}
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		proto string
		want  bool
	}{
		{"production https", "production", "https", true},
		{"production http", "production", "", false},
		{"development https", "development", "https", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			rec := serve(SecurityHeaders(SecurityHeadersConfig{Env: tt.env})(okHandler()), req)

			assert.Equal(t, tt.want, rec.Header().Get("Strict-Transport-Security") != "")
		})
	}
}
