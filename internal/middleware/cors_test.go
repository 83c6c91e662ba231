package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS_AllowedOrigin(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://app.osnovci.example"}))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Origin", "https://app.osnovci.example")
	rec := serve(handler, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.osnovci.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://app.osnovci.example"}))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := serve(handler, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://app.osnovci.example"}))(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/links/initiate", nil)
	req.Header.Set("Origin", "https://app.osnovci.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := serve(handler, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}
