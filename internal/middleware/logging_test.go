package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecureLogger_RedactsSensitiveQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := SecureLogger(logger)(okHandler())

	serve(handler, httptest.NewRequest(http.MethodPost, "/links/verify?token=secret-value", nil))

	assert.Contains(t, buf.String(), `"path":"/links/verify?[REDACTED]"`)
	assert.NotContains(t, buf.String(), "secret-value")
}

func TestSecureLogger_KeepsHarmlessQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := SecureLogger(logger)(okHandler())

	serve(handler, httptest.NewRequest(http.MethodGet, "/links/qr?format=json", nil))

	assert.Contains(t, buf.String(), `"path":"/links/qr?format=json"`)
	assert.Contains(t, buf.String(), `"status":200`)
}
