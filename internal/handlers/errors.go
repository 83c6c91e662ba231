package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/BradenHooton/osnovci/internal/models"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 16

// writeServiceError maps service errors to responses. Store failures reach
// here as ErrInternalServer after the service has logged them.
func writeServiceError(w http.ResponseWriter, err error) {
	var locked *models.LockedError
	var invalid *models.ValidationError

	switch {
	case errors.As(err, &locked):
		message := locked.Message
		if message == "" {
			message = "Account is temporarily locked."
		}
		pkghttp.WriteLocked(w, message, retryAfterSeconds(locked, time.Now()))
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteLocked(w, "Account is temporarily locked.", 0)
	case errors.As(err, &invalid):
		pkghttp.WriteValidationError(w, invalid.Message)
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrLinkExpired):
		pkghttp.WriteExpired(w, "Link code has expired")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrAccountDisabled):
		pkghttp.WriteForbidden(w, "Account is disabled")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "You are not allowed to do this")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Request conflicts with the current state")
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, "Too many requests")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// retryAfterSeconds rounds the remaining lock time up, never below one second
func retryAfterSeconds(e *models.LockedError, now time.Time) int {
	remaining := e.RetryAfter(now)
	seconds := int(math.Ceil(remaining.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			pkghttp.WriteBadRequest(w, "Request body is required")
			return false
		}
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}

	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteValidationError(w, err.Error())
		return false
	}
	return true
}
