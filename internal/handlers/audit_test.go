package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/osnovci/internal/handlers"
	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditMe(t *testing.T) {
	actor := uuid.New()
	ua := "secret-agent"
	var gotUser string
	var gotLimit, gotOffset int
	reader := &handlers.MockAuditTrailReader{
		GetUserAuditTrailFunc: func(ctx context.Context, userID string, limit int, offset int) ([]*models.AuditLog, int64, error) {
			gotUser, gotLimit, gotOffset = userID, limit, offset
			return []*models.AuditLog{{
				ID:        uuid.New(),
				EventType: models.AuditEventTypeLinkInitiated,
				ActorID:   &actor,
				Action:    models.AuditActionCreate,
				Success:   true,
				UserAgent: &ua,
				CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			}}, 12, nil
		},
	}

	req := httptest.NewRequest("GET", "/audit/me?limit=10&offset=5", nil)
	req = handlers.WithSessionContext(req, actor.String(), models.RoleGuardian)
	w := httptest.NewRecorder()

	handlers.NewAuditHandler(reader).Me(w, req)

	var page handlers.AuditTrailPage
	handlers.AssertJSONResponse(t, w, http.StatusOK, &page)
	assert.Equal(t, actor.String(), gotUser)
	assert.Equal(t, 10, gotLimit)
	assert.Equal(t, 5, gotOffset)
	assert.Equal(t, int64(12), page.Total)
	assert.Equal(t, "12", w.Header().Get("X-Total-Count"))
	require.Len(t, page.Logs, 1)
	assert.Equal(t, "2025-03-01T12:00:00Z", page.Logs[0].CreatedAt)
	assert.NotContains(t, w.Body.String(), "secret-agent")
}

func TestAuditMe_ClampsPaging(t *testing.T) {
	var gotLimit, gotOffset int
	reader := &handlers.MockAuditTrailReader{
		GetUserAuditTrailFunc: func(ctx context.Context, userID string, limit int, offset int) ([]*models.AuditLog, int64, error) {
			gotLimit, gotOffset = limit, offset
			return nil, 0, nil
		},
	}

	req := httptest.NewRequest("GET", "/audit/me?limit=5000&offset=-3", nil)
	req = handlers.WithSessionContext(req, uuid.NewString(), models.RoleStudent)
	w := httptest.NewRecorder()

	handlers.NewAuditHandler(reader).Me(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, gotLimit)
	assert.Equal(t, 0, gotOffset)
}
