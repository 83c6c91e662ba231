package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/BradenHooton/osnovci/internal/services"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext attaches an authenticated session, as the auth middleware would
func WithSessionContext(req *http.Request, userID, role string) *http.Request {
	session := &models.Session{UserID: userID, Role: role, TokenID: "jti-" + userID}
	return req.WithContext(auth.WithSession(req.Context(), session))
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks the status and decodes the envelope's data into target
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), "Failed to decode response JSON")
	assert.True(t, envelope.Success)

	if target != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, target))
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.False(t, resp.Success)
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc    func(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error)
	RegisterFunc func(ctx context.Context, in services.RegisterInput) (*services.UserResponse, error)
	LogoutFunc   func(ctx context.Context, session *models.Session) error
	MeFunc       func(ctx context.Context, userID string) (*services.UserResponse, error)
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, in)
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*services.UserResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAuthService) Logout(ctx context.Context, session *models.Session) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, session)
}

func (m *MockAuthService) Me(ctx context.Context, userID string) (*services.UserResponse, error) {
	if m.MeFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.MeFunc(ctx, userID)
}

// MockLinkService implements LinkServiceInterface for testing
type MockLinkService struct {
	IssueStudentQRFunc        func(ctx context.Context, session *models.Session) (*services.StudentQR, error)
	InitiateLinkFunc          func(ctx context.Context, qrData string, session *models.Session) (*services.LinkSummary, error)
	ChildApprovesFunc         func(ctx context.Context, linkCode string, session *models.Session) (*services.LinkSummary, error)
	ChildRejectsFunc          func(ctx context.Context, linkCode string, session *models.Session) (*services.LinkSummary, error)
	VerifyGuardianFunc        func(ctx context.Context, token string) (*models.ActiveLink, error)
	ListPendingForStudentFunc func(ctx context.Context, session *models.Session) ([]*models.PendingLinkRequest, error)
	GetRequestStatusFunc      func(ctx context.Context, linkCode string, session *models.Session) (*services.LinkSummary, error)
	ListLinksFunc             func(ctx context.Context, session *models.Session) ([]*models.LinkedAccount, error)
	RevokeLinkFunc            func(ctx context.Context, linkID string, session *models.Session) error
}

func (m *MockLinkService) IssueStudentQR(ctx context.Context, session *models.Session) (*services.StudentQR, error) {
	if m.IssueStudentQRFunc == nil {
		return nil, models.ErrForbidden
	}
	return m.IssueStudentQRFunc(ctx, session)
}

func (m *MockLinkService) InitiateLink(ctx context.Context, qrData string, session *models.Session) (*services.LinkSummary, error) {
	if m.InitiateLinkFunc == nil {
		return nil, models.ErrForbidden
	}
	return m.InitiateLinkFunc(ctx, qrData, session)
}

func (m *MockLinkService) ChildApproves(ctx context.Context, linkCode string, session *models.Session) (*services.LinkSummary, error) {
	if m.ChildApprovesFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ChildApprovesFunc(ctx, linkCode, session)
}

func (m *MockLinkService) ChildRejects(ctx context.Context, linkCode string, session *models.Session) (*services.LinkSummary, error) {
	if m.ChildRejectsFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ChildRejectsFunc(ctx, linkCode, session)
}

func (m *MockLinkService) VerifyGuardian(ctx context.Context, token string) (*models.ActiveLink, error) {
	if m.VerifyGuardianFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.VerifyGuardianFunc(ctx, token)
}

func (m *MockLinkService) ListPendingForStudent(ctx context.Context, session *models.Session) ([]*models.PendingLinkRequest, error) {
	if m.ListPendingForStudentFunc == nil {
		return nil, nil
	}
	return m.ListPendingForStudentFunc(ctx, session)
}

func (m *MockLinkService) GetRequestStatus(ctx context.Context, linkCode string, session *models.Session) (*services.LinkSummary, error) {
	if m.GetRequestStatusFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetRequestStatusFunc(ctx, linkCode, session)
}

func (m *MockLinkService) ListLinks(ctx context.Context, session *models.Session) ([]*models.LinkedAccount, error) {
	if m.ListLinksFunc == nil {
		return nil, nil
	}
	return m.ListLinksFunc(ctx, session)
}

func (m *MockLinkService) RevokeLink(ctx context.Context, linkID string, session *models.Session) error {
	if m.RevokeLinkFunc == nil {
		return nil
	}
	return m.RevokeLinkFunc(ctx, linkID, session)
}

// MockParentalLockService implements ParentalLockServiceInterface for testing
type MockParentalLockService struct {
	SetPINFunc    func(ctx context.Context, session *models.Session, studentID, pin string) error
	ClearPINFunc  func(ctx context.Context, session *models.Session, studentID string) error
	VerifyPINFunc func(ctx context.Context, session *models.Session, pin string) error
}

func (m *MockParentalLockService) SetPIN(ctx context.Context, session *models.Session, studentID, pin string) error {
	if m.SetPINFunc == nil {
		return nil
	}
	return m.SetPINFunc(ctx, session, studentID, pin)
}

func (m *MockParentalLockService) ClearPIN(ctx context.Context, session *models.Session, studentID string) error {
	if m.ClearPINFunc == nil {
		return nil
	}
	return m.ClearPINFunc(ctx, session, studentID)
}

func (m *MockParentalLockService) VerifyPIN(ctx context.Context, session *models.Session, pin string) error {
	if m.VerifyPINFunc == nil {
		return models.ErrForbidden
	}
	return m.VerifyPINFunc(ctx, session, pin)
}

// MockLockoutAdmin implements LockoutAdminInterface for testing
type MockLockoutAdmin struct {
	IsAccountLockedFunc func(ctx context.Context, email string) (*models.LockoutResult, error)
	UnlockAccountFunc   func(ctx context.Context, email, actorID string) error
}

func (m *MockLockoutAdmin) IsAccountLocked(ctx context.Context, email string) (*models.LockoutResult, error) {
	if m.IsAccountLockedFunc == nil {
		return &models.LockoutResult{Locked: false}, nil
	}
	return m.IsAccountLockedFunc(ctx, email)
}

func (m *MockLockoutAdmin) UnlockAccount(ctx context.Context, email, actorID string) error {
	if m.UnlockAccountFunc == nil {
		return nil
	}
	return m.UnlockAccountFunc(ctx, email, actorID)
}

// MockAuditTrailReader implements AuditTrailReader for testing
type MockAuditTrailReader struct {
	GetUserAuditTrailFunc func(ctx context.Context, userID string, limit int, offset int) ([]*models.AuditLog, int64, error)
}

func (m *MockAuditTrailReader) GetUserAuditTrail(ctx context.Context, userID string, limit int, offset int) ([]*models.AuditLog, int64, error) {
	if m.GetUserAuditTrailFunc == nil {
		return []*models.AuditLog{}, 0, nil
	}
	return m.GetUserAuditTrailFunc(ctx, userID, limit, offset)
}
