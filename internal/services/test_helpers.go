package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/google/uuid"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	CreateFunc     func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

// usersByID returns a MockUserRepository that serves the given users
func usersByID(users ...*models.User) *MockUserRepository {
	byID := make(map[string]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			if u, ok := byID[id]; ok {
				return u, nil
			}
			return nil, models.ErrNotFound
		},
	}
}

// MockTokenRevocationRepository implements TokenRevocationRepository for testing
type MockTokenRevocationRepository struct {
	RevokeTokenFunc    func(ctx context.Context, jti, userID string, expiresAt time.Time) error
	IsTokenRevokedFunc func(ctx context.Context, jti string) (bool, error)
}

func (m *MockTokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, jti, userID, expiresAt)
	}
	return nil
}

func (m *MockTokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if m.IsTokenRevokedFunc != nil {
		return m.IsTokenRevokedFunc(ctx, jti)
	}
	return false, nil
}

// MockLoginAttemptRepository records login history writes
type MockLoginAttemptRepository struct {
	RecordAttemptFunc         func(ctx context.Context, attempt *models.LoginAttempt) error
	DeleteExpiredAttemptsFunc func(ctx context.Context) (int64, error)

	mu       sync.Mutex
	Recorded []*models.LoginAttempt
}

func (m *MockLoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	m.Recorded = append(m.Recorded, attempt)
	m.mu.Unlock()

	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	return nil
}

func (m *MockLoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context) (int64, error) {
	if m.DeleteExpiredAttemptsFunc != nil {
		return m.DeleteExpiredAttemptsFunc(ctx)
	}
	return 0, nil
}

// MockTokenManager implements AccessTokenIssuer and StudentLinkTokens for testing
type MockTokenManager struct {
	GenerateAccessTokenFunc      func(user *models.User) (string, time.Time, error)
	GenerateStudentLinkTokenFunc func(studentID string) (string, time.Time, error)
	ValidateStudentLinkTokenFunc func(token string) (string, error)
}

func (m *MockTokenManager) GenerateAccessToken(user *models.User) (string, time.Time, error) {
	if m.GenerateAccessTokenFunc != nil {
		return m.GenerateAccessTokenFunc(user)
	}
	return "access-token-" + user.ID, time.Now().Add(15 * time.Minute), nil
}

func (m *MockTokenManager) GenerateStudentLinkToken(studentID string) (string, time.Time, error) {
	if m.GenerateStudentLinkTokenFunc != nil {
		return m.GenerateStudentLinkTokenFunc(studentID)
	}
	return "qr:" + studentID, time.Now().Add(10 * time.Minute), nil
}

// ValidateStudentLinkToken accepts "qr:<studentID>" by default
func (m *MockTokenManager) ValidateStudentLinkToken(token string) (string, error) {
	if m.ValidateStudentLinkTokenFunc != nil {
		return m.ValidateStudentLinkTokenFunc(token)
	}
	if len(token) > 3 && token[:3] == "qr:" {
		return token[3:], nil
	}
	return "", models.ErrUnauthorized
}

// SentEmail is one email captured by MockEmailService
type SentEmail struct {
	Kind string
	To   string
	Body string
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendGuardianVerificationEmailFunc func(ctx context.Context, to, studentName, verificationLink string, expiresAt time.Time) error
	SendLockoutNoticeFunc             func(ctx context.Context, to string, lockedUntil time.Time) error

	mu   sync.Mutex
	Sent []SentEmail
}

func (m *MockEmailService) SendGuardianVerificationEmail(ctx context.Context, to, studentName, verificationLink string, expiresAt time.Time) error {
	m.record(SentEmail{Kind: "guardian_verification", To: to, Body: verificationLink})
	if m.SendGuardianVerificationEmailFunc != nil {
		return m.SendGuardianVerificationEmailFunc(ctx, to, studentName, verificationLink, expiresAt)
	}
	return nil
}

func (m *MockEmailService) SendLockoutNotice(ctx context.Context, to string, lockedUntil time.Time) error {
	m.record(SentEmail{Kind: "lockout_notice", To: to})
	if m.SendLockoutNoticeFunc != nil {
		return m.SendLockoutNoticeFunc(ctx, to, lockedUntil)
	}
	return nil
}

func (m *MockEmailService) record(e SentEmail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, e)
}

func (m *MockEmailService) sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.Sent...)
}

// MockAuditLogRepository implements AuditLogRepository for testing
type MockAuditLogRepository struct {
	CreateFunc        func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	GetByUserIDFunc   func(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]*models.AuditLog, error)
	CountByUserIDFunc func(ctx context.Context, userID uuid.UUID) (int64, error)
	CleanupFunc       func(ctx context.Context, olderThanDays int) (int64, error)

	mu      sync.Mutex
	Created []*models.AuditLog
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	m.mu.Lock()
	m.Created = append(m.Created, log)
	m.mu.Unlock()

	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, log)
	}
	return log, nil
}

func (m *MockAuditLogRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]*models.AuditLog, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID, limit, offset)
	}
	return []*models.AuditLog{}, nil
}

func (m *MockAuditLogRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	if m.CountByUserIDFunc != nil {
		return m.CountByUserIDFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockAuditLogRepository) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx, olderThanDays)
	}
	return 0, nil
}

// eventTypes lists the event types written so far
func (m *MockAuditLogRepository) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.Created))
	for _, l := range m.Created {
		types = append(types, l.EventType)
	}
	return types
}

// MockParentalLockRepository implements ParentalLockStore for testing
type MockParentalLockRepository struct {
	UpsertFunc func(ctx context.Context, lock *models.ParentalLock) error
	GetFunc    func(ctx context.Context, studentID string) (*models.ParentalLock, error)
	DeleteFunc func(ctx context.Context, studentID string) error
}

func (m *MockParentalLockRepository) Upsert(ctx context.Context, lock *models.ParentalLock) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, lock)
	}
	return nil
}

func (m *MockParentalLockRepository) Get(ctx context.Context, studentID string) (*models.ParentalLock, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, studentID)
	}
	return nil, models.ErrNotFound
}

func (m *MockParentalLockRepository) Delete(ctx context.Context, studentID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, studentID)
	}
	return nil
}

// MockActiveLinkChecker implements ActiveLinkChecker for testing
type MockActiveLinkChecker struct {
	HasActiveLinkFunc func(ctx context.Context, guardianID, studentID string) (bool, error)
}

func (m *MockActiveLinkChecker) HasActiveLink(ctx context.Context, guardianID, studentID string) (bool, error) {
	if m.HasActiveLinkFunc != nil {
		return m.HasActiveLinkFunc(ctx, guardianID, studentID)
	}
	return false, nil
}

// NewTestUser creates an active user with the given role
func NewTestUser(id, email, name, role string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Email:     email,
		Name:      name,
		Role:      role,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestUserWithPassword creates a user with hashed password
func NewTestUserWithPassword(id, email, name, role, passwordHash string) *models.User {
	user := NewTestUser(id, email, name, role)
	user.PasswordHash = passwordHash
	return user
}

// NewTestSession creates a request session for a user id and role
func NewTestSession(userID, role string) *models.Session {
	return &models.Session{
		UserID:    userID,
		Role:      role,
		TokenID:   "jti-" + userID,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
}
