package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "SecurePassword123!"

// testPasswordHash uses the minimum bcrypt cost to keep tests fast
func testPasswordHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

type authTestEnv struct {
	svc      *AuthService
	users    *MockUserRepository
	attempts *MockLoginAttemptRepository
	revoke   *MockTokenRevocationRepository
	mailer   *MockEmailService
	store    *memoryLockoutStore
	audit    *MockAuditLogRepository
}

func newAuthTestEnv(users *MockUserRepository) *authTestEnv {
	env := &authTestEnv{
		users:    users,
		attempts: &MockLoginAttemptRepository{},
		revoke:   &MockTokenRevocationRepository{},
		mailer:   &MockEmailService{},
		store:    newMemoryLockoutStore(),
		audit:    &MockAuditLogRepository{},
	}

	logger := slog.Default()
	audit := NewAuditService(env.audit, logger)
	lockout := NewLockoutService(env.store, audit, DefaultLockoutConfig(), logger)

	env.svc = NewAuthService(AuthServiceDeps{
		Users:         users,
		Tokens:        &MockTokenManager{},
		Revocations:   env.revoke,
		Lockout:       lockout,
		LoginAttempts: env.attempts,
		Notifier:      env.mailer,
		Audit:         audit,
	}, logger)

	return env
}

func loginInput(email, password string) LoginInput {
	return LoginInput{Email: email, Password: password, IPAddress: "203.0.113.7", UserAgent: "test-agent"}
}

// ============================================================================
// Register Tests
// ============================================================================

func TestAuthService_Register_Success(t *testing.T) {
	var created *models.User
	users := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			user.ID = "user123"
			user.CreatedAt = time.Now()
			created = user
			return user, nil
		},
	}
	env := newAuthTestEnv(users)

	resp, err := env.svc.Register(context.Background(), RegisterInput{
		Email:    "  Student@Example.com ",
		Password: testPassword,
		Name:     "Ana",
		Role:     "student",
	})

	require.NoError(t, err)
	assert.Equal(t, "user123", resp.ID)
	assert.Equal(t, "student@example.com", resp.Email)
	assert.Equal(t, models.RoleStudent, resp.Role)
	assert.Equal(t, models.StatusActive, resp.Status)

	require.NotNil(t, created)
	assert.NotEqual(t, testPassword, created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte(testPassword)))
	assert.Contains(t, env.audit.eventTypes(), models.AuditEventTypeRegister)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return NewTestUser("existing", email, "Existing", models.RoleGuardian), nil
		},
	}
	env := newAuthTestEnv(users)

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "user@example.com", Password: testPassword, Name: "Dup", Role: "guardian",
	})

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAuthService_Register_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"missing email", RegisterInput{Password: testPassword, Name: "A", Role: "student"}},
		{"missing name", RegisterInput{Email: "a@example.com", Password: testPassword, Role: "student"}},
		{"admin role", RegisterInput{Email: "a@example.com", Password: testPassword, Name: "A", Role: "admin"}},
		{"unknown role", RegisterInput{Email: "a@example.com", Password: testPassword, Name: "A", Role: "principal"}},
		{"weak password", RegisterInput{Email: "a@example.com", Password: "password", Name: "A", Role: "guardian"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAuthTestEnv(&MockUserRepository{})

			_, err := env.svc.Register(context.Background(), tt.input)

			assert.ErrorIs(t, err, models.ErrBadRequest)
			var verr *models.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestAuthService_Register_CreateConflict(t *testing.T) {
	users := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	env := newAuthTestEnv(users)

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email: "race@example.com", Password: testPassword, Name: "Race", Role: "guardian",
	})

	assert.ErrorIs(t, err, models.ErrConflict)
}

// ============================================================================
// Login Tests
// ============================================================================

func TestAuthService_Login_Success(t *testing.T) {
	user := NewTestUserWithPassword("user123", "user@example.com", "User", models.RoleGuardian, testPasswordHash(t))
	env := newAuthTestEnv(&MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	})
	ctx := context.Background()

	_, err := env.svc.Login(ctx, loginInput("user@example.com", "wrong"))
	require.ErrorIs(t, err, models.ErrUnauthorized)

	resp, err := env.svc.Login(ctx, loginInput("USER@example.com", testPassword))
	require.NoError(t, err)

	assert.Equal(t, "access-token-user123", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "user123", resp.User.ID)
	assert.False(t, env.store.has("user@example.com"), "success should delete the counter")

	require.Len(t, env.attempts.Recorded, 2)
	assert.False(t, env.attempts.Recorded[0].Success)
	assert.True(t, env.attempts.Recorded[1].Success)
	assert.Equal(t, "203.0.113.7", env.attempts.Recorded[1].IPAddress)
}

func TestAuthService_Login_UnknownEmailCountsTowardLockout(t *testing.T) {
	env := newAuthTestEnv(&MockUserRepository{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := env.svc.Login(ctx, loginInput("ghost@example.com", "whatever"))
		require.ErrorIs(t, err, models.ErrUnauthorized)
	}

	_, err := env.svc.Login(ctx, loginInput("ghost@example.com", "whatever"))
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Empty(t, env.mailer.sent(), "unknown addresses must not be mailed")
}

func TestAuthService_Login_FifthFailureLocksAndNotifies(t *testing.T) {
	user := NewTestUserWithPassword("user123", "user@example.com", "User", models.RoleStudent, testPasswordHash(t))
	env := newAuthTestEnv(&MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := env.svc.Login(ctx, loginInput("user@example.com", "wrong"))
		require.ErrorIs(t, err, models.ErrUnauthorized)
	}

	_, err := env.svc.Login(ctx, loginInput("user@example.com", "wrong"))

	var locked *models.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Contains(t, locked.Message, "30 minutes")

	sent := env.mailer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "lockout_notice", sent[0].Kind)
	assert.Equal(t, "user@example.com", sent[0].To)
	assert.Contains(t, env.audit.eventTypes(), models.AuditEventTypeAccountLocked)
}

func TestAuthService_Login_LockedShortCircuits(t *testing.T) {
	user := NewTestUserWithPassword("user123", "user@example.com", "User", models.RoleStudent, testPasswordHash(t))
	lookups := 0
	env := newAuthTestEnv(&MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			lookups++
			return user, nil
		},
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = env.svc.Login(ctx, loginInput("user@example.com", "wrong"))
	}
	lookupsBefore := lookups

	// Even the right password is refused while locked.
	_, err := env.svc.Login(ctx, loginInput("user@example.com", testPassword))

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Equal(t, lookupsBefore, lookups, "locked login must not reach the password check")
	assert.Len(t, env.mailer.sent(), 1, "notice is sent once per lock")
}

func TestAuthService_Login_DisabledAccount(t *testing.T) {
	user := NewTestUserWithPassword("user123", "user@example.com", "User", models.RoleGuardian, testPasswordHash(t))
	user.Status = models.StatusDisabled
	env := newAuthTestEnv(&MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	})

	_, err := env.svc.Login(context.Background(), loginInput("user@example.com", testPassword))

	assert.ErrorIs(t, err, models.ErrAccountDisabled)
}

func TestAuthService_Login_EmptyEmail(t *testing.T) {
	env := newAuthTestEnv(&MockUserRepository{})

	_, err := env.svc.Login(context.Background(), loginInput("   ", testPassword))

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Empty(t, env.attempts.Recorded)
}

func TestAuthService_Login_LockoutStoreDownStillAuthenticates(t *testing.T) {
	user := NewTestUserWithPassword("user123", "user@example.com", "User", models.RoleGuardian, testPasswordHash(t))
	env := newAuthTestEnv(&MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	})
	env.store.err = errors.New("redis down")

	resp, err := env.svc.Login(context.Background(), loginInput("user@example.com", testPassword))

	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestAuthService_Login_RepositoryError(t *testing.T) {
	env := newAuthTestEnv(&MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return nil, errors.New("connection reset")
		},
	})

	_, err := env.svc.Login(context.Background(), loginInput("user@example.com", testPassword))

	assert.ErrorIs(t, err, models.ErrInternalServer)
}

// ============================================================================
// Logout / Me Tests
// ============================================================================

func TestAuthService_Logout_RevokesTokenID(t *testing.T) {
	env := newAuthTestEnv(&MockUserRepository{})
	session := NewTestSession("user123", models.RoleGuardian)

	var revokedJTI string
	var revokedUntil time.Time
	env.revoke.RevokeTokenFunc = func(ctx context.Context, jti, userID string, expiresAt time.Time) error {
		revokedJTI = jti
		revokedUntil = expiresAt
		return nil
	}

	require.NoError(t, env.svc.Logout(context.Background(), session))
	assert.Equal(t, session.TokenID, revokedJTI)
	assert.Equal(t, session.ExpiresAt, revokedUntil)
}

func TestAuthService_Logout_Errors(t *testing.T) {
	env := newAuthTestEnv(&MockUserRepository{})

	assert.ErrorIs(t, env.svc.Logout(context.Background(), nil), models.ErrUnauthorized)

	env.revoke.RevokeTokenFunc = func(ctx context.Context, jti, userID string, expiresAt time.Time) error {
		return errors.New("redis down")
	}
	err := env.svc.Logout(context.Background(), NewTestSession("user123", models.RoleStudent))
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestAuthService_Me(t *testing.T) {
	user := NewTestUser("user123", "user@example.com", "User", models.RoleStudent)
	env := newAuthTestEnv(usersByID(user))

	resp, err := env.svc.Me(context.Background(), "user123")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", resp.Email)

	_, err = env.svc.Me(context.Background(), "deleted-user")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
