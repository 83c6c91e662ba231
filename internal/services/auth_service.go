package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/BradenHooton/osnovci/internal/models"
	pkgauth "github.com/BradenHooton/osnovci/pkg/auth"
	pkglogger "github.com/BradenHooton/osnovci/pkg/logger"
)

// UserRepository defines the user lookups the services need
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// LoginAttemptRepository stores the login history
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	DeleteExpiredAttempts(ctx context.Context) (int64, error)
}

// AccessTokenIssuer issues access tokens for authenticated users
type AccessTokenIssuer interface {
	GenerateAccessToken(user *models.User) (string, time.Time, error)
}

// LockoutNotifier tells an account owner their sign-in was locked
type LockoutNotifier interface {
	SendLockoutNotice(ctx context.Context, to string, lockedUntil time.Time) error
}

// AuthServiceDeps groups the collaborators of AuthService
type AuthServiceDeps struct {
	Users           UserRepository
	Tokens          AccessTokenIssuer
	Revocations     TokenRevocationRepository
	Lockout         *LockoutService
	LoginAttempts   LoginAttemptRepository
	Notifier        LockoutNotifier
	Timing          *auth.TimingDelay
	Audit           *AuditService
	LoginHistoryTTL time.Duration
}

// AuthService handles authentication business logic
type AuthService struct {
	repo            UserRepository
	tokens          AccessTokenIssuer
	revokeRepo      TokenRevocationRepository
	lockout         *LockoutService
	attempts        LoginAttemptRepository
	notifier        LockoutNotifier
	timing          *auth.TimingDelay
	audit           *AuditService
	logger          *slog.Logger
	loginHistoryTTL time.Duration
	now             func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthServiceDeps, logger *slog.Logger) *AuthService {
	ttl := deps.LoginHistoryTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	return &AuthService{
		repo:            deps.Users,
		tokens:          deps.Tokens,
		revokeRepo:      deps.Revocations,
		lockout:         deps.Lockout,
		attempts:        deps.LoginAttempts,
		notifier:        deps.Notifier,
		timing:          deps.Timing,
		audit:           deps.Audit,
		logger:          logger,
		loginHistoryTTL: ttl,
		now:             time.Now,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// AuthResponse represents the response from a successful login
type AuthResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	User        *UserResponse `json:"user"`
}

// LoginInput carries the credentials and client details of a login request
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// RegisterInput carries a self-registration request
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// Login authenticates a user and returns an access token. A locked account
// short-circuits before the password is checked.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResponse, error) {
	start := s.now()

	email := NormalizeEmail(in.Email)
	if email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrUnauthorized
	}

	status, err := s.lockout.IsAccountLocked(ctx, email)
	if err != nil {
		s.logger.Warn("lockout status unavailable, continuing", slog.Any("error", err))
	} else if status.Locked {
		s.recordHistory(ctx, email, in, false, "account_locked")
		s.audit.LogAuthEvent(ctx, models.AuditEventTypeLogin, "", false, "account_locked", in.IPAddress, in.UserAgent)
		s.timing.WaitFrom(ctx, start, false)
		return nil, LockedError(status)
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("login failed: invalid credentials")
			return nil, s.loginFailed(ctx, start, email, nil, "invalid_credentials", in)
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, in.Password); err != nil {
		s.logger.Info("login failed: invalid credentials", slog.String("user_id", user.ID))
		return nil, s.loginFailed(ctx, start, email, user, "invalid_credentials", in)
	}

	if user.Status != models.StatusActive {
		s.logger.Info("login blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		s.recordHistory(ctx, email, in, false, "account_disabled")
		s.audit.LogAuthEvent(ctx, models.AuditEventTypeLogin, user.ID, false, "account_disabled", in.IPAddress, in.UserAgent)
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrAccountDisabled
	}

	if _, err := s.lockout.RecordLoginAttempt(ctx, email, true); err != nil {
		s.logger.Error("failed to reset lockout counter",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	accessToken, expiresAt, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.recordHistory(ctx, email, in, true, "")
	s.audit.LogAuthEvent(ctx, models.AuditEventTypeLogin, user.ID, true, "", in.IPAddress, in.UserAgent)
	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.timing.WaitFrom(ctx, start, true)

	return &AuthResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        userModelToResponse(user),
	}, nil
}

// loginFailed counts the failure against the lockout and returns the error
// for the caller. The attempt that triggers the lock returns the lock error.
func (s *AuthService) loginFailed(ctx context.Context, start time.Time, email string, user *models.User, reason string, in LoginInput) error {
	result, err := s.lockout.RecordLoginAttempt(ctx, email, false)
	if err != nil {
		s.logger.Error("failed to record failed login",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
	}

	userID := ""
	if user != nil {
		userID = user.ID
	}

	s.recordHistory(ctx, email, in, false, reason)
	s.audit.LogAuthEvent(ctx, models.AuditEventTypeLogin, userID, false, reason, in.IPAddress, in.UserAgent)
	s.timing.WaitFrom(ctx, start, false)

	if result == nil || !result.Locked {
		return models.ErrUnauthorized
	}

	// Only real accounts get a notice; unknown addresses are never mailed.
	if result.JustLocked && user != nil && s.notifier != nil && result.LockedUntil != nil {
		if err := s.notifier.SendLockoutNotice(ctx, user.Email, *result.LockedUntil); err != nil {
			s.logger.Error("failed to queue lockout notice",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		}
	}

	return LockedError(result)
}

func (s *AuthService) recordHistory(ctx context.Context, email string, in LoginInput, success bool, reason string) {
	if s.attempts == nil {
		return
	}

	attempt := &models.LoginAttempt{
		Email:     email,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Success:   success,
		ExpiresAt: s.now().Add(s.loginHistoryTTL),
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}

	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
	}
}

// Register creates a new guardian or student account
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*UserResponse, error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	role := strings.ToLower(strings.TrimSpace(in.Role))

	if email == "" {
		return nil, models.NewValidationError("email is required")
	}
	if name == "" {
		return nil, models.NewValidationError("name is required")
	}
	if !models.IsValidRole(role) {
		return nil, models.NewValidationError("role must be guardian or student")
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError("password does not meet the requirements")
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: user already exists")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := pkgauth.HashPassword(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now().UTC()
	user := &models.User{
		Email:             email,
		PasswordHash:      hashedPassword,
		Name:              name,
		Role:              role,
		Status:            models.StatusActive,
		PasswordChangedAt: &now,
	}

	createdUser, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered",
		slog.String("user_id", createdUser.ID),
		slog.String("role", createdUser.Role))
	s.audit.LogAuthEvent(ctx, models.AuditEventTypeRegister, createdUser.ID, true, "", "", "")

	return userModelToResponse(createdUser), nil
}

// Logout revokes the session's access token until it would have expired
func (s *AuthService) Logout(ctx context.Context, session *models.Session) error {
	if session == nil || session.TokenID == "" {
		return models.ErrUnauthorized
	}

	if err := s.revokeRepo.RevokeToken(ctx, session.TokenID, session.UserID, session.ExpiresAt); err != nil {
		s.logger.Error("failed to revoke token", slog.String("jti", session.TokenID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogAuthEvent(ctx, models.AuditEventTypeLogout, session.UserID, true, "", "", "")
	s.logger.Info("user logged out", slog.String("user_id", session.UserID))
	return nil
}

// Me returns the current user
func (s *AuthService) Me(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get current user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return userModelToResponse(user), nil
}

// CleanupLoginHistory deletes login attempts past their retention time
func (s *AuthService) CleanupLoginHistory(ctx context.Context) (int64, error) {
	if s.attempts == nil {
		return 0, nil
	}
	return s.attempts.DeleteExpiredAttempts(ctx)
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		Status:    user.Status,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}
