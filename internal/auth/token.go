package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess      = "access"
	TokenTypeStudentLink = "student_link"
)

// ErrWrongTokenType is returned when a valid token is presented where a
// different token type is expected.
var ErrWrongTokenType = errors.New("wrong token type")

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret            []byte
	accessTokenExpiry time.Duration
	qrTokenExpiry     time.Duration
	now               func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, qrExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:            []byte(secret),
		accessTokenExpiry: accessExpiry,
		qrTokenExpiry:     qrExpiry,
		now:               time.Now,
	}
}

// GenerateAccessToken creates a short-lived access token with JTI and role
func (tm *TokenManager) GenerateAccessToken(user *models.User) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, fmt.Errorf("cannot issue token: %w", models.ErrBadRequest)
	}

	now := tm.now()
	expiresAt := now.Add(tm.accessTokenExpiry)

	claims := &models.TokenClaims{
		Type:   TokenTypeAccess,
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	tokenString, err := tm.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// GenerateStudentLinkToken creates the signed payload encoded in a student's QR code.
func (tm *TokenManager) GenerateStudentLinkToken(studentID string) (string, time.Time, error) {
	if studentID == "" {
		return "", time.Time{}, fmt.Errorf("cannot issue link token: %w", models.ErrBadRequest)
	}

	now := tm.now()
	expiresAt := now.Add(tm.qrTokenExpiry)

	claims := &models.TokenClaims{
		Type:   TokenTypeStudentLink,
		UserID: studentID,
		Role:   models.RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   studentID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	tokenString, err := tm.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign link token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken verifies a token's signature and time claims and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type == "" || claims.UserID == "" {
		return nil, fmt.Errorf("invalid token: missing type or subject")
	}

	return claims, nil
}

// ValidateAccessToken validates a token and requires it to be an access token
func (tm *TokenManager) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// ValidateStudentLinkToken returns the student id carried by a QR payload
func (tm *TokenManager) ValidateStudentLinkToken(tokenString string) (string, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Type != TokenTypeStudentLink {
		return "", ErrWrongTokenType
	}
	return claims.UserID, nil
}

func (tm *TokenManager) sign(claims *models.TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}
