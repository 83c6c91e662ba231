package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the JWT claims carried by an access token
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Session is the authenticated identity of a request. It is built once by the
// auth middleware from validated claims and never mutated afterwards.
type Session struct {
	UserID    string
	Role      string
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

func (s *Session) IsGuardian() bool { return s != nil && s.Role == RoleGuardian }

func (s *Session) IsStudent() bool { return s != nil && s.Role == RoleStudent }
