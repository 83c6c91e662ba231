package models

import (
	"time"
)

// Account roles
const (
	RoleGuardian = "guardian"
	RoleStudent  = "student"
	RoleAdmin    = "admin"
)

// Account statuses
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

type User struct {
	ID                string
	Email             string
	PasswordHash      string
	Name              string
	Role              string // guardian, student or admin
	Status            string // active or disabled
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PasswordChangedAt *time.Time
}

// IsValidRole reports whether role is one that can be self-registered
func IsValidRole(role string) bool {
	return role == RoleGuardian || role == RoleStudent
}
