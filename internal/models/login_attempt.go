package models

import "time"

// LoginAttempt is one row of the login history kept for audit purposes
type LoginAttempt struct {
	ID            string    `db:"id"`
	Email         string    `db:"email"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	AttemptTime   time.Time `db:"attempt_time"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
	ExpiresAt     time.Time `db:"expires_at"`
}
