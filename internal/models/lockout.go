package models

import "time"

// LockoutCounter is the stored failure state for one normalized identifier
type LockoutCounter struct {
	Key         string
	Count       int
	LockedUntil *time.Time
}

// IsLocked reports whether the counter holds a lock that has not yet lifted
func (c *LockoutCounter) IsLocked(now time.Time) bool {
	return c != nil && c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

// IsExpired reports whether the counter holds a lock that has already lifted
func (c *LockoutCounter) IsExpired(now time.Time) bool {
	return c != nil && c.LockedUntil != nil && !now.Before(*c.LockedUntil)
}

// LockoutResult is returned by lockout checks and attempt recording
type LockoutResult struct {
	Locked            bool       `json:"locked"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	AttemptsRemaining *int       `json:"attempts_remaining,omitempty"`
	Message           string     `json:"message,omitempty"`

	// JustLocked is set only on the attempt that created the lock
	JustLocked bool `json:"-"`
}
