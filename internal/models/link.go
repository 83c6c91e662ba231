package models

import (
	"time"
)

// LinkStatus is the state of a guardian-student link request
type LinkStatus string

const (
	LinkStatusInitiated        LinkStatus = "INITIATED"
	LinkStatusChildApproved    LinkStatus = "CHILD_APPROVED"
	LinkStatusGuardianVerified LinkStatus = "GUARDIAN_VERIFIED"
	LinkStatusRejected         LinkStatus = "REJECTED"
	LinkStatusExpired          LinkStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is possible from s
func (s LinkStatus) IsTerminal() bool {
	switch s {
	case LinkStatusGuardianVerified, LinkStatusRejected, LinkStatusExpired:
		return true
	}
	return false
}

// CanTransitionTo encodes the link state machine. GUARDIAN_VERIFIED is only
// reachable from CHILD_APPROVED.
func (s LinkStatus) CanTransitionTo(next LinkStatus) bool {
	switch s {
	case LinkStatusInitiated:
		return next == LinkStatusChildApproved || next == LinkStatusRejected || next == LinkStatusExpired
	case LinkStatusChildApproved:
		return next == LinkStatusGuardianVerified || next == LinkStatusExpired
	}
	return false
}

// LinkRequest is the handshake state between a guardian scanning a student's
// QR code and the link becoming active
type LinkRequest struct {
	ID                    string     `json:"id"`
	LinkCode              string     `json:"link_code"`
	StudentID             string     `json:"student_id"`
	GuardianID            string     `json:"guardian_id"`
	Status                LinkStatus `json:"status"`
	VerificationTokenHash *string    `json:"-"`
	ExpiresAt             time.Time  `json:"expires_at"`
	ChildApprovedAt       *time.Time `json:"child_approved_at,omitempty"`
	GuardianVerifiedAt    *time.Time `json:"guardian_verified_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// IsExpired checks whether the code can no longer be redeemed
func (r *LinkRequest) IsExpired(now time.Time) bool {
	return r.Status == LinkStatusExpired || !now.Before(r.ExpiresAt)
}

// ExpiredLinkRequest is a request moved to EXPIRED by the sweep
type ExpiredLinkRequest struct {
	Request        *LinkRequest
	PreviousStatus LinkStatus
}

// PendingLinkRequest is a request awaiting a student's decision, with the
// guardian details the student needs to decide
type PendingLinkRequest struct {
	LinkCode      string    `json:"link_code"`
	GuardianName  string    `json:"guardian_name"`
	GuardianEmail string    `json:"guardian_email"` // masked
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Link permissions granted to a guardian
const (
	PermissionViewGrades       = "view_grades"
	PermissionViewHomework     = "view_homework"
	PermissionViewSchedule     = "view_schedule"
	PermissionViewAchievements = "view_achievements"
)

// DefaultLinkPermissions are granted to every newly activated link
func DefaultLinkPermissions() []string {
	return []string{
		PermissionViewGrades,
		PermissionViewHomework,
		PermissionViewSchedule,
		PermissionViewAchievements,
	}
}

// ActiveLink is an established guardian-student relationship
type ActiveLink struct {
	ID          string     `json:"id"`
	GuardianID  string     `json:"guardian_id"`
	StudentID   string     `json:"student_id"`
	IsActive    bool       `json:"is_active"`
	Permissions []string   `json:"permissions"`
	RequestID   *string    `json:"request_id,omitempty"` // nil once the request row is pruned
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	RevokedBy   *string    `json:"revoked_by,omitempty"`
}

// HasPermission reports whether an active link grants perm
func (l *ActiveLink) HasPermission(perm string) bool {
	if l == nil || !l.IsActive {
		return false
	}
	for _, p := range l.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// LinkedAccount is an active link joined with the other party's profile
type LinkedAccount struct {
	LinkID      string    `json:"link_id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	LinkedAt    time.Time `json:"linked_at"`
}
