package auth

import (
	"errors"
	"time"

	"github.com/remitdesk/remitdesk/internal/rbac"
)

// User account statuses.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

var (
	// ErrInvitationInvalid covers unknown, expired, revoked and already used invitations.
	ErrInvitationInvalid = errors.New("auth: invitation invalid or expired")
	// ErrEmailTaken is returned when an invitation's address already has an account.
	ErrEmailTaken = errors.New("auth: email already registered")
)

// User represents an authenticated user account.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         rbac.Role
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether the account may sign in.
func (u *User) IsActive() bool {
	return u != nil && u.Status == StatusActive
}

// PendingInvitation is the view of an invitation shown on the register page.
type PendingInvitation struct {
	Email     string
	Role      rbac.Role
	ExpiresAt time.Time
}

// Registration carries a validated invitation acceptance.
type Registration struct {
	Token        string
	Name         string
	PasswordHash string
}
