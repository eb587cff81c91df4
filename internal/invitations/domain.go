package invitations

import (
	"fmt"
	"time"

	"github.com/remitdesk/remitdesk/internal/platform/httpx"
	"github.com/remitdesk/remitdesk/internal/rbac"
)

// Status tracks an invitation's lifecycle.
type Status string

// Invitation statuses.
const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusExpired  Status = "EXPIRED"
	StatusRevoked  Status = "REVOKED"
)

var (
	// ErrCannotManageRole is returned when the inviter's role does not subsume the target role.
	ErrCannotManageRole = fmt.Errorf("%w: role outside inviter's authority", httpx.ErrForbidden)
	// ErrAlreadyInvited is returned when a pending invitation exists for the address.
	ErrAlreadyInvited = fmt.Errorf("%w: pending invitation already exists", httpx.ErrDuplicate)
	// ErrAlreadyRegistered is returned when the address already has an account.
	ErrAlreadyRegistered = fmt.Errorf("%w: email already registered", httpx.ErrDuplicate)
	// ErrNotPending is returned when revoking an invitation that is no longer pending.
	ErrNotPending = fmt.Errorf("%w: invitation is not pending", httpx.ErrValidation)
)

// Invitation is a single-use, expiring offer to join with a fixed role.
type Invitation struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Role           rbac.Role `json:"role"`
	Token          string    `json:"-"`
	InvitedBy      string    `json:"invitedBy"`
	Status         Status    `json:"status"`
	ExpiresAt      time.Time `json:"expiresAt"`
	CreatedAt      time.Time `json:"createdAt"`
	InvitedByName  string    `json:"-"`
	InvitedByEmail string    `json:"-"`
}

// EffectiveStatus reports EXPIRED for pending invitations past their deadline.
func (i Invitation) EffectiveStatus(now time.Time) Status {
	if i.Status == StatusPending && !now.Before(i.ExpiresAt) {
		return StatusExpired
	}
	return i.Status
}

// NewInvitation carries the fields persisted on creation.
type NewInvitation struct {
	Email     string
	Role      rbac.Role
	Token     string
	InvitedBy string
	ExpiresAt time.Time
}
