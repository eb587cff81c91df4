package users

import (
	"fmt"
	"time"

	"github.com/remitdesk/remitdesk/internal/platform/httpx"
	"github.com/remitdesk/remitdesk/internal/rbac"
)

var (
	// ErrCannotManageRole is returned when the actor's role does not subsume the current or requested role.
	ErrCannotManageRole = fmt.Errorf("%w: role outside actor's authority", httpx.ErrForbidden)
	// ErrSelfChange is returned when an actor tries to change their own role.
	ErrSelfChange = fmt.Errorf("%w: cannot change own role", httpx.ErrForbidden)
)

// User represents a user account for management.
type User struct {
	ID               string
	Email            string
	Name             string
	Role             rbac.Role
	Status           string
	OnboardingStatus string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Row pairs a user with whether the viewing actor may manage them.
type Row struct {
	User       User
	Manageable bool
}
