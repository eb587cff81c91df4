package users

import (
	"context"

	"github.com/remitdesk/remitdesk/internal/platform/httpx"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	UpdateRole(ctx context.Context, id string, role rbac.Role) error
	CountUsers(ctx context.Context) (int, error)
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit}
}

// ListUsers returns all users, flagged with whether actor may manage each.
func (s *Service) ListUsers(ctx context.Context, actor *rbac.Claim) ([]Row, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(users))
	for i, u := range users {
		rows[i] = Row{User: u, Manageable: actor != nil && u.ID != actor.Subject && rbac.CanManageRole(actor.Role, u.Role)}
	}
	return rows, nil
}

// ChangeRole moves a user to role. The actor must be able to manage both the
// user's current role and the new one, and may not target their own account.
func (s *Service) ChangeRole(ctx context.Context, actor *rbac.Claim, userID string, role rbac.Role) (*User, error) {
	if actor == nil {
		return nil, httpx.ErrUnauthorized
	}
	if userID == actor.Subject {
		return nil, ErrSelfChange
	}
	if !rbac.CanManageRole(actor.Role, role) {
		return nil, ErrCannotManageRole
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanManageRole(actor.Role, user.Role) {
		return nil, ErrCannotManageRole
	}
	if user.Role == role {
		return user, nil
	}
	if err := s.repo.UpdateRole(ctx, userID, role); err != nil {
		return nil, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.Subject,
		Action:   shared.AuditUserRoleChanged,
		Entity:   "user",
		EntityID: userID,
		Meta:     map[string]any{"from": string(user.Role), "to": string(role)},
	})
	user.Role = role
	return user, nil
}

// CountUsers reports the number of accounts.
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	return s.repo.CountUsers(ctx)
}
