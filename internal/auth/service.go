package auth

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/remitdesk/remitdesk/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	audit   shared.AuditRecorder
	cost    int
	changed func(ctx context.Context)
}

// NewService constructs a new Service.
func NewService(repo Repository, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit, cost: bcrypt.DefaultCost}
}

// OnChange registers fn to run after a registration adds a user.
func (s *Service) OnChange(fn func(ctx context.Context)) {
	s.changed = fn
}

// Authenticate validates email/password credentials.
// Every failure collapses to shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive() || user.PasswordHash == "" || !user.Role.Valid() {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// LookupInvitation returns the pending invitation for token.
func (s *Service) LookupInvitation(ctx context.Context, token string) (*PendingInvitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvitationInvalid
	}
	return s.repo.FindInvitation(ctx, token)
}

// Register accepts an invitation, creating the account with the invited role.
func (s *Service) Register(ctx context.Context, token, name, password string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvitationInvalid
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.CreateFromInvitation(ctx, Registration{
		Token:        token,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}
	// Registration stands even if the audit write fails.
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  user.ID,
		Action:   shared.AuditInvitationAccepted,
		Entity:   "user",
		EntityID: user.ID,
		Meta:     map[string]any{"role": string(user.Role)},
	})
	if s.changed != nil {
		s.changed(ctx)
	}
	return user, nil
}
