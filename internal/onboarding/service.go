package onboarding

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/remitdesk/remitdesk/internal/platform/httpx"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
)

// Service applies onboarding rules.
type Service struct {
	repo      Repository
	audit     shared.AuditRecorder
	validator *validator.Validate
	changed   func(ctx context.Context)
}

// NewService constructs a Service.
func NewService(repo Repository, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit, validator: validator.New()}
}

// OnChange registers fn to run after an onboarding completes.
func (s *Service) OnChange(fn func(ctx context.Context)) {
	s.changed = fn
}

// Current returns the caller's account summary.
func (s *Service) Current(ctx context.Context, claim *rbac.Claim) (*UserSummary, error) {
	if claim == nil {
		return nil, httpx.ErrUnauthorized
	}
	return s.repo.Find(ctx, claim.Subject)
}

// Complete validates and stores the caller's profile.
func (s *Service) Complete(ctx context.Context, claim *rbac.Claim, profile Profile) (*UserSummary, error) {
	if claim == nil {
		return nil, httpx.ErrUnauthorized
	}
	profile = profile.Normalize()
	if err := s.validator.Struct(profile); err != nil {
		return nil, ErrIncomplete
	}
	user, err := s.repo.Complete(ctx, claim.Subject, profile.FullName(), profile.Details())
	if err != nil {
		return nil, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  claim.Subject,
		Action:   shared.AuditOnboardingDone,
		Entity:   "user",
		EntityID: user.ID,
	})
	if s.changed != nil {
		s.changed(ctx)
	}
	return user, nil
}

// CountCompleted reports finished onboardings.
func (s *Service) CountCompleted(ctx context.Context) (int, error) {
	return s.repo.CountCompleted(ctx)
}
