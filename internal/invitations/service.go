package invitations

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/remitdesk/remitdesk/internal/platform/httpx"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/jobs"
)

// DefaultTTL is how long an invitation stays redeemable.
const DefaultTTL = 7 * 24 * time.Hour

// Notifier queues invitation e-mails.
type Notifier interface {
	EnqueueInvitation(ctx context.Context, payload jobs.InvitationPayload) error
}

// Options configures a Service.
type Options struct {
	TTL     time.Duration
	BaseURL string
	Logger  *slog.Logger
	// Changed runs after an invitation is created or revoked, e.g. to drop cached counters.
	Changed func(ctx context.Context)
}

// Service implements invitation rules.
type Service struct {
	repo     Repository
	notifier Notifier
	audit    shared.AuditRecorder
	ttl      time.Duration
	baseURL  string
	logger   *slog.Logger
	changed  func(ctx context.Context)
	now      func() time.Time
}

// NewService constructs a Service. notifier and audit may be nil.
func NewService(repo Repository, notifier Notifier, audit shared.AuditRecorder, opts Options) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		audit:    audit,
		ttl:      opts.TTL,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		logger:   opts.Logger,
		changed:  opts.Changed,
		now:      time.Now,
	}
}

// Create issues an invitation for email with role on behalf of inviter and queues the e-mail.
func (s *Service) Create(ctx context.Context, inviter *rbac.Claim, email string, role rbac.Role) (*Invitation, error) {
	if inviter == nil {
		return nil, httpx.ErrUnauthorized
	}
	if !role.Valid() || !rbac.CanManageRole(inviter.Role, role) {
		return nil, ErrCannotManageRole
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return nil, fmt.Errorf("%w: invalid email address", httpx.ErrValidation)
	}

	inv, err := s.repo.Create(ctx, NewInvitation{
		Email:     strings.ToLower(addr.Address),
		Role:      role,
		Token:     uuid.NewString(),
		InvitedBy: inviter.Subject,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	})
	if err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  inviter.Subject,
		Action:   shared.AuditInvitationCreated,
		Entity:   "invitation",
		EntityID: inv.ID,
		Meta:     map[string]any{"email": inv.Email, "role": string(inv.Role)},
	})
	s.notifyChanged(ctx)

	if s.notifier != nil {
		err := s.notifier.EnqueueInvitation(ctx, jobs.InvitationPayload{
			Email:     inv.Email,
			Role:      inv.Role.Label(),
			Link:      s.RegisterLink(inv.Token),
			ExpiresAt: inv.ExpiresAt,
		})
		if err != nil {
			// Mail failure leaves the invitation in place.
			s.logger.Warn("enqueue invitation mail", slog.String("invitation_id", inv.ID), slog.Any("error", err))
		}
	}
	return inv, nil
}

// RegisterLink builds the acceptance URL for token.
func (s *Service) RegisterLink(token string) string {
	return s.baseURL + "/register?token=" + url.QueryEscape(token)
}

// List returns invitations newest first with expiry applied to the reported status.
func (s *Service) List(ctx context.Context) ([]Invitation, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range items {
		items[i].Status = items[i].EffectiveStatus(now)
	}
	return items, nil
}

// Revoke cancels a pending invitation the actor could have issued.
func (s *Service) Revoke(ctx context.Context, actor *rbac.Claim, id string) error {
	if actor == nil {
		return httpx.ErrUnauthorized
	}
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rbac.CanManageRole(actor.Role, inv.Role) {
		return ErrCannotManageRole
	}
	if inv.EffectiveStatus(s.now()) != StatusPending {
		return ErrNotPending
	}
	if err := s.repo.Revoke(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.Subject,
		Action:   shared.AuditInvitationRevoked,
		Entity:   "invitation",
		EntityID: inv.ID,
		Meta:     map[string]any{"email": inv.Email},
	})
	s.notifyChanged(ctx)
	return nil
}

func (s *Service) notifyChanged(ctx context.Context) {
	if s.changed != nil {
		s.changed(ctx)
	}
}

// CountPending reports live pending invitations.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	return s.repo.CountPending(ctx)
}
