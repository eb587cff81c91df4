package dashboard

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Stats are the headline counters on landing pages.
type Stats struct {
	Users              int  `json:"users"`
	PendingInvitations int  `json:"pending_invitations"`
	Onboarded          int  `json:"onboarded"`
	ShowUsers          bool `json:"-"`
	ShowInvitations    bool `json:"-"`
}

// UserCounter counts accounts.
type UserCounter interface {
	CountUsers(ctx context.Context) (int, error)
}

// InvitationCounter counts live invitations.
type InvitationCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// OnboardingCounter counts finished onboardings.
type OnboardingCounter interface {
	CountCompleted(ctx context.Context) (int, error)
}

// StatsProvider gathers Stats from the owning services concurrently.
type StatsProvider struct {
	users       UserCounter
	invitations InvitationCounter
	onboarding  OnboardingCounter
	cache       *Cache
}

// NewStatsProvider constructs a StatsProvider. cache may be nil.
func NewStatsProvider(users UserCounter, invitations InvitationCounter, onboarding OnboardingCounter, cache *Cache) *StatsProvider {
	return &StatsProvider{users: users, invitations: invitations, onboarding: onboarding, cache: cache}
}

// Load returns the current counters.
func (p *StatsProvider) Load(ctx context.Context) (Stats, error) {
	return p.cache.Fetch(ctx, p.compute)
}

// Invalidate drops cached counters so the next Load recomputes them.
func (p *StatsProvider) Invalidate(ctx context.Context) {
	_ = p.cache.Invalidate(ctx)
}

func (p *StatsProvider) compute(ctx context.Context) (Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := p.users.CountUsers(gctx)
		stats.Users = n
		return err
	})
	g.Go(func() error {
		n, err := p.invitations.CountPending(gctx)
		stats.PendingInvitations = n
		return err
	})
	g.Go(func() error {
		n, err := p.onboarding.CountCompleted(gctx)
		stats.Onboarded = n
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}
