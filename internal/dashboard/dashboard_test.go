package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitdesk/remitdesk/internal/onboarding"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/view"
)

type counters struct {
	calls   atomic.Int32
	users   int
	pending int
	done    int
	err     error
}

func (c *counters) CountUsers(context.Context) (int, error) {
	c.calls.Add(1)
	return c.users, c.err
}

func (c *counters) CountPending(context.Context) (int, error) {
	return c.pending, nil
}

func (c *counters) CountCompleted(context.Context) (int, error) {
	return c.done, nil
}

type profiles struct {
	status string
}

func (p profiles) Current(_ context.Context, claim *rbac.Claim) (*onboarding.UserSummary, error) {
	return &onboarding.UserSummary{ID: claim.Subject, OnboardingStatus: p.status}, nil
}

func TestStatsProviderGathersCounters(t *testing.T) {
	c := &counters{users: 7, pending: 2, done: 5}
	stats, err := NewStatsProvider(c, c, c, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Users: 7, PendingInvitations: 2, Onboarded: 5}, stats)
}

func TestStatsProviderPropagatesError(t *testing.T) {
	c := &counters{err: errors.New("db down")}
	_, err := NewStatsProvider(c, c, c, nil).Load(context.Background())
	assert.Error(t, err)
}

func TestStatsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	c := &counters{users: 3}
	p := NewStatsProvider(c, c, c, cache)

	for i := 0; i < 3; i++ {
		stats, err := p.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Users)
	}
	assert.EqualValues(t, 1, c.calls.Load())

	require.NoError(t, cache.Invalidate(context.Background()))
	c.users = 4
	stats, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Users)

	mr.FastForward(2 * time.Minute)
	_, err = p.Load(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, c.calls.Load())
}

func serve(t *testing.T, h *Handler, claim *rbac.Claim, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.ContextWithClaim(req.Context(), claim)))
		})
	})
	h.MountRoutes(r)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
	return res
}

func newHandler(t *testing.T, status string) *Handler {
	t.Helper()
	templates, err := view.NewEngine(nil)
	require.NoError(t, err)
	c := &counters{users: 12, pending: 4, done: 9}
	return NewHandler(nil, NewStatsProvider(c, c, c, nil), profiles{status: status}, nil, templates, nil)
}

func TestAdminDashboardShowsAllStats(t *testing.T) {
	res := serve(t, newHandler(t, onboarding.StatusCompleted), &rbac.Claim{Subject: "1", Role: rbac.RoleOrgAdmin}, "/admin")

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Organization")
	assert.Contains(t, body, ">12<")
	assert.Contains(t, body, ">4<")
	assert.Contains(t, body, ">9<")
	assert.NotContains(t, body, "Finish onboarding")
}

func TestManagerDashboardHidesUserCount(t *testing.T) {
	res := serve(t, newHandler(t, onboarding.StatusCompleted), &rbac.Claim{Subject: "1", Role: rbac.RoleAgentAdmin}, "/manager")

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.NotContains(t, body, ">12<")
	assert.Contains(t, body, "Pending invitations")
}

func TestDashboardPromptsOnboarding(t *testing.T) {
	res := serve(t, newHandler(t, onboarding.StatusPending), &rbac.Claim{Subject: "1", Role: rbac.RoleOrgUser}, "/dashboard")

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Finish onboarding")
}

func TestSectionPages(t *testing.T) {
	h := newHandler(t, onboarding.StatusCompleted)
	for _, path := range []string{"/clients", "/exchange", "/payout", "/settings"} {
		res := serve(t, h, &rbac.Claim{Subject: "1", Role: rbac.RoleAgentUser}, path)
		assert.Equal(t, http.StatusOK, res.Code, path)
	}
}
