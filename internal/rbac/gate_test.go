package rbac

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	seen map[Outcome]int
}

func (o *countingObserver) ObserveDecision(outcome Outcome) {
	if o.seen == nil {
		o.seen = make(map[Outcome]int)
	}
	o.seen[outcome]++
}

func staticVerifier(claim *Claim, err error) SessionVerifier {
	return SessionVerifierFunc(func(*http.Request) (*Claim, error) {
		return claim, err
	})
}

func newTestGate(v SessionVerifier) *Gate {
	return NewGate(GateConfig{
		Verifier: v,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func claimFor(role Role) *Claim {
	return &Claim{Subject: "user-1", Role: role, RawRole: string(role)}
}

func TestGateScenarios(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		claim    *Claim
		outcome  Outcome
		location string
	}{
		{"teller allowed", "/teller/transactions", claimFor(RoleAgentUser), OutcomeAllowed, ""},
		{"org user denied admin", "/admin", claimFor(RoleOrgUser), OutcomePermissionDenied, "/dashboard"},
		{"no session", "/compliance", nil, OutcomeUnauthenticated, "/login?callbackUrl=%2Fcompliance"},
		{"agent admin on login", "/login", claimFor(RoleAgentAdmin), OutcomeAuthPageRedirect, "/manager"},
		{"anonymous login page", "/login", nil, OutcomePublic, ""},
		{"static asset", "/static/app.css", nil, OutcomePublic, ""},
		{"favicon", "/favicon.ico", nil, OutcomePublic, ""},
		{"unmatched route fails open", "/reports/custom", claimFor(RoleOrgUser), OutcomeAllowed, ""},
		{"agent admin on admin users", "/admin/users", claimFor(RoleAgentAdmin), OutcomePermissionDenied, "/manager"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGate(staticVerifier(tc.claim, nil))
			d := g.Evaluate(httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.outcome, d.Outcome)
			assert.Equal(t, tc.location, d.Location())
		})
	}
}

func TestGateFailsClosedWithoutSession(t *testing.T) {
	g := newTestGate(staticVerifier(nil, nil))
	for _, path := range []string{"/dashboard", "/admin/users", "/manager", "/teller/x", "/compliance", "/onboarding", "/settings"} {
		d := g.Evaluate(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, OutcomeUnauthenticated, d.Outcome, path)
		assert.Equal(t, "/login", d.Target)
		assert.Equal(t, path, d.Callback)
	}
}

func TestGateVerifierErrorMatchesNoSession(t *testing.T) {
	failing := newTestGate(staticVerifier(claimFor(RoleOrgAdmin), errors.New("provider outage")))
	empty := newTestGate(staticVerifier(nil, nil))

	for _, path := range []string{"/admin", "/teller", "/dashboard"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, empty.Evaluate(req), failing.Evaluate(req), path)
	}
}

func TestGateCancelledRequestFailsClosed(t *testing.T) {
	called := false
	g := newTestGate(SessionVerifierFunc(func(*http.Request) (*Claim, error) {
		called = true
		return claimFor(RoleOrgAdmin), nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil).WithContext(ctx)

	d := g.Evaluate(req)
	assert.Equal(t, OutcomeUnauthenticated, d.Outcome)
	assert.False(t, called)
}

func TestGateIsIdempotent(t *testing.T) {
	g := newTestGate(staticVerifier(claimFor(RoleComplianceUser), nil))
	for _, path := range []string{"/compliance", "/teller", "/login", "/reports"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, g.Evaluate(req), g.Evaluate(req), path)
	}
}

func TestGateUnknownRole(t *testing.T) {
	g := newTestGate(staticVerifier(&Claim{Subject: "u", Role: Role("ROOT")}, nil))

	d := g.Evaluate(httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, OutcomePublic, d.Outcome)

	d = g.Evaluate(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, OutcomePermissionDenied, d.Outcome)
	assert.Equal(t, "/login?callbackUrl=%2Fdashboard", d.Location())
}

func TestGateUnrecognizedRoleIsDeniedOnEveryPath(t *testing.T) {
	g := newTestGate(staticVerifier(&Claim{Subject: "u", Role: Role("SUPERVISOR"), RawRole: "SUPERVISOR"}, nil))
	for _, path := range []string{"/admin", "/teller", "/reports/custom"} {
		d := g.Evaluate(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, OutcomePermissionDenied, d.Outcome, path)
		assert.Equal(t, "/login", d.Target, path)
		assert.Equal(t, path, d.Callback, path)
		require.NotNil(t, d.Claim, path)
		assert.Equal(t, "SUPERVISOR", d.Claim.RawRole)
	}
}

func TestGateLoginPath(t *testing.T) {
	assert.Equal(t, DefaultLoginPath, newTestGate(nil).LoginPath())
	assert.Equal(t, "/signin", NewGate(GateConfig{LoginPath: "/signin"}).LoginPath())
}

func TestGateNarrowsRawRole(t *testing.T) {
	g := newTestGate(staticVerifier(&Claim{Subject: "u", Role: Role("agent_user")}, nil))
	d := g.Evaluate(httptest.NewRequest(http.MethodGet, "/teller", nil))
	require.Equal(t, OutcomeAllowed, d.Outcome)
	assert.Equal(t, RoleAgentUser, d.Claim.Role)
	assert.Equal(t, "agent_user", d.Claim.RawRole)
}

func TestGateMiddleware(t *testing.T) {
	obs := &countingObserver{}
	g := NewGate(GateConfig{
		Verifier: staticVerifier(claimFor(RoleAgentUser), nil),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer: obs,
	})
	var seen *Claim
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/teller/transactions", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, RoleAgentUser, seen.Role)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/teller", rr.Header().Get("Location"))

	// Outside the matcher the gate is never consulted.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/onboarding", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	assert.Equal(t, 1, obs.seen[OutcomeAllowed])
	assert.Equal(t, 1, obs.seen[OutcomePermissionDenied])
}

func TestGateMatches(t *testing.T) {
	g := newTestGate(nil)
	assert.True(t, g.Matches("/admin"))
	assert.True(t, g.Matches("/admin/users"))
	assert.True(t, g.Matches("/login"))
	assert.False(t, g.Matches("/administrator"))
	assert.False(t, g.Matches("/api/admin/invitations"))
}

func TestRequireRoles(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rr := httptest.NewRecorder()
	RequireRoles(staticVerifier(nil, nil), RoleOrgAdmin)(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	RequireRoles(staticVerifier(claimFor(RoleAgentUser), nil), RoleOrgAdmin, RoleAgentAdmin)(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	RequireRoles(staticVerifier(claimFor(RoleAgentAdmin), nil), RoleOrgAdmin, RoleAgentAdmin)(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
