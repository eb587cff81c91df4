package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultLoginPath is the login page used when GateConfig.LoginPath is unset.
const DefaultLoginPath = "/login"

// CallbackParam carries the originally requested path through the login redirect.
const CallbackParam = "callbackUrl"

// Outcome is the terminal state of one gate evaluation.
type Outcome int

const (
	OutcomePublic Outcome = iota
	OutcomeAuthPageRedirect
	OutcomeUnauthenticated
	OutcomePermissionDenied
	OutcomeAllowed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublic:
		return "public"
	case OutcomeAuthPageRedirect:
		return "auth_page_redirect"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	case OutcomePermissionDenied:
		return "permission_denied"
	case OutcomeAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// Decision is the gate's verdict for a request.
type Decision struct {
	Outcome Outcome
	// Target is the redirect path; empty for pass-through outcomes.
	Target string
	// Callback is appended as callbackUrl on login redirects.
	Callback string
	Claim    *Claim
}

// Redirect reports whether the decision sends the caller elsewhere.
func (d Decision) Redirect() bool {
	return d.Target != ""
}

// Location renders the redirect URL including the callback parameter.
func (d Decision) Location() string {
	if d.Callback == "" {
		return d.Target
	}
	q := url.Values{}
	q.Set(CallbackParam, d.Callback)
	return d.Target + "?" + q.Encode()
}

// SessionVerifier extracts the caller's claim. A nil claim with nil error means no session.
type SessionVerifier interface {
	Verify(r *http.Request) (*Claim, error)
}

// SessionVerifierFunc adapts a function into a SessionVerifier.
type SessionVerifierFunc func(r *http.Request) (*Claim, error)

// Verify calls f(r).
func (f SessionVerifierFunc) Verify(r *http.Request) (*Claim, error) {
	return f(r)
}

// Observer receives every decision, e.g. for metrics.
type Observer interface {
	ObserveDecision(outcome Outcome)
}

// GateConfig collects the gate's collaborators.
type GateConfig struct {
	Verifier       SessionVerifier
	Routes         *RouteTable
	Logger         *slog.Logger
	Observer       Observer
	LoginPath      string
	AuthPages      []string
	PublicPrefixes []string
	// Matcher lists the path sections the middleware evaluates; other paths bypass the gate.
	Matcher []string
}

// DefaultMatcher mirrors the console's protected sections plus the auth pages.
var DefaultMatcher = []string{
	"/dashboard", "/admin", "/manager", "/teller", "/compliance", "/onboarding",
	"/clients", "/exchange", "/payout", "/settings", "/login", "/register",
}

// Gate decides, per request, whether to pass through or redirect.
type Gate struct {
	verifier SessionVerifier
	routes   *RouteTable
	logger   *slog.Logger
	observer Observer
	login    string
	auth     []string
	public   []string
	matcher  []string
}

// NewGate builds a Gate, filling defaults for unset fields.
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		verifier: cfg.Verifier,
		routes:   cfg.Routes,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		login:    cfg.LoginPath,
		auth:     append([]string(nil), cfg.AuthPages...),
		public:   append([]string(nil), cfg.PublicPrefixes...),
		matcher:  append([]string(nil), cfg.Matcher...),
	}
	if g.routes == nil {
		g.routes = DefaultRoutes()
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.login == "" {
		g.login = DefaultLoginPath
	}
	if len(g.auth) == 0 {
		g.auth = []string{g.login, "/register"}
	}
	if len(g.public) == 0 {
		g.public = []string{"/static/", "/favicon", "/api/auth/", "/healthz"}
	}
	if len(g.matcher) == 0 {
		g.matcher = append([]string(nil), DefaultMatcher...)
	}
	return g
}

// Evaluate runs the gate state machine for r.
func (g *Gate) Evaluate(r *http.Request) Decision {
	path := r.URL.Path
	if g.isPublic(path) {
		return Decision{Outcome: OutcomePublic}
	}

	if g.isAuthPage(path) {
		claim := g.verify(r)
		if claim == nil {
			return Decision{Outcome: OutcomePublic}
		}
		target := DashboardURL(claim.Role)
		// A claim that cannot reach its own dashboard would bounce back here forever.
		if !g.routes.Allowed(target, claim.Role) {
			return Decision{Outcome: OutcomePublic}
		}
		return Decision{Outcome: OutcomeAuthPageRedirect, Target: target, Claim: claim}
	}

	claim := g.verify(r)
	if claim == nil {
		return g.toLogin(path)
	}

	if g.routes.Allowed(path, claim.Role) {
		return Decision{Outcome: OutcomeAllowed, Claim: claim}
	}

	target := DashboardURL(claim.Role)
	if !g.routes.Allowed(target, claim.Role) {
		// Redirecting to a dashboard the role cannot open would loop, so deny via the login page.
		g.logger.Warn("rbac: permission denied, role has no reachable dashboard", slog.String("role", claim.RawRole), slog.String("path", path))
		return Decision{Outcome: OutcomePermissionDenied, Target: g.login, Callback: path, Claim: claim}
	}
	g.logger.Info("rbac: permission denied",
		slog.String("path", path),
		slog.String("role", claim.Role.String()),
		slog.String("subject", claim.Subject),
	)
	return Decision{Outcome: OutcomePermissionDenied, Target: target, Claim: claim}
}

// Middleware applies the gate to requests whose path falls under the matcher.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Matches(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		decision := g.Evaluate(r)
		if g.observer != nil {
			g.observer.ObserveDecision(decision.Outcome)
		}
		if decision.Redirect() {
			http.Redirect(w, r, decision.Location(), http.StatusSeeOther)
			return
		}
		if decision.Claim != nil {
			r = r.WithContext(ContextWithClaim(r.Context(), decision.Claim))
		}
		next.ServeHTTP(w, r)
	})
}

// Matches reports whether the gate is responsible for path.
func (g *Gate) Matches(path string) bool {
	for _, section := range g.matcher {
		if path == section || strings.HasPrefix(path, section+"/") {
			return true
		}
	}
	return false
}

// LoginPath returns the configured login page.
func (g *Gate) LoginPath() string {
	return g.login
}

func (g *Gate) toLogin(path string) Decision {
	return Decision{Outcome: OutcomeUnauthenticated, Target: g.login, Callback: path}
}

// verify returns nil for absent sessions and for any verification failure.
func (g *Gate) verify(r *http.Request) *Claim {
	if g.verifier == nil {
		return nil
	}
	if err := r.Context().Err(); err != nil {
		return nil
	}
	claim, err := g.verifier.Verify(r)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			g.logger.Warn("rbac: session verification failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		return nil
	}
	if claim == nil {
		return nil
	}
	narrowed := *claim
	if !narrowed.Role.Valid() {
		narrowed.Role, _ = ParseRole(string(claim.Role))
	}
	if narrowed.RawRole == "" {
		narrowed.RawRole = string(claim.Role)
	}
	return &narrowed
}

func (g *Gate) isPublic(path string) bool {
	for _, p := range g.public {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (g *Gate) isAuthPage(path string) bool {
	for _, p := range g.auth {
		if path == p {
			return true
		}
	}
	return false
}
