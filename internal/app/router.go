package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remitdesk/remitdesk/internal/auth"
	"github.com/remitdesk/remitdesk/internal/dashboard"
	"github.com/remitdesk/remitdesk/internal/invitations"
	"github.com/remitdesk/remitdesk/internal/observability"
	"github.com/remitdesk/remitdesk/internal/onboarding"
	"github.com/remitdesk/remitdesk/internal/platform/httpx"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/internal/users"
	"github.com/remitdesk/remitdesk/jobs"
	"github.com/remitdesk/remitdesk/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Verifier       rbac.SessionVerifier
	Gate           *rbac.Gate
	Metrics        *observability.Metrics

	AuthHandler       *auth.Handler
	DashboardHandler  *dashboard.Handler
	InvitationHandler *invitations.Handler
	OnboardingHandler *onboarding.Handler
	UsersHandler      *users.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with RemitDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Gate:           params.Gate,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, rootTarget(params.Verifier, loginPath(params.Gate), r), http.StatusSeeOther)
	})

	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}
	if params.DashboardHandler != nil {
		params.DashboardHandler.MountRoutes(r)
	}
	if params.UsersHandler != nil {
		r.Route("/admin/users", params.UsersHandler.MountRoutes)
	}
	if params.InvitationHandler != nil {
		r.Route("/manager/invitations", params.InvitationHandler.MountRoutes)
	}
	if params.OnboardingHandler != nil {
		r.Route("/onboarding", params.OnboardingHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		if params.InvitationHandler != nil {
			api.With(rbac.RequireRoles(params.Verifier, rbac.RoleOrgAdmin, rbac.RoleAgentAdmin)).
				Route("/admin/invitations", params.InvitationHandler.MountAPI)
		}
		if params.OnboardingHandler != nil {
			api.With(rbac.RequireRoles(params.Verifier, rbac.Roles()...)).
				Route("/onboarding", params.OnboardingHandler.MountAPI)
		}
		if params.JobHandler != nil {
			api.With(rbac.RequireRoles(params.Verifier, rbac.RoleOrgAdmin)).
				Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// rootTarget sends signed-in callers to their dashboard and everyone else to the login page.
func rootTarget(verifier rbac.SessionVerifier, login string, r *http.Request) string {
	if verifier == nil {
		return login
	}
	claim, err := verifier.Verify(r)
	if err != nil || claim == nil || !claim.Role.Valid() {
		return login
	}
	return rbac.DashboardURL(claim.Role)
}

func loginPath(gate *rbac.Gate) string {
	if gate == nil {
		return rbac.DefaultLoginPath
	}
	return gate.LoginPath()
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
