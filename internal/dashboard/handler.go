// Package dashboard renders the role landing pages and console sections.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remitdesk/remitdesk/internal/onboarding"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/internal/view"
)

// Page describes one landing or section page.
type Page struct {
	Path        string
	Title       string
	Description string
	Stats       bool
}

// Pages lists the console pages this handler serves.
var Pages = []Page{
	{Path: "/admin", Title: "Organization", Description: "Organization-wide administration: users, settings and reports.", Stats: true},
	{Path: "/manager", Title: "Agency", Description: "Manage your agency's staff and invitations.", Stats: true},
	{Path: "/teller", Title: "Teller", Description: "Serve customers, capture transfers and pay out remittances.", Stats: true},
	{Path: "/compliance", Title: "Compliance", Description: "Review customer profiles and flagged transfers.", Stats: true},
	{Path: "/dashboard", Title: "Dashboard", Description: "Your account at a glance."},
	{Path: "/clients", Title: "Clients", Description: "Customer directory."},
	{Path: "/exchange", Title: "Exchange", Description: "Exchange rates and currency conversion."},
	{Path: "/payout", Title: "Payout", Description: "Pending and completed payouts."},
	{Path: "/settings", Title: "Settings", Description: "Account preferences."},
}

// ProfileLookup reports the caller's onboarding state.
type ProfileLookup interface {
	Current(ctx context.Context, claim *rbac.Claim) (*onboarding.UserSummary, error)
}

// Handler renders dashboards.
type Handler struct {
	logger    *slog.Logger
	stats     *StatsProvider
	profiles  ProfileLookup
	routes    *rbac.RouteTable
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler. stats and profiles may be nil.
func NewHandler(logger *slog.Logger, stats *StatsProvider, profiles ProfileLookup, routes *rbac.RouteTable, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if routes == nil {
		routes = rbac.DefaultRoutes()
	}
	return &Handler{logger: logger, stats: stats, profiles: profiles, routes: routes, templates: templates, csrf: csrf}
}

// MountRoutes registers every page path on r.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, p := range Pages {
		r.Get(p.Path, h.page(p))
	}
}

type pageData struct {
	Description     string
	Stats           *Stats
	NeedsOnboarding bool
}

func (h *Handler) page(p Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claim := rbac.ClaimFromContext(r.Context())
		data := pageData{Description: p.Description}

		if p.Stats && h.stats != nil && claim != nil {
			stats, err := h.stats.Load(r.Context())
			if err != nil {
				h.logger.Warn("dashboard stats", slog.String("path", p.Path), slog.Any("error", err))
			} else {
				stats.ShowUsers = h.routes.Allowed("/admin/users", claim.Role)
				stats.ShowInvitations = h.routes.Allowed("/manager/invitations", claim.Role)
				data.Stats = &stats
			}
		}
		if h.profiles != nil && claim != nil {
			user, err := h.profiles.Current(r.Context(), claim)
			if err != nil {
				h.logger.Debug("dashboard profile", slog.Any("error", err))
			}
			data.NeedsOnboarding = user != nil && !user.Completed()
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := h.templates.Render(w, "pages/dashboard.html", h.templates.Page(r, h.csrf, p.Title, data)); err != nil {
			h.logger.Error("render dashboard", slog.String("path", p.Path), slog.Any("error", err))
		}
	}
}
