package invitations

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/remitdesk/remitdesk/internal/platform/httpx"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/internal/view"
)

// Handler serves the invitations page and API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers the console pages under /manager/invitations.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.index)
	r.Post("/", h.create)
	r.Post("/{id}/revoke", h.revoke)
}

// MountAPI registers the JSON listing. Callers wrap it with rbac.RequireRoles.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.listJSON)
}

type inviteForm struct {
	Email string
	Role  string
}

type pageData struct {
	Form        inviteForm
	Assignable  []rbac.Role
	Invitations []Invitation
	Errors      map[string]string
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, inviteForm{}, nil, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	claim := rbac.ClaimFromContext(r.Context())
	form := inviteForm{
		Email: strings.TrimSpace(r.PostFormValue("email")),
		Role:  r.PostFormValue("role"),
	}
	role, _ := rbac.ParseRole(form.Role)
	inv, err := h.service.Create(r.Context(), claim, form.Email, role)
	if err != nil {
		errs := map[string]string{}
		switch {
		case errors.Is(err, ErrCannotManageRole):
			errs["role"] = "You cannot invite users with that role"
		case errors.Is(err, ErrAlreadyInvited):
			errs["email"] = "A pending invitation already exists for this email"
		case errors.Is(err, ErrAlreadyRegistered):
			errs["email"] = "This email already has an account"
		case errors.Is(err, httpx.ErrValidation):
			errs["email"] = "Enter a valid email address"
		default:
			h.logger.Error("create invitation", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
		}
		h.renderPage(w, r, form, errs, httpx.StatusFor(err))
		return
	}
	h.logger.Info("invitation created", slog.String("invitation_id", inv.ID), slog.String("role", inv.Role.String()))
	h.flash(r, "success", "Invitation sent to "+inv.Email)
	http.Redirect(w, r, "/manager/invitations", http.StatusSeeOther)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.service.Revoke(r.Context(), rbac.ClaimFromContext(r.Context()), id)
	switch {
	case err == nil:
		h.flash(r, "success", "Invitation revoked")
	case errors.Is(err, ErrCannotManageRole), errors.Is(err, ErrNotPending), errors.Is(err, shared.ErrNotFound):
		h.flash(r, "error", "That invitation cannot be revoked")
	default:
		h.logger.Error("revoke invitation", slog.String("invitation_id", id), slog.Any("error", err))
		h.flash(r, "error", shared.UserSafeMessage(err))
	}
	http.Redirect(w, r, "/manager/invitations", http.StatusSeeOther)
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, form inviteForm, errs map[string]string, status int) {
	claim := rbac.ClaimFromContext(r.Context())
	data := pageData{Form: form, Errors: errs}
	if claim != nil {
		data.Assignable = rbac.ManageableRoles(claim.Role)
	}
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list invitations", slog.Any("error", err))
		status = http.StatusInternalServerError
	}
	data.Invitations = items

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/invitations.html", h.templates.Page(r, h.csrf, "Invitations", data)); err != nil {
		h.logger.Error("render invitations", slog.Any("error", err))
	}
}

func (h *Handler) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

type inviterJSON struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type invitationJSON struct {
	Invitation
	InvitedByUser *inviterJSON `json:"invitedByUser"`
}

func (h *Handler) listJSON(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list invitations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]invitationJSON, 0, len(items))
	for _, inv := range items {
		item := invitationJSON{Invitation: inv}
		if inv.InvitedByEmail != "" {
			item.InvitedByUser = &inviterJSON{Name: inv.InvitedByName, Email: inv.InvitedByEmail}
		}
		out = append(out, item)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invitations": out})
}
