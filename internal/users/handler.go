package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/internal/view"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers user routes under /admin/users.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Post("/{id}/role", h.changeRole)
}

type formErrors map[string]string

type listData struct {
	Users      []Row
	Assignable []rbac.Role
	Errors     formErrors
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	claim := rbac.ClaimFromContext(r.Context())
	data := listData{}
	if claim != nil {
		data.Assignable = rbac.ManageableRoles(claim.Role)
	}
	rows, err := h.service.ListUsers(r.Context(), claim)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		data.Errors = formErrors{"general": shared.UserSafeMessage(err)}
		h.render(w, r, data, http.StatusInternalServerError)
		return
	}
	data.Users = rows
	h.render(w, r, data, http.StatusOK)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	role, _ := rbac.ParseRole(r.PostFormValue("role"))
	user, err := h.service.ChangeRole(r.Context(), rbac.ClaimFromContext(r.Context()), id, role)
	switch {
	case err == nil:
		h.logger.Info("user role changed", slog.String("user_id", id), slog.String("role", role.String()))
		h.redirectWithFlash(w, r, "success", user.Email+" is now "+role.Label())
	case errors.Is(err, ErrSelfChange):
		h.redirectWithFlash(w, r, "error", "You cannot change your own role")
	case errors.Is(err, ErrCannotManageRole):
		h.redirectWithFlash(w, r, "error", "You cannot assign that role")
	case errors.Is(err, shared.ErrNotFound):
		h.redirectWithFlash(w, r, "error", shared.UserSafeMessage(err))
	default:
		h.logger.Error("change role failed", slog.String("user_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "error", shared.UserSafeMessage(err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data listData, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/users.html", h.templates.Page(r, h.csrf, "Users", data)); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}
