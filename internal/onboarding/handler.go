package onboarding

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remitdesk/remitdesk/internal/platform/httpx"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/internal/view"
)

const draftSessionKey = "onboarding_draft"

// Handler serves the onboarding wizard and its JSON API.
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

// MountRoutes registers the HTML wizard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
	r.Post("/", h.submit)
}

// MountAPI registers the JSON endpoints. Callers wrap it with rbac.RequireRoles.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.getJSON)
	r.Post("/", h.postJSON)
}

type pageData struct {
	Form   Profile
	Errors map[string]string
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	claim := rbac.ClaimFromContext(r.Context())
	user, err := h.service.Current(r.Context(), claim)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		h.logger.Error("load onboarding user", slog.Any("error", err))
	}
	if user.Completed() {
		http.Redirect(w, r, rbac.DashboardURL(claim.Role), http.StatusSeeOther)
		return
	}
	h.render(w, r, pageData{Form: loadDraft(r)}, http.StatusOK)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	claim := rbac.ClaimFromContext(r.Context())
	profile := Profile{
		FirstName:           r.PostFormValue("firstName"),
		LastName:            r.PostFormValue("lastName"),
		PhoneNumber:         r.PostFormValue("phoneNumber"),
		DateOfBirth:         r.PostFormValue("dateOfBirth"),
		Address:             r.PostFormValue("address"),
		City:                r.PostFormValue("city"),
		State:               r.PostFormValue("state"),
		ZipCode:             r.PostFormValue("zipCode"),
		Country:             r.PostFormValue("country"),
		Occupation:          r.PostFormValue("occupation"),
		SourceOfFunds:       r.PostFormValue("sourceOfFunds"),
		PurposeOfRemittance: r.PostFormValue("purposeOfRemittance"),
	}

	_, err := h.service.Complete(r.Context(), claim, profile)
	if err != nil {
		errs := map[string]string{"general": MessageFieldsRequired}
		if !errors.Is(err, ErrIncomplete) {
			h.logger.Error("complete onboarding", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
		}
		saveDraft(r, profile)
		h.render(w, r, pageData{Form: profile, Errors: errs}, httpx.StatusFor(err))
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		sess.Delete(draftSessionKey)
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Onboarding completed successfully"})
	}
	h.logger.Info("onboarding completed", slog.String("user_id", claim.Subject))
	http.Redirect(w, r, rbac.DashboardURL(claim.Role), http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data pageData, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/onboarding.html", h.templates.Page(r, h.csrf, "Complete your profile", data)); err != nil {
		h.logger.Error("render onboarding", slog.Any("error", err))
	}
}

func (h *Handler) getJSON(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Current(r.Context(), rbac.ClaimFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) postJSON(w http.ResponseWriter, r *http.Request) {
	var profile Profile
	if err := httpx.DecodeJSON(w, r, &profile); err != nil {
		httpx.JSON(w, http.StatusBadRequest, message(MessageFieldsRequired))
		return
	}
	user, err := h.service.Complete(r.Context(), rbac.ClaimFromContext(r.Context()), profile)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "Onboarding completed successfully",
		"user":    user,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrIncomplete):
		httpx.JSON(w, http.StatusBadRequest, message(MessageFieldsRequired))
	case errors.Is(err, httpx.ErrUnauthorized):
		httpx.JSON(w, http.StatusUnauthorized, message("Unauthorized"))
	case errors.Is(err, shared.ErrNotFound):
		httpx.JSON(w, http.StatusNotFound, message("User not found"))
	default:
		h.logger.Error("onboarding api", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, message("Internal server error"))
	}
}

func message(text string) map[string]string {
	return map[string]string{"message": text}
}

func loadDraft(r *http.Request) Profile {
	var p Profile
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return p
	}
	if raw := sess.Get(draftSessionKey); raw != "" {
		_ = json.Unmarshal([]byte(raw), &p)
	}
	return p
}

func saveDraft(r *http.Request, p Profile) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return
	}
	if data, err := json.Marshal(p); err == nil {
		sess.Set(draftSessionKey, string(data))
	}
}
