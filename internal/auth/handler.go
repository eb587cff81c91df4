package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	tokens         *TokenManager
	routes         *rbac.RouteTable
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tokens *TokenManager, routes *rbac.RouteTable, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if routes == nil {
		routes = rbac.DefaultRoutes()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		tokens:         tokens,
		routes:         routes,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form        loginForm
	CallbackURL string
	Errors      map[string]string
}

type registerForm struct {
	Name     string `validate:"required,max=120"`
	Password string `validate:"required,min=8"`
	Confirm  string `validate:"required,eqfield=Password"`
}

type registerPageData struct {
	Form       registerForm
	Token      string
	Invitation *PendingInvitation
	Errors     map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	data := loginPageData{CallbackURL: SafeCallback(r.URL.Query().Get(rbac.CallbackParam))}
	h.render(w, r, "pages/login.html", "Sign in", data, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	callback := SafeCallback(r.PostFormValue(rbac.CallbackParam))
	errs := h.validate(form)

	if len(errs) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err == nil {
			if err := h.signIn(w, r, user); err != nil {
				h.logger.Error("issue session token", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			h.logger.Info("user signed in", slog.String("user_id", user.ID), slog.String("role", user.Role.String()))
			http.Redirect(w, r, h.landing(user.Role, callback), http.StatusSeeOther)
			return
		}
		errs["general"] = "Invalid email or password"
	}

	form.Password = ""
	data := loginPageData{Form: form, CallbackURL: callback, Errors: errs}
	h.render(w, r, "pages/login.html", "Sign in", data, http.StatusBadRequest)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	data := registerPageData{Token: token}
	status := http.StatusOK
	inv, err := h.service.LookupInvitation(r.Context(), token)
	switch {
	case err == nil:
		data.Invitation = inv
	case errors.Is(err, ErrInvitationInvalid):
		status = http.StatusNotFound
	default:
		h.logger.Error("lookup invitation", slog.Any("error", err))
		status = http.StatusInternalServerError
	}
	h.render(w, r, "pages/register.html", "Accept invitation", data, status)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	token := r.PostFormValue("token")
	form := registerForm{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
	data := registerPageData{Token: token, Errors: h.validate(form)}

	inv, err := h.service.LookupInvitation(r.Context(), token)
	if err != nil {
		data.Errors["general"] = "This invitation is invalid or has expired"
		h.render(w, r, "pages/register.html", "Accept invitation", data, http.StatusNotFound)
		return
	}
	data.Invitation = inv

	if len(data.Errors) == 0 {
		user, err := h.service.Register(r.Context(), token, form.Name, form.Password)
		switch {
		case err == nil:
			if err := h.signIn(w, r, user); err != nil {
				h.logger.Error("issue session token", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			h.flash(r, "success", "Welcome aboard. Please complete your profile.")
			http.Redirect(w, r, "/onboarding", http.StatusSeeOther)
			return
		case errors.Is(err, ErrEmailTaken):
			data.Errors["general"] = "An account already exists for this email"
		case errors.Is(err, ErrInvitationInvalid):
			data.Errors["general"] = "This invitation is invalid or has expired"
		default:
			h.logger.Error("register", slog.Any("error", err))
			data.Errors["general"] = shared.UserSafeMessage(err)
		}
	}

	form.Password, form.Confirm = "", ""
	data.Form = form
	h.render(w, r, "pages/register.html", "Accept invitation", data, http.StatusBadRequest)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.tokens.ClearCookie(w)
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, user *User) error {
	token, expires, err := h.tokens.Issue(user)
	if err != nil {
		return err
	}
	h.tokens.SetCookie(w, token, expires)
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Regenerate(sess)
	}
	return nil
}

// landing picks the post-login destination: the callback when role may open it, else the role dashboard.
func (h *Handler) landing(role rbac.Role, callback string) string {
	if callback == "" {
		return rbac.DashboardURL(role)
	}
	if u, err := url.Parse(callback); err == nil && h.routes.Allowed(u.Path, role) {
		return callback
	}
	return rbac.DashboardURL(role)
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		}
	}
	return errs
}

func (h *Handler) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	viewData := h.templates.Page(r, h.csrfManager, title, data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

// SafeCallback accepts only same-origin absolute paths.
func SafeCallback(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	if strings.ContainsAny(raw, "\r\n") {
		return ""
	}
	return raw
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "eqfield":
		return "Passwords do not match"
	default:
		return fe.Field() + " is invalid"
	}
}
