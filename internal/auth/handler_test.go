package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/remitdesk/remitdesk/internal/auth"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/internal/view"
	_ "github.com/remitdesk/remitdesk/testing"
)

type stubRepo struct {
	user        *auth.User
	invitation  *auth.PendingInvitation
	registered  *auth.Registration
	registerErr error
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindInvitation(_ context.Context, token string) (*auth.PendingInvitation, error) {
	if s.invitation == nil || token != "good-token" {
		return nil, auth.ErrInvitationInvalid
	}
	return s.invitation, nil
}

func (s *stubRepo) CreateFromInvitation(_ context.Context, reg auth.Registration) (*auth.User, error) {
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	if s.invitation == nil || reg.Token != "good-token" {
		return nil, auth.ErrInvitationInvalid
	}
	s.registered = &reg
	return &auth.User{
		ID:           "6f1c1a52-8a43-4c54-9a4e-5a3f1a0d7e11",
		Email:        s.invitation.Email,
		Name:         reg.Name,
		PasswordHash: reg.PasswordHash,
		Role:         s.invitation.Role,
		Status:       auth.StatusActive,
	}, nil
}

type fixture struct {
	router   chi.Router
	sessions *shared.SessionManager
	tokens   *auth.TokenManager
}

func newFixture(t *testing.T, repo auth.Repository) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine(nil)
	require.NoError(t, err)
	tokens, err := auth.NewTokenManager("secret", "remitdesk", time.Hour, false)
	require.NoError(t, err)

	handler := auth.NewHandler(nil, auth.NewService(repo, nil), tokens, nil, templates, sessions, csrf)
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			require.NoError(t, err)
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	handler.MountRoutes(router)
	return fixture{router: router, sessions: sessions, tokens: tokens}
}

func activeUser(t *testing.T, role rbac.Role) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{
		ID:           "2b3f9d0e-51e7-4f0b-9d7a-0e3c1f2a4b5c",
		Email:        "user@example.com",
		Name:         "User",
		PasswordHash: string(hash),
		Role:         role,
		Status:       auth.StatusActive,
	}
}

func postForm(router http.Handler, path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func tokenCookie(res *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range res.Result().Cookies() {
		if c.Name == auth.TokenCookieName {
			return c
		}
	}
	return nil
}

func TestLoginPageCarriesCallback(t *testing.T) {
	f := newFixture(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/login?callbackUrl=%2Fteller", nil)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `name="callbackUrl" value="/teller"`)
}

func TestLoginPageDropsForeignCallback(t *testing.T) {
	f := newFixture(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/login?callbackUrl=https%3A%2F%2Fevil.example", nil)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.NotContains(t, res.Body.String(), "evil.example")
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, &stubRepo{user: activeUser(t, rbac.RoleAgentUser)})

	res := postForm(f.router, "/login", url.Values{"email": {"user@example.com"}, "password": {"wrong-password"}})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password")
	assert.Nil(t, tokenCookie(res))
}

func TestLoginValidationErrors(t *testing.T) {
	f := newFixture(t, &stubRepo{})

	res := postForm(f.router, "/login", url.Values{"email": {"not-an-email"}, "password": {"short"}})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Enter a valid email address")
}

func TestLoginRedirectsToRoleDashboard(t *testing.T) {
	f := newFixture(t, &stubRepo{user: activeUser(t, rbac.RoleAgentUser)})

	res := postForm(f.router, "/login", url.Values{"email": {"user@example.com"}, "password": {"password123"}})

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/teller", res.Header().Get("Location"))
	cookie := tokenCookie(res)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	claim, err := f.tokens.Parse(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAgentUser, claim.Role)
	assert.Equal(t, "user@example.com", claim.Email)
}

func TestLoginHonoursPermittedCallback(t *testing.T) {
	f := newFixture(t, &stubRepo{user: activeUser(t, rbac.RoleAgentAdmin)})

	res := postForm(f.router, "/login", url.Values{
		"email":            {"user@example.com"},
		"password":         {"password123"},
		rbac.CallbackParam: {"/manager/invitations"},
	})

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/manager/invitations", res.Header().Get("Location"))
}

func TestLoginIgnoresForbiddenCallback(t *testing.T) {
	f := newFixture(t, &stubRepo{user: activeUser(t, rbac.RoleAgentUser)})

	res := postForm(f.router, "/login", url.Values{
		"email":            {"user@example.com"},
		"password":         {"password123"},
		rbac.CallbackParam: {"/admin/users"},
	})

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/teller", res.Header().Get("Location"))
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	user := activeUser(t, rbac.RoleOrgAdmin)
	user.Status = auth.StatusInactive
	f := newFixture(t, &stubRepo{user: user})

	res := postForm(f.router, "/login", url.Values{"email": {"user@example.com"}, "password": {"password123"}})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Nil(t, tokenCookie(res))
}

func TestRegisterPageUnknownToken(t *testing.T) {
	f := newFixture(t, &stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/register?token=nope", nil)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Body.String(), "invalid or has expired")
}

func TestRegisterPageShowsInvitation(t *testing.T) {
	repo := &stubRepo{invitation: &auth.PendingInvitation{
		Email:     "teller@example.com",
		Role:      rbac.RoleAgentUser,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}}
	f := newFixture(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/register?token=good-token", nil)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "teller@example.com")
	assert.Contains(t, res.Body.String(), "Agent User")
}

func TestRegisterCreatesAccount(t *testing.T) {
	repo := &stubRepo{invitation: &auth.PendingInvitation{
		Email:     "teller@example.com",
		Role:      rbac.RoleAgentUser,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}}
	f := newFixture(t, repo)

	res := postForm(f.router, "/register", url.Values{
		"token":    {"good-token"},
		"name":     {"New Teller"},
		"password": {"password123"},
		"confirm":  {"password123"},
	})

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/onboarding", res.Header().Get("Location"))
	require.NotNil(t, repo.registered)
	assert.Equal(t, "New Teller", repo.registered.Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.registered.PasswordHash), []byte("password123")))
	assert.NotNil(t, tokenCookie(res))
}

func TestRegisterPasswordMismatch(t *testing.T) {
	repo := &stubRepo{invitation: &auth.PendingInvitation{Email: "teller@example.com", Role: rbac.RoleAgentUser}}
	f := newFixture(t, repo)

	res := postForm(f.router, "/register", url.Values{
		"token":    {"good-token"},
		"name":     {"New Teller"},
		"password": {"password123"},
		"confirm":  {"password124"},
	})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Passwords do not match")
	assert.Nil(t, repo.registered)
}

func TestRegisterEmailTaken(t *testing.T) {
	repo := &stubRepo{
		invitation:  &auth.PendingInvitation{Email: "teller@example.com", Role: rbac.RoleAgentUser},
		registerErr: auth.ErrEmailTaken,
	}
	f := newFixture(t, repo)

	res := postForm(f.router, "/register", url.Values{
		"token":    {"good-token"},
		"name":     {"New Teller"},
		"password": {"password123"},
		"confirm":  {"password123"},
	})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "An account already exists")
}

func TestLogoutClearsToken(t *testing.T) {
	f := newFixture(t, &stubRepo{})

	res := postForm(f.router, "/logout", url.Values{})

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login", res.Header().Get("Location"))
	cookie := tokenCookie(res)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
}

func TestSafeCallback(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"/teller":             "/teller",
		"/admin/users?page=2": "/admin/users?page=2",
		"//evil.example":      "",
		"/\\evil.example":     "",
		"https://evil":        "",
		"teller":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, auth.SafeCallback(in), in)
	}
}
