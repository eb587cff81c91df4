package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
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

	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/internal/view"
)

type memoryRepo struct {
	users   map[string]*UserSummary
	details map[string]Details
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users: map[string]*UserSummary{
			"u-1": {ID: "u-1", Email: "teller@example.com", Name: "Invited", OnboardingStatus: StatusPending},
		},
		details: map[string]Details{},
	}
}

func (m *memoryRepo) Find(_ context.Context, id string) (*UserSummary, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryRepo) Complete(_ context.Context, id, name string, d Details) (*UserSummary, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	u.Name = name
	u.OnboardingStatus = StatusCompleted
	m.details[id] = d
	cp := *u
	return &cp, nil
}

func (m *memoryRepo) CountCompleted(context.Context) (int, error) {
	n := 0
	for _, u := range m.users {
		if u.Completed() {
			n++
		}
	}
	return n, nil
}

func fullProfile() Profile {
	return Profile{
		FirstName: "Ada", LastName: "Lovelace", PhoneNumber: "+44 20 0000 0000", DateOfBirth: "1990-12-10",
		Address: "1 Analytical Way", City: "London", State: "Greater London", ZipCode: "N1",
		Country: "GB", Occupation: "Engineer", SourceOfFunds: "Salary", PurposeOfRemittance: "Family support",
	}
}

func claim() *rbac.Claim {
	return &rbac.Claim{Subject: "u-1", Email: "teller@example.com", Role: rbac.RoleAgentUser}
}

func TestCompleteStoresProfile(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	p := fullProfile()
	p.FirstName = "  Ada "
	user, err := svc.Complete(context.Background(), claim(), p)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", user.Name)
	assert.True(t, user.Completed())
	assert.Equal(t, "Salary", repo.details["u-1"].SourceOfFunds)
}

func TestCompleteNotifiesChange(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	calls := 0
	svc.OnChange(func(context.Context) { calls++ })

	incomplete := fullProfile()
	incomplete.FirstName = ""
	_, err := svc.Complete(context.Background(), claim(), incomplete)
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Zero(t, calls)

	_, err = svc.Complete(context.Background(), claim(), fullProfile())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCompleteRequiresEveryField(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	blanks := []func(*Profile){
		func(p *Profile) { p.FirstName = "" },
		func(p *Profile) { p.ZipCode = "   " },
		func(p *Profile) { p.PurposeOfRemittance = "" },
		func(p *Profile) { p.DateOfBirth = "" },
	}
	for _, blank := range blanks {
		p := fullProfile()
		blank(&p)
		_, err := svc.Complete(context.Background(), claim(), p)
		assert.ErrorIs(t, err, ErrIncomplete)
	}
}

type fixture struct {
	router   http.Handler
	repo     *memoryRepo
	sessions *shared.SessionManager
}

func newFixture(t *testing.T, c *rbac.Claim) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test_session", time.Hour, false)
	templates, err := view.NewEngine(nil)
	require.NoError(t, err)
	repo := newMemoryRepo()
	h := NewHandler(nil, NewService(repo, nil), templates, shared.NewCSRFManager("x"))
	verifier := rbac.SessionVerifierFunc(func(*http.Request) (*rbac.Claim, error) { return c, nil })

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			if c != nil {
				ctx = rbac.ContextWithClaim(ctx, c)
			}
			cw := &commitWriter{ResponseWriter: w, commit: func() {
				require.NoError(t, sessions.Commit(req.Context(), w, sess))
			}}
			next.ServeHTTP(cw, req.WithContext(ctx))
		})
	})
	r.Route("/onboarding", h.MountRoutes)
	r.Route("/api/onboarding", func(r chi.Router) {
		r.Use(rbac.RequireRoles(verifier, rbac.Roles()...))
		h.MountAPI(r)
	})
	return fixture{router: r, repo: repo, sessions: sessions}
}

// commitWriter persists the session before the first header write, as the app middleware does.
type commitWriter struct {
	http.ResponseWriter
	commit func()
	done   bool
}

func (c *commitWriter) WriteHeader(code int) {
	if !c.done {
		c.done = true
		c.commit()
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *commitWriter) Write(b []byte) (int, error) {
	if !c.done {
		c.WriteHeader(http.StatusOK)
	}
	return c.ResponseWriter.Write(b)
}

func TestAPIUnauthorized(t *testing.T) {
	f := newFixture(t, nil)
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		res := httptest.NewRecorder()
		f.router.ServeHTTP(res, httptest.NewRequest(method, "/api/onboarding", strings.NewReader("{}")))
		assert.Equal(t, http.StatusUnauthorized, res.Code, method)
	}
}

func TestAPIGetUser(t *testing.T) {
	f := newFixture(t, claim())
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/onboarding", nil))

	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		User UserSummary `json:"user"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "teller@example.com", body.User.Email)
}

func TestAPIGetUnknownUser(t *testing.T) {
	c := claim()
	c.Subject = "ghost"
	f := newFixture(t, c)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/onboarding", nil))

	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.JSONEq(t, `{"message":"User not found"}`, res.Body.String())
}

func TestAPIPostMissingFields(t *testing.T) {
	f := newFixture(t, claim())
	p := fullProfile()
	p.Country = ""
	body, _ := json.Marshal(p)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/onboarding", bytes.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.JSONEq(t, `{"message":"All fields are required"}`, res.Body.String())
}

func TestAPIPostCompletes(t *testing.T) {
	f := newFixture(t, claim())
	body, _ := json.Marshal(fullProfile())
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/onboarding", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"message":"Onboarding completed successfully","user":{"id":"u-1","email":"teller@example.com","name":"Ada Lovelace"}}`, res.Body.String())
}

func TestWizardKeepsDraftAfterValidationError(t *testing.T) {
	f := newFixture(t, claim())
	form := url.Values{"firstName": {"Ada"}, "city": {"London"}}
	req := httptest.NewRequest(http.MethodPost, "/onboarding", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), MessageFieldsRequired)

	get := httptest.NewRequest(http.MethodGet, "/onboarding", nil)
	for _, c := range res.Result().Cookies() {
		get.AddCookie(c)
	}
	res = httptest.NewRecorder()
	f.router.ServeHTTP(res, get)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `value="London"`)
}

func TestWizardCompletesAndRedirects(t *testing.T) {
	f := newFixture(t, claim())
	p := fullProfile()
	form := url.Values{
		"firstName": {p.FirstName}, "lastName": {p.LastName}, "phoneNumber": {p.PhoneNumber},
		"dateOfBirth": {p.DateOfBirth}, "address": {p.Address}, "city": {p.City}, "state": {p.State},
		"zipCode": {p.ZipCode}, "country": {p.Country}, "occupation": {p.Occupation},
		"sourceOfFunds": {p.SourceOfFunds}, "purposeOfRemittance": {p.PurposeOfRemittance},
	}
	req := httptest.NewRequest(http.MethodPost, "/onboarding", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/teller", res.Header().Get("Location"))
	assert.True(t, f.repo.users["u-1"].Completed())

	res = httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/onboarding", nil))
	assert.Equal(t, http.StatusSeeOther, res.Code)
}
