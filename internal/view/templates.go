package view

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
	routes    *rbac.RouteTable
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        *rbac.Claim
	Nav         []NavItem
	Data        any
}

// NewEngine parses the embedded templates. routes filters navigation per role.
func NewEngine(routes *rbac.RouteTable) (*Engine, error) {
	if routes == nil {
		routes = rbac.DefaultRoutes()
	}
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"roleLabel": func(r rbac.Role) string {
			return r.Label()
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl, routes: routes}, nil
}

// Page assembles TemplateData for r: CSRF token, pending flash, caller and navigation.
func (e *Engine) Page(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	var token string
	if csrf != nil && sess != nil {
		token, _ = csrf.EnsureToken(sess)
	}
	claim := rbac.ClaimFromContext(r.Context())
	td := TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		User:        claim,
		Data:        data,
	}
	if claim != nil && e != nil {
		td.Nav = Navigation(e.routes, claim.Role, r.URL.Path)
	}
	return td
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}
