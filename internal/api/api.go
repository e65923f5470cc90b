// Package api holds the portfolio routes: projects, contact messages, the
// CSP report sink and the public root and health endpoints.
//
// Handlers return errors through respond.Handler. Admin operations sit
// behind the auth gate; everything in front of them (rate limits, lockout,
// pattern checks) is applied by the surrounding pipeline, not here.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/portfolio-api/internal/httpmw"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
	"github.com/keithlinneman/portfolio-api/internal/store"
)

// Store is the persistence the routes need.
type Store interface {
	ListProjects(ctx context.Context, f store.ProjectFilter) ([]store.Project, error)
	Categories(ctx context.Context) ([]string, error)
	ProjectBySlug(ctx context.Context, slug string) (store.Project, error)
	CreateProject(ctx context.Context, p *store.Project) error
	UpdateProject(ctx context.Context, slug string, patch store.ProjectPatch) (store.Project, error)
	DeleteProject(ctx context.Context, slug string) error

	CreateMessage(ctx context.Context, m *store.ContactMessage) error
	ListMessages(ctx context.Context) (store.MessageList, error)
	Message(ctx context.Context, id int64) (store.ContactMessage, error)
	MarkRead(ctx context.Context, id int64) (store.ContactMessage, error)
	DeleteMessage(ctx context.Context, id int64) error
}

// API implements the public and admin routes.
type API struct {
	store   Store
	admin   httpmw.Middleware
	events  *secevent.Emitter
	version string
}

// New returns the API. admin guards every admin route and must not be nil;
// pass auth.Gate.Require. events may be nil.
func New(s Store, admin httpmw.Middleware, events *secevent.Emitter, version string) *API {
	if version == "" {
		version = "dev"
	}
	return &API{store: s, admin: admin, events: events, version: version}
}

// RegisterRoutes attaches every route to r.
func (api *API) RegisterRoutes(r chi.Router) {
	r.With(httpmw.Scope("root")).Method(http.MethodGet, "/", respond.Handler(api.handleRoot))
	r.With(httpmw.Scope("health")).Method(http.MethodGet, "/health", respond.Handler(api.handleHealth))
	r.With(httpmw.Scope("csp-report")).Method(http.MethodPost, "/csp-report", respond.Handler(api.handleCSPReport))

	r.Route("/api/projects", func(r chi.Router) {
		r.Use(httpmw.Scope("projects"))
		r.Method(http.MethodGet, "/", respond.Handler(api.listProjects))
		r.Method(http.MethodGet, "/categories", respond.Handler(api.listCategories))
		r.Method(http.MethodGet, "/{slug}", respond.Handler(api.getProject))

		r.Group(func(r chi.Router) {
			r.Use(api.admin)
			r.Method(http.MethodPost, "/", respond.Handler(api.createProject))
			r.Method(http.MethodPatch, "/{slug}", respond.Handler(api.updateProject))
			r.Method(http.MethodDelete, "/{slug}", respond.Handler(api.deleteProject))
		})
	})

	r.Route("/api/contact", func(r chi.Router) {
		r.Use(httpmw.Scope("contact"))
		r.Method(http.MethodPost, "/", respond.Handler(api.createMessage))

		r.Group(func(r chi.Router) {
			r.Use(api.admin)
			r.Method(http.MethodGet, "/", respond.Handler(api.listMessages))
			r.Method(http.MethodGet, "/{id}", respond.Handler(api.getMessage))
			r.Method(http.MethodPatch, "/{id}/read", respond.Handler(api.markRead))
			r.Method(http.MethodDelete, "/{id}", respond.Handler(api.deleteMessage))
		})
	})
}

func (api *API) handleRoot(w http.ResponseWriter, _ *http.Request) error {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "running", "version": api.version})
	return nil
}

func (api *API) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	return nil
}
