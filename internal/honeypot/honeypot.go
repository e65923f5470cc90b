// Package honeypot routes well-known scanner paths to a handler that records
// the probe and answers exactly like an ordinary missing page.
package honeypot

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

// Route is one trap.
type Route struct {
	Method string
	Path   string
}

// Routes is the default trap table. No legitimate client requests these.
var Routes = []Route{
	{http.MethodGet, "/admin"},
	{http.MethodGet, "/admin/"},
	{http.MethodGet, "/admin/login"},
	{http.MethodPost, "/admin/login"},
	{http.MethodGet, "/wp-admin"},
	{http.MethodGet, "/wp-login.php"},
	{http.MethodGet, "/.env"},
	{http.MethodGet, "/config.php"},
	{http.MethodGet, "/phpinfo.php"},
	{http.MethodGet, "/api/admin/users"},
	{http.MethodPost, "/api/admin/users"},
}

// Handler emits HONEYPOT_TRIGGERED and writes the shared not-found response.
func Handler(events *secevent.Emitter, onHit func(path string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events.Emit(r.Context(), secevent.FromRequest(r, secevent.HoneypotTriggered, clientip.FromRequest(r), nil))
		if onHit != nil {
			onHit(r.URL.Path)
		}
		respond.NotFound(w, r)
	}
}

// Register binds every route in table to h.
func Register(r chi.Router, table []Route, h http.HandlerFunc) {
	for _, rt := range table {
		r.Method(rt.Method, rt.Path, h)
	}
}
