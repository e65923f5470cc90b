package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/portfolio-api/internal/defense"
	"github.com/keithlinneman/portfolio-api/internal/honeypot"
	"github.com/keithlinneman/portfolio-api/internal/log"
	"github.com/keithlinneman/portfolio-api/internal/respond"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Defense supplies the client IP resolver, security headers and guards.
	// Required.
	Defense *defense.State

	// Boundary answers unexpected failures. nil means production defaults.
	Boundary *respond.Boundary
	OnPanic  func()

	MetricsMW func(http.Handler) http.Handler

	APIRoutes func(chi.Router)
	// Honeypots overrides honeypot.Routes when non-nil.
	Honeypots []honeypot.Route
}
