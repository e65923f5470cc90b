package opshttp

import (
	"net/http"

	"github.com/keithlinneman/portfolio-api/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// AllowPublic disables the private-network check, for local runs only
	AllowPublic  bool
	UseRecoverMW bool
	OnPanic      func() // e.g. to increment the panic counter
}
