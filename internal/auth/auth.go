// Package auth is the shared-secret gate in front of admin operations.
//
// The caller's key is compared to the configured secret in constant time:
// both values are hashed with SHA-256 first so the comparison also does not
// leak the secret's length. An empty configured secret is a
// misconfiguration and fails closed with 503 for every caller, so a client
// cannot tell "no key configured" from "wrong key".
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

// HeaderAPIKey carries the caller's credential.
const HeaderAPIKey = "X-API-Key"

// Decision is the gate's single outcome.
type Decision int

const (
	Allowed Decision = iota
	Unauthorized
	Misconfigured
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Unauthorized:
		return "unauthorized"
	case Misconfigured:
		return "misconfigured"
	default:
		return "unknown"
	}
}

// FailureRecorder receives one call per failed authentication.
type FailureRecorder interface {
	RecordFailure(id string)
}

// Gate checks the shared secret.
type Gate struct {
	configured bool
	digest     [sha256.Size]byte
	failures   FailureRecorder
	events     *secevent.Emitter
}

// New returns a Gate for secret. An empty secret yields a gate that always
// answers Misconfigured. failures and events may be nil.
func New(secret string, failures FailureRecorder, events *secevent.Emitter) *Gate {
	g := &Gate{failures: failures, events: events}
	if secret != "" {
		g.configured = true
		g.digest = sha256.Sum256([]byte(secret))
	}
	return g
}

// Configured reports whether a secret is set.
func (g *Gate) Configured() bool { return g.configured }

// Check compares supplied to the secret. It runs in time independent of
// where the two first differ.
func (g *Gate) Check(supplied string) Decision {
	if !g.configured {
		return Misconfigured
	}
	got := sha256.Sum256([]byte(supplied))
	if subtle.ConstantTimeCompare(got[:], g.digest[:]) == 1 {
		return Allowed
	}
	return Unauthorized
}

// Require rejects requests without a valid key. It emits the matching
// security event and reports failures to the FailureRecorder.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := clientip.FromRequest(r)
		ctx := r.Context()

		switch g.Check(r.Header.Get(HeaderAPIKey)) {
		case Allowed:
			g.events.Emit(ctx, secevent.FromRequest(r, secevent.AuthSuccess, id, nil))
			next.ServeHTTP(w, r)

		case Misconfigured:
			g.events.Emit(ctx, secevent.FromRequest(r, secevent.AccessDenied, id,
				map[string]any{"reason": "auth_not_configured"}))
			respond.Detail(w, http.StatusServiceUnavailable, "Service temporarily unavailable")

		default:
			g.events.Emit(ctx, secevent.FromRequest(r, secevent.AuthFailure, id,
				map[string]any{"reason": "invalid_api_key"}))
			if g.failures != nil {
				g.failures.RecordFailure(id)
			}
			w.Header().Set("WWW-Authenticate", "API-Key")
			respond.Detail(w, http.StatusUnauthorized, "Unauthorized")
		}
	})
}
