package lockout

import (
	"net/http"
	"strconv"

	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

// Hooks are optional callbacks for metrics.
type Hooks struct {
	OnBlock  func(id string)
	OnDenied func(id string)
}

// Middleware denies protected write requests from locked clients with 429.
// Reads and unprotected paths pass through untouched.
func (g *Guard) Middleware(events *secevent.Emitter, hooks Hooks) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.Protects(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			id := clientip.FromRequest(r)
			v := g.Evaluate(id, g.now())
			if !v.Denied {
				next.ServeHTTP(w, r)
				return
			}

			if v.NewlyBlocked {
				reason := "brute_force_blocked:failures=" + strconv.Itoa(v.Failures)
				events.Emit(r.Context(), secevent.FromRequest(r, secevent.SuspiciousRequest, id,
					map[string]any{"reason": reason}))
				if hooks.OnBlock != nil {
					hooks.OnBlock(id)
				}
			}
			if hooks.OnDenied != nil {
				hooks.OnDenied(id)
			}
			respond.TooManyRequests(w, g.BlockSeconds())
		})
	}
}
