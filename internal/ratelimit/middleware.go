package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Middleware counts in-scope requests against the client's window and
// rejects them with 429 once the window is full.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.scope != nil && !l.scope(r) {
			next.ServeHTTP(w, r)
			return
		}

		id := clientip.FromRequest(r)
		d := l.CheckAndRecord(id, l.now())

		if l.headers {
			h := w.Header()
			h.Set(HeaderLimit, strconv.Itoa(d.Limit))
			h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
			h.Set(HeaderReset, strconv.FormatInt(d.Reset.Unix(), 10))
		}

		if !d.Allowed {
			details := map[string]any{"limit": l.capacity, "limiter": l.name}
			l.events.Emit(r.Context(), secevent.FromRequest(r, secevent.RateLimitTriggered, id, details))
			if l.OnDenied != nil {
				l.OnDenied(id)
			}
			// no detail about which limit was hit
			respond.TooManyRequests(w, l.RetryAfterSeconds())
			return
		}

		next.ServeHTTP(w, r)
	})
}
