package httpmw

import (
	"net"
	"net/http"
	"strings"

	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

// TrustedHost rejects requests whose Host is not in allowed with 400.
// Entries are exact host names or "*.example.com" for any subdomain.
// An empty list or a "*" entry disables the check and returns nil, so
// Chain skips the stage.
func TrustedHost(allowed []string, events *secevent.Emitter) Middleware {
	var exact []string
	var suffixes []string
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		switch {
		case a == "":
			continue
		case a == "*":
			return nil
		case strings.HasPrefix(a, "*."):
			suffixes = append(suffixes, a[1:])
		default:
			exact = append(exact, a)
		}
	}
	if len(exact) == 0 && len(suffixes) == 0 {
		return nil
	}

	match := func(host string) bool {
		for _, e := range exact {
			if host == e {
				return true
			}
		}
		for _, s := range suffixes {
			if strings.HasSuffix(host, s) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if match(hostOnly(r.Host)) {
				next.ServeHTTP(w, r)
				return
			}
			events.Emit(r.Context(), secevent.FromRequest(r, secevent.AccessDenied, clientip.FromRequest(r),
				map[string]any{"reason": "invalid_host"}))
			respond.Detail(w, http.StatusBadRequest, "Invalid host header")
		})
	}
}

func hostOnly(hostport string) string {
	h := hostport
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		h = host
	}
	return strings.ToLower(strings.TrimSuffix(h, "."))
}
