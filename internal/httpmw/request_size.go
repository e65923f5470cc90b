package httpmw

import (
	"net/http"

	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

// RequestSize rejects POST, PUT and PATCH requests whose declared
// Content-Length exceeds max with 413. Bodies without a declared length
// (chunked) are capped with http.MaxBytesReader so reading past max fails.
func RequestSize(max int64, events *secevent.Emitter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				if r.ContentLength > max {
					events.Emit(r.Context(), secevent.FromRequest(r, secevent.InputRejected, clientip.FromRequest(r),
						map[string]any{"field": "body", "reason": "too_large", "size": r.ContentLength}))
					respond.Detail(w, http.StatusRequestEntityTooLarge, "Request body too large")
					return
				}
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}
