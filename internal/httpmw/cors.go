package httpmw

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS applies the cross-origin policy for origins. Credentialed
// cross-origin requests are never allowed. Preflight requests are answered
// here and do not reach the router.
// An empty origins list allows no cross-origin callers.
func CORS(origins []string) Middleware {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           600,
	}
	if len(origins) == 0 {
		// rs/cors treats an empty list as "*"
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(opts).Handler
}
