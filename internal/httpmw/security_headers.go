package httpmw

import (
	"net/http"

	"github.com/felixge/httpsnoop"
)

// Security note: CSRF protection is not implemented because it is not applicable.
// The API is cookie-less: admin calls carry an explicit X-API-Key header and
// CORS never allows credentials.

const (
	baseCSP           = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"
	permissionsPolicy = "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()"
	hstsValue         = "max-age=31536000; includeSubDomains; preload"
)

// SecurityHeadersOptions configures SecurityHeaders.
type SecurityHeadersOptions struct {
	// HSTS adds Strict-Transport-Security. Production only.
	HSTS bool
	// CSPReportURI is appended to the CSP as report-uri when set.
	CSPReportURI string
}

// ContentSecurityPolicy returns the CSP value for reportURI.
func ContentSecurityPolicy(reportURI string) string {
	if reportURI == "" {
		return baseCSP
	}
	return baseCSP + "; report-uri " + reportURI
}

// SecurityHeaders sets hardening headers before calling next and strips the
// Server header from whatever next writes.
func SecurityHeaders(opts SecurityHeadersOptions) Middleware {
	csp := ContentSecurityPolicy(opts.CSPReportURI)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", permissionsPolicy)
			if opts.HSTS {
				h.Set("Strict-Transport-Security", hstsValue)
			}

			// strip Server at the moment headers are flushed, whoever set it
			sw := httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(nextWH httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						w.Header().Del("Server")
						nextWH(code)
					}
				},
				Write: func(nextW httpsnoop.WriteFunc) httpsnoop.WriteFunc {
					return func(b []byte) (int, error) {
						w.Header().Del("Server")
						return nextW(b)
					}
				},
			})
			next.ServeHTTP(sw, r)
		})
	}
}
