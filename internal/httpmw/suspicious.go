package httpmw

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/keithlinneman/portfolio-api/internal/clientip"
	"github.com/keithlinneman/portfolio-api/internal/pathutil"
	"github.com/keithlinneman/portfolio-api/internal/respond"
	"github.com/keithlinneman/portfolio-api/internal/secevent"
)

// DefaultSignatures are matched case-insensitively against the request
// path and query.
var DefaultSignatures = []string{
	"../",
	`..\`,
	"<script",
	"javascript:",
	"' or ",
	`" or `,
	"1=1",
	"union select",
	"/etc/passwd",
	"cmd.exe",
	"powershell",
}

// DotSegment is reported when the path holds a "." or ".." segment that
// no signature caught, e.g. a trailing "/..".
const DotSegment = "dot_segment"

// MatchSignature returns the first signature found in r's path or query.
// Both the raw and the percent-decoded forms are scanned.
func MatchSignature(r *http.Request, signatures []string) (string, bool) {
	for _, target := range scanTargets(r) {
		for _, sig := range signatures {
			if strings.Contains(target, sig) {
				return sig, true
			}
		}
	}
	if pathutil.HasDotSegments(r.URL.Path) {
		return DotSegment, true
	}
	return "", false
}

func scanTargets(r *http.Request) []string {
	raw := r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		raw += "?" + r.URL.RawQuery
	}
	targets := []string{strings.ToLower(raw)}

	decoded := r.URL.Path
	if r.URL.RawQuery != "" {
		q, err := url.QueryUnescape(r.URL.RawQuery)
		if err != nil {
			q = r.URL.RawQuery
		}
		decoded += "?" + q
	}
	if d := strings.ToLower(decoded); d != targets[0] {
		targets = append(targets, d)
	}
	return targets
}

// SuspiciousRequests rejects requests matching a signature with a generic
// 400. The matched signature is only reported in the security event.
func SuspiciousRequests(signatures []string, events *secevent.Emitter, onMatch func(sig string)) Middleware {
	sigs := make([]string, 0, len(signatures))
	for _, s := range signatures {
		if s != "" {
			sigs = append(sigs, strings.ToLower(s))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig, ok := MatchSignature(r, sigs)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			events.Emit(r.Context(), secevent.FromRequest(r, secevent.SuspiciousRequest, clientip.FromRequest(r),
				map[string]any{"reason": "suspicious_pattern:" + sig}))
			if onMatch != nil {
				onMatch(sig)
			}
			respond.Detail(w, http.StatusBadRequest, "Bad request")
		})
	}
}
