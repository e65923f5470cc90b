// Package clientip derives the per-request client identifier that keys every
// piece of defense state (rate-limit windows, failure trackers, blocks).
//
// The identifier is a logical session key, not an authenticated identity:
// the proxy headers it trusts are spoofable unless a trusted proxy layer
// overwrites them. Deployments not behind such a proxy should disable
// TrustProxyHeaders so only the transport peer address is used.
package clientip

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Unknown is returned when no source yields an address.
const Unknown = "unknown"

// Header precedence, most trusted first.
const (
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderRealIP         = "X-Real-IP"
	HeaderForwardedFor   = "X-Forwarded-For"
)

type ctxKey struct{}

// Options configures client address extraction.
type Options struct {
	// TrustProxyHeaders enables CF-Connecting-IP, X-Real-IP and the first
	// X-Forwarded-For entry ahead of the peer address. When false those
	// headers are removed from the request so nothing downstream trusts them.
	TrustProxyHeaders bool
}

// Resolve returns the client identifier for r.
// Header values that do not parse as an IP address are skipped.
func Resolve(r *http.Request, opts Options) string {
	if opts.TrustProxyHeaders {
		if ip, ok := parseIP(r.Header.Get(HeaderCFConnectingIP)); ok {
			return ip
		}
		if ip, ok := parseIP(r.Header.Get(HeaderRealIP)); ok {
			return ip
		}
		if xf := r.Header.Get(HeaderForwardedFor); xf != "" {
			first, _, _ := strings.Cut(xf, ",")
			if ip, ok := parseIP(first); ok {
				return ip
			}
		}
	}
	return peerIP(r.RemoteAddr)
}

func peerIP(remote string) string {
	if remote == "" {
		return Unknown
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		// no port, e.g. unix socket listeners or synthetic requests
		host = remote
	}
	if ip, ok := parseIP(host); ok {
		return ip
	}
	return Unknown
}

func parseIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}

// Middleware resolves the client identifier once and stores it in the
// request context.
func Middleware(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := Resolve(r, opts)
			if !opts.TrustProxyHeaders {
				r.Header.Del(HeaderCFConnectingIP)
				r.Header.Del(HeaderRealIP)
				r.Header.Del(HeaderForwardedFor)
			}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ip)))
		})
	}
}

// WithContext stores ip in ctx. An empty ip leaves ctx unchanged.
func WithContext(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, ip)
}

// FromContext returns the stored identifier, or "" if none.
func FromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKey{}).(string)
	return ip
}

// FromRequest returns the identifier stored by Middleware, falling back to
// the peer address when the middleware did not run.
func FromRequest(r *http.Request) string {
	if ip := FromContext(r.Context()); ip != "" {
		return ip
	}
	return peerIP(r.RemoteAddr)
}
