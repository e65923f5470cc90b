package opshttp

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/keithlinneman/portfolio-api/internal/log"
	"github.com/keithlinneman/portfolio-api/internal/respond"
)

// nonPublic reports whether addr is loopback, private or link-local.
func nonPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}

// requireNonPublicNetwork rejects peers outside private address space. The
// ops listener is meant for scrapers and probes inside the VPC, and proxy
// headers are never consulted here.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		addr, err := netip.ParseAddr(host)
		if err != nil || !nonPublic(addr) {
			L.Warn(r.Context(), "ops request from public network rejected",
				"remote_addr", r.RemoteAddr,
				"url.path", r.URL.Path,
			)
			respond.Detail(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
