package opshttp

import (
	"net/http"
	"net/netip"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
)

// forwardingHeaders mark a request that was relayed by a proxy. The ops
// listener is never behind one.
var forwardingHeaders = []string{"X-Forwarded-For", "X-Real-Ip", "Forwarded"}

// internalPeer reports whether remote (host:port) is loopback, private or
// link-local. IPv4-mapped IPv6 is judged as IPv4.
func internalPeer(remote string) bool {
	ap, err := netip.ParseAddrPort(remote)
	if err != nil {
		return false
	}
	ip := ap.Addr().Unmap()
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// requireNonPublicNetwork answers 403 to proxied requests and to peers on
// public addresses. The security group is the real boundary; this catches
// a misconfigured one.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range forwardingHeaders {
			if r.Header.Get(h) != "" {
				L.Warn(r.Context(), "ops request relayed by a proxy, rejecting", "header", h, "remote_addr", r.RemoteAddr)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		if !internalPeer(r.RemoteAddr) {
			L.Warn(r.Context(), "ops request from public address, rejecting", "remote_addr", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
