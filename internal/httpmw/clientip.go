package httpmw

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
)

// unknownClient is recorded when the peer address cannot be parsed.
const unknownClient = "0.0.0.0"

// forwardedHeaders are only honoured from trusted proxies and are removed
// from every other request so nothing downstream can read them.
var forwardedHeaders = []string{"X-Forwarded-For", "X-Forwarded-Proto", "X-Forwarded-Host"}

type clientIPKey struct{}

// ClientIPOptions configures client address resolution.
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes its last entry (single load
	// balancer), 2 the second to last (CDN then load balancer), and so on.
	TrustedHops int
}

// ClientIP resolves the client address with no trusted proxies.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions stores the resolved client address in the context.
// The rate limiter keys on it and the request logger reports it.
func ClientIPWithOptions(opts ClientIPOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// resolveClientIP returns the peer address, or the X-Forwarded-For entry
// trustedHops from the end when the peer is one of our proxies. Forwarded
// headers are stripped whenever they are not trusted.
func resolveClientIP(r *http.Request, trustedHops int) string {
	peer, ok := parseIP(peerAddr(r.RemoteAddr))
	if !ok {
		stripForwarded(r.Header)
		return unknownClient
	}
	if trustedHops <= 0 || !internalPeer(peer) {
		stripForwarded(r.Header)
		return peer.String()
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer.String()
	}
	hops := strings.Split(xff, ",")
	idx := len(hops) - trustedHops
	if idx < 0 {
		// fewer hops than proxies: misconfigured or forged, fail closed
		stripForwarded(r.Header)
		return peer.String()
	}
	if client, ok := parseIP(strings.TrimSpace(hops[idx])); ok {
		return client.String()
	}
	return peer.String()
}

// internalPeer reports peers that can be our own load balancers.
func internalPeer(ip netip.Addr) bool {
	return ip.IsPrivate() || ip.IsLoopback()
}

func parseIP(s string) (netip.Addr, bool) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap().WithZone(""), true
}

func stripForwarded(h http.Header) {
	for _, k := range forwardedHeaders {
		h.Del(k)
	}
}

// ClientIPFromContext returns the address stored by ClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// WithClientIP stores ip in ctx. An empty ip leaves ctx unchanged.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
