package httpmw

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions configures how much of X-Forwarded-For is believed.
type ClientIPOptions struct {
	// TrustedHops is the number of proxies in front of us: 0 ignores
	// X-Forwarded-For, 1 takes the rightmost entry (a single ALB), 2 takes the
	// second from the right (CDN then ALB), and so on.
	TrustedHops int
}

// ClientIP resolves the client address into the context.
//
// Forwarding headers are only believed when the TCP peer is on a private or
// loopback network and TrustedHops > 0. Otherwise X-Forwarded-For and
// X-Forwarded-Proto are deleted so nothing downstream can act on them; the
// routing finalizer builds redirect origins from X-Forwarded-Proto.
func ClientIP(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientIP(r *http.Request, trustedHops int) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		dropForwarded(r)
		return "0.0.0.0"
	}
	if trustedHops <= 0 || !(peer.IsPrivate() || peer.IsLoopback()) {
		dropForwarded(r)
		return peer.String()
	}

	xff := r.Header.Values("X-Forwarded-For")
	if len(xff) == 0 {
		return peer.String()
	}
	var hops []string
	for _, v := range xff {
		hops = append(hops, strings.Split(v, ",")...)
	}
	idx := len(hops) - trustedHops
	if idx < 0 {
		// fewer hops than proxies: misconfigured or forged
		dropForwarded(r)
		return peer.String()
	}
	if a, err := netip.ParseAddr(strings.TrimSpace(hops[idx])); err == nil {
		return a.Unmap().String()
	}
	return peer.String()
}

func peerAddr(remote string) (netip.Addr, bool) {
	if remote == "" {
		return netip.Addr{}, false
	}
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func dropForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
