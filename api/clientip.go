package api

import (
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
)

// extractClientIP returns the client address used for audit entries and
// rate limiting, honoring forwarding headers from trusted proxies.
func (a *API) extractClientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, a.trustedProxies)
}

// extractClientIP returns the request's peer address. Forwarding headers
// are ignored.
func extractClientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, nil)
}

// extractClientIPWithProxies returns the peer address unless the peer lies
// in trusted. Behind a trusted proxy the client is the rightmost hop of
// X-Forwarded-For, Forwarded (for=) or X-Real-IP, in that order, that is
// not itself a trusted proxy; hops to its left are client-supplied. It
// returns "" when the peer address does not parse.
func extractClientIPWithProxies(r *http.Request, trusted []netip.Prefix) string {
	peer, ok := parseAddr(r.RemoteAddr)
	if !ok {
		return ""
	}
	if !isTrusted(peer, trusted) {
		return peer.String()
	}
	for _, hops := range forwardedChains(r.Header) {
		if addr, ok := untrustedHop(hops, trusted); ok {
			return addr.String()
		}
	}
	return peer.String()
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	return slices.ContainsFunc(trusted, func(p netip.Prefix) bool { return p.Contains(addr) })
}

// untrustedHop walks hops right to left and returns the first address
// outside trusted. An unparseable hop ends the walk.
func untrustedHop(hops []string, trusted []netip.Prefix) (netip.Addr, bool) {
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseAddr(hops[i])
		if !ok {
			return netip.Addr{}, false
		}
		if !isTrusted(addr, trusted) {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

// forwardedChains returns the hop lists claimed by each forwarding header
// in priority order, oldest hop first.
func forwardedChains(h http.Header) [][]string {
	var chains [][]string
	if xff := h.Values("X-Forwarded-For"); len(xff) > 0 {
		chains = append(chains, strings.Split(strings.Join(xff, ","), ","))
	}
	var fwd []string
	for _, v := range h.Values("Forwarded") {
		for elem := range strings.SplitSeq(v, ",") {
			for param := range strings.SplitSeq(elem, ";") {
				k, v, found := strings.Cut(strings.TrimSpace(param), "=")
				if found && strings.EqualFold(k, "for") {
					fwd = append(fwd, v)
				}
			}
		}
	}
	if len(fwd) > 0 {
		chains = append(chains, fwd)
	}
	if xrip := h.Get("X-Real-IP"); xrip != "" {
		chains = append(chains, []string{xrip})
	}
	return chains
}

// parseAddr accepts a bare address, host:port, a bracketed IPv6 address
// or a quoted Forwarded value. Zones are dropped.
func parseAddr(raw string) (netip.Addr, bool) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone("").Unmap(), true
}
