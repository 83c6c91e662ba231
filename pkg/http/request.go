package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"
)

// maxUserAgentLen bounds what is stored in login history and audit rows
const maxUserAgentLen = 512

// IPConfig lists the proxies whose forwarding headers are believed
type IPConfig struct {
	TrustedProxies []string // CIDR ranges; invalid entries are ignored
}

func (c *IPConfig) trusts(addr netip.Addr) bool {
	if c == nil || !addr.IsValid() {
		return false
	}
	for _, cidr := range c.TrustedProxies {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err == nil && prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the caller's IP for rate limiting and login
// history. Forwarding headers are only read when the direct peer is a
// trusted proxy. X-Forwarded-For is walked right to left and the first hop
// that is not itself a trusted proxy wins, so a client cannot choose its
// own key by prepending addresses.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := remoteAddr(r)
	if !config.trusts(peer) {
		if peer.IsValid() {
			return peer.String()
		}
		return fallbackRemote(r)
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !config.trusts(hop) {
				return hop.Unmap().String()
			}
		}
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}

	return peer.String()
}

// UserAgent returns the request's User-Agent cut to a storable length
// without splitting a UTF-8 sequence
func UserAgent(r *http.Request) string {
	ua := r.UserAgent()
	if len(ua) <= maxUserAgentLen {
		return ua
	}
	ua = ua[:maxUserAgentLen]
	for !utf8.ValidString(ua) {
		ua = ua[:len(ua)-1]
	}
	return ua
}

func remoteAddr(r *http.Request) netip.Addr {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func fallbackRemote(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}
