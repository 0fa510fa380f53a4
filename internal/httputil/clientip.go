package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// GetClientIP extracts the client IP from X-Forwarded-For (first hop),
// X-Real-IP or RemoteAddr, in that order. Header values that do not parse as
// an IP address are ignored.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := parseIP(first); ok {
			return ip
		}
	}

	if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIP(value string) (string, bool) {
	value = strings.Trim(strings.TrimSpace(value), "[]")
	if value == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return "", false
	}
	return addr.String(), true
}
