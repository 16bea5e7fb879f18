package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP address from the request.
// X-Forwarded-For and X-Real-IP are only honored when trustProxy is set;
// otherwise the direct connection address is used, which prevents header
// spoofing when the server is not behind a reverse proxy.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := firstForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// firstForwardedIP returns the leftmost valid IP from an X-Forwarded-For
// header ("client, proxy1, proxy2, ...").
func firstForwardedIP(xff string) string {
	if xff == "" {
		return ""
	}

	parts := strings.Split(xff, ",")
	candidate := strings.TrimSpace(parts[0])
	if net.ParseIP(candidate) != nil {
		return candidate
	}
	return ""
}
