package httpx

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the originating client address from the request. It
// honours X-Forwarded-For and X-Real-IP for proxied deployments before
// falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// BearerToken extracts the credential from a "Bearer <token>" header value.
// Returns the empty string when the header is absent or not bearer-shaped.
func BearerToken(r *http.Request, header string) string {
	v := r.Header.Get(header)
	if v == "" || !strings.HasPrefix(v, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(v, "Bearer"))
}
