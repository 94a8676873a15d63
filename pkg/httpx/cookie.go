package httpx

import (
	"net/http"
	"time"
)

// ContextCookieName is the cookie carrying the opaque per-session context
// value that token fingerprints are bound to.
const ContextCookieName = "user_context"

// SetContextCookie sets the session context cookie. Max-Age tracks the
// refresh token TTL: once the refresh token is dead the context value is
// useless anyway.
func SetContextCookie(w http.ResponseWriter, value string, refreshTTL time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ContextCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearContextCookie expires the session context cookie.
func ClearContextCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ContextCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ContextCookieValue returns the context cookie value, or "" when absent.
func ContextCookieValue(r *http.Request) string {
	c, err := r.Cookie(ContextCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
