package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the originating address, preferring proxy headers over
// the socket peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}

	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// AppType identifies the client application kind (web, mobile, ...) used
// to key session tracking. Empty when the client does not say.
func AppType(r *http.Request) string {
	return r.Header.Get("X-App-Type")
}

// Lang returns the requested content language, defaulting to French as the
// platform's primary locale.
func Lang(r *http.Request) string {
	if lang := r.Header.Get("X-Lang"); lang != "" {
		return lang
	}
	return "fr"
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}

	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
