package middleware

import (
	"context"
	"net/http"
)

// ClientIPContextKey is the context key for the resolved client IP.
const ClientIPContextKey contextKey = "client_ip"

// WithClientIP resolves the real client IP (proxy headers first, then
// RemoteAddr) and stores it in the context. Place it early in the chain:
// the rate limiter and the request logger both read it, and fraud review
// of payment attempts depends on the IP being recorded.
//
// The proxy headers are spoofable, so in production the service must sit
// behind a reverse proxy that overwrites them.
func WithClientIP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ClientIPContextKey, GetClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientIPFromContext returns the client IP stored by WithClientIP,
// or "" if the middleware was not applied.
func GetClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPContextKey).(string); ok {
		return ip
	}
	return ""
}
