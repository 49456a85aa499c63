package middleware

import (
	"net"
	"net/http"

	"secure-relay/internal/guard"
	"secure-relay/internal/observability"
)

// Guard rejects every request from a blocked origin with 503 before any
// handler runs. It relies on chi's RealIP having rewritten RemoteAddr.
func Guard(g guard.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.IsBlocked(r.Context(), ClientIP(r)) {
				observability.BlockedRequestsTotal.WithLabelValues("http").Inc()
				writeJSONError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP strips the port from RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
