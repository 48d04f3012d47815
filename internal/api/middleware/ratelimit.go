package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/gsaplatform/orchestrator/internal/blackboard"
)

// RateLimitMiddleware admits at most limit requests per window for each
// remote address against the named endpoint, guarding admission
// handlers (POST /analysis, POST /data/load/{resource_id}) against a
// single client hammering the Broker.
func RateLimitMiddleware(bb *blackboard.Blackboard, endpoint string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := clientAddr(r)
			key := blackboard.RateLimitKey(endpoint, caller)

			allowed, err := bb.CheckRateLimit(r.Context(), key, limit, window)
			if err != nil {
				// The Blackboard is the sole shared-mutable surface; if it
				// can't answer a rate-limit check it can't admit the job
				// either, so this is the same 503 path as an admission
				// failure further down the handler.
				writeError(w, http.StatusServiceUnavailable, errCodeServiceUnavailable, "blackboard unavailable")
				return
			}
			if !allowed {
				writeError(w, http.StatusTooManyRequests, errCodeRateLimited, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
