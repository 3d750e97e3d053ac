package api

import (
	"fmt"
	"net"
	"net/http"
	"time"
)

// requestLogger logs one line per request with method, path, and
// duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.DebugContext(r.Context(), "Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", clientIP(r),
			"duration", time.Since(start))
	})
}

// rateLimitByIP applies the shared API limiter keyed by client IP.
// Exceeding the budget yields a 429 with a Retry-After hint.
func (s *Server) rateLimitByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if s.apiLimiter.IsLimited(ip) {
			reset := s.apiLimiter.ResetAfter(ip)
			retryAfter := int(reset.Seconds()) + 1

			s.logger.InfoContext(r.Context(), "API request rate limited",
				"remote", ip, "path", r.URL.Path, "retry_after", retryAfter)

			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			s.writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				fmt.Sprintf("Too many requests. Try again in %d seconds.", retryAfter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the host part of the remote address. The RealIP
// middleware has already rewritten it from X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
