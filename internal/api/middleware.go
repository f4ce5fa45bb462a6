package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/TheMich157/whitelisthub/internal/audit"
)

// protected wraps h with the middleware every whitelist route shares.
// Order: access log, body limit, rate limit, API key.
func (s *Server) protected(route string, h http.HandlerFunc) http.Handler {
	return s.accessLog(route, s.maxBodyMiddleware(s.rateLimitMiddleware(s.requireAPIKey(h))))
}

// maxBodyMiddleware limits request bodies.
func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > s.maxBody {
			WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, s.trustProxy)
		d := s.limiter.Allow(ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			s.recordSecurity(r, audit.ActionRateLimited, ip, "Rate limit exceeded")
			WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.keys.Verify(r.Header.Get("X-API-Key")) {
			s.recordSecurity(r, audit.ActionAuthFailed, clientIP(r, s.trustProxy), "Invalid API key")
			WriteError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recordSecurity logs and persists a rejected request.
func (s *Server) recordSecurity(r *http.Request, action, ip, reason string) {
	s.logger.Audit(action, "", map[string]any{"ip": ip, "path": r.URL.Path, "success": false, "error": reason})
	if s.audit == nil {
		return
	}
	evt := audit.Event{
		Source:  "api",
		Action:  action,
		Success: false,
		IP:      ip,
		Details: map[string]any{"path": r.URL.Path, "error": reason},
	}
	if err := s.audit.Write(r.Context(), evt); err != nil {
		s.logger.Error("failed to write audit event", "action", action, "error", err)
	}
}
