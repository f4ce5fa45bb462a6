package api

import (
	"net/http"
	"time"

	"github.com/TheMich157/whitelisthub/internal/metrics"
)

// statusWriter captures the status code and response size.
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *statusWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *statusWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// accessLog logs every request and records request metrics. route is the
// registered pattern so metric labels stay bounded.
func (s *Server) accessLog(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		rw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		if rw.status == 0 {
			rw.status = http.StatusOK
		}
		duration := s.clock.Since(start)

		metrics.Get().RecordAPIRequest(r.Method, route, rw.status, duration.Seconds())

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"size", rw.size,
			"ip", clientIP(r, s.trustProxy),
			"duration", duration.Round(time.Millisecond),
		}
		switch {
		case rw.status >= 500:
			s.logger.Error("request", args...)
		case rw.status >= 400:
			s.logger.Warn("request", args...)
		case route == routeHealth || route == routeMetrics:
			s.logger.Debug("request", args...)
		default:
			s.logger.Info("request", args...)
		}
	})
}
