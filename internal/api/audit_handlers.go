package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/TheMich157/whitelisthub/internal/audit"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditResponse is returned by GET /api/audit.
type AuditResponse struct {
	Events []audit.Event `json:"events"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
}

// handleAuditQuery handles GET /api/audit.
// Query params: since, until (RFC3339), action, player, limit.
func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		WriteError(w, http.StatusServiceUnavailable, "Audit logging not enabled")
		return
	}

	q := r.URL.Query()
	f := audit.Filter{
		Action: q.Get("action"),
		Player: q.Get("player"),
		Limit:  defaultAuditLimit,
	}
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid "+p.key+" time", "expected RFC3339")
			return
		}
		*p.dst = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		f.Limit = min(n, maxAuditLimit)
	}

	events, err := s.audit.Query(r.Context(), f)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "Failed to query audit log")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	total, _ := s.audit.Count(r.Context())

	WriteJSON(w, http.StatusOK, AuditResponse{Events: events, Total: total, Limit: f.Limit})
}
