package api

import (
	"context"
	"net/http"
	"time"

	"github.com/TheMich157/whitelisthub/internal/brand"
	"github.com/TheMich157/whitelisthub/internal/health"
	"github.com/TheMich157/whitelisthub/internal/scheduler"
	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status      string                  `json:"status"`
	Timestamp   time.Time               `json:"timestamp"`
	Service     string                  `json:"service"`
	Version     string                  `json:"version"`
	Mode        whitelist.Mode          `json:"mode"`
	RCONEnabled bool                    `json:"rcon_enabled"`
	RCONHost    string                  `json:"rcon_host,omitempty"`
	RCONPort    int                     `json:"rcon_port,omitempty"`
	Backend     string                  `json:"backend"`
	Bridge      string                  `json:"bridge"`
	Checks      map[string]health.Check `json:"checks"`
	Tasks       []scheduler.TaskStatus  `json:"tasks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	report := s.checker.Check(ctx)

	status := "ok"
	code := http.StatusOK
	switch report.Status {
	case health.StatusDegraded:
		status = string(health.StatusDegraded)
	case health.StatusUnhealthy:
		status = string(health.StatusUnhealthy)
		code = http.StatusServiceUnavailable
	}

	bridgeState := "disabled"
	if s.bridgeState != nil {
		bridgeState = s.bridgeState()
	}

	resp := HealthResponse{
		Status:      status,
		Timestamp:   s.clock.Now().UTC(),
		Service:     brand.ServiceID,
		Version:     brand.Version,
		Mode:        s.mode,
		RCONEnabled: s.info.RCONEnabled,
		Backend:     s.store.Backend(),
		Bridge:      bridgeState,
		Checks:      report.Checks,
	}
	if s.tasks != nil {
		resp.Tasks = s.tasks()
	}
	if s.info.RCONEnabled {
		resp.RCONHost = s.info.RCONHost
		resp.RCONPort = s.info.RCONPort
	}
	WriteJSON(w, code, resp)
}
