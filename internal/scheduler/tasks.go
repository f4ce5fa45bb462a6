package scheduler

import (
	"context"
	"time"

	"github.com/TheMich157/whitelisthub/internal/bridge"
	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

// Task IDs.
const (
	TaskStateSnapshot = "state-snapshot"
	TaskAuditPrune    = "audit-prune"
	TaskHealthCheck   = "health-check"
	TaskCertRenew     = "cert-renew"
)

// StateSink receives state snapshots. *bridge.Bridge satisfies it.
type StateSink interface {
	IsReady() bool
	SendState(bridge.StatePayload)
}

// NewStateSnapshotTask pushes the whitelist and online players to sink every
// interval. Nothing is read while the sink is not ready.
func NewStateSnapshotTask(sink StateSink, store whitelist.Store, online func() []string, interval time.Duration) *Task {
	return &Task{
		ID:          TaskStateSnapshot,
		Name:        "State snapshot",
		Description: "Push the current whitelist and online players to the control plane",
		Schedule:    Every(interval),
		Enabled:     true,
		Timeout:     interval,
		Func: func(ctx context.Context) error {
			if !sink.IsReady() {
				return nil
			}
			var players []string
			if online != nil {
				players = online()
			}
			st, err := bridge.BuildState(ctx, store, players)
			if err != nil {
				return err
			}
			sink.SendState(st)
			return nil
		},
	}
}

// Pruner deletes expired records. *audit.Store satisfies it.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// NewAuditPruneTask removes audit events older than the retention window.
func NewAuditPruneTask(p Pruner, schedule Schedule, logger *logging.Logger) *Task {
	return &Task{
		ID:          TaskAuditPrune,
		Name:        "Audit prune",
		Description: "Delete audit events past retention",
		Schedule:    schedule,
		Enabled:     true,
		RunOnStart:  true,
		Timeout:     time.Minute,
		Func: func(ctx context.Context) error {
			n, err := p.Prune(ctx)
			if err != nil {
				return err
			}
			if n > 0 && logger != nil {
				logger.Info("pruned audit events", "count", n)
			}
			return nil
		},
	}
}

// NewHealthCheckTask runs checkFunc periodically so cached health stays fresh.
func NewHealthCheckTask(checkFunc func(context.Context) error, interval time.Duration) *Task {
	return &Task{
		ID:          TaskHealthCheck,
		Name:        "Health check",
		Description: "Refresh component health",
		Schedule:    Every(interval),
		Enabled:     true,
		RunOnStart:  true,
		Timeout:     30 * time.Second,
		Func:        checkFunc,
	}
}

// NewCertRenewTask reloads the API certificate, renewing a self-signed one
// that is close to expiry.
func NewCertRenewTask(reload func(context.Context) error, interval time.Duration) *Task {
	return &Task{
		ID:          TaskCertRenew,
		Name:        "Certificate renewal",
		Description: "Reload the HTTPS certificate and renew it before expiry",
		Schedule:    Every(interval),
		Enabled:     true,
		Timeout:     time.Minute,
		Func:        reload,
	}
}
