package health

import (
	"context"
	"fmt"
	"time"

	"github.com/TheMich157/whitelisthub/internal/clock"

	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

// WhitelistCheck lists the whitelist. Failure makes the service unhealthy.
func WhitelistCheck(store whitelist.Store) CheckFunc {
	return func(ctx context.Context) Check {
		st, err := store.List(ctx)
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: whitelist.PublicMessage(err)}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d entries via %s", st.Count, store.Backend())}
	}
}

// RCONCheck runs a harmless command. An unreachable console only degrades
// the service unless it is the whitelist backend.
func RCONCheck(exec whitelist.Executor, required bool) CheckFunc {
	return func(ctx context.Context) Check {
		if _, err := exec.Execute(ctx, "list"); err != nil {
			status := StatusDegraded
			if required {
				status = StatusUnhealthy
			}
			return Check{Status: status, Message: "rcon unreachable"}
		}
		return Check{Status: StatusHealthy, Message: "rcon reachable"}
	}
}

// BridgeCheck reports the control plane link. Being disconnected is degraded.
func BridgeCheck(ready func() bool) CheckFunc {
	return func(ctx context.Context) Check {
		if ready() {
			return Check{Status: StatusHealthy, Message: "authenticated"}
		}
		return Check{Status: StatusDegraded, Message: "not connected"}
	}
}

// Pinger is satisfied by *audit.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuditCheck verifies the audit database answers.
func AuditCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) Check {
		if err := p.Ping(ctx); err != nil {
			return Check{Status: StatusDegraded, Message: "audit store unavailable"}
		}
		return Check{Status: StatusHealthy, Message: "ok"}
	}
}

// CertificateCheck degrades when the HTTPS certificate expires within warn
// and fails once it has expired.
func CertificateCheck(notAfter func() time.Time, clk clock.Clock, warn time.Duration) CheckFunc {
	return func(ctx context.Context) Check {
		left := notAfter().Sub(clk.Now())
		switch {
		case left <= 0:
			return Check{Status: StatusUnhealthy, Message: "certificate expired"}
		case left < warn:
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("certificate expires in %s", left.Round(time.Hour))}
		}
		return Check{Status: StatusHealthy, Message: "valid until " + notAfter().UTC().Format(time.RFC3339)}
	}
}
