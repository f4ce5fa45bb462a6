package whitelist

import (
	"context"

	"github.com/TheMich157/whitelisthub/internal/audit"
	"github.com/TheMich157/whitelisthub/internal/events"
	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/metrics"
)

// Actor identifies who triggered a store operation.
type Actor struct {
	Source string // api, bridge, cli, console
	IP     string
}

type actorKey struct{}

// WithActor attaches the caller identity to ctx for audit records.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, or an "internal" actor.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Actor{Source: "internal"}
}

// AuditWriter persists audit events. *audit.Store satisfies it.
type AuditWriter interface {
	Write(ctx context.Context, evt audit.Event) error
}

// Instrumented wraps a Store with metrics, audit records and audit log lines.
type Instrumented struct {
	Store
	audit  AuditWriter
	hub    *events.Hub
	logger *logging.Logger
}

// Instrument decorates s. A nil audit writer only logs.
func Instrument(s Store, w AuditWriter, logger *logging.Logger) *Instrumented {
	if logger == nil {
		logger = logging.Default()
	}
	return &Instrumented{Store: s, audit: w, logger: logger.WithComponent("whitelist")}
}

// PublishTo makes every add and remove also emit a whitelist event on hub.
func (i *Instrumented) PublishTo(hub *events.Hub) *Instrumented {
	i.hub = hub
	return i
}

// Add implements Store.
func (i *Instrumented) Add(ctx context.Context, username string) (*Entry, error) {
	entry, err := i.Store.Add(ctx, username)
	details := map[string]any{}
	if entry != nil && entry.UUID != "" {
		details["uuid"] = entry.UUID
	}
	i.record(ctx, "add", audit.ActionAdd, username, details, err)
	uuid := ""
	if entry != nil {
		uuid = entry.UUID
	}
	i.publish(ctx, events.EventWhitelistAdd, username, uuid, err)
	return entry, err
}

// Remove implements Store.
func (i *Instrumented) Remove(ctx context.Context, username string) error {
	err := i.Store.Remove(ctx, username)
	i.record(ctx, "remove", audit.ActionRemove, username, nil, err)
	i.publish(ctx, events.EventWhitelistRemove, username, "", err)
	return err
}

func (i *Instrumented) publish(ctx context.Context, t events.EventType, player, uuid string, err error) {
	if i.hub == nil {
		return
	}
	data := events.WhitelistData{
		Player:  player,
		UUID:    uuid,
		Backend: i.Backend(),
		Success: err == nil,
	}
	if err != nil {
		data.Error = PublicMessage(err)
	}
	i.hub.EmitWhitelist(t, ActorFrom(ctx).Source, data)
}

// List implements Store. Successful lists refresh the entries gauge.
func (i *Instrumented) List(ctx context.Context) (*Status, error) {
	st, err := i.Store.List(ctx)
	metrics.Get().RecordWhitelistOp(i.Backend(), "list", err)
	if err == nil {
		metrics.Get().WhitelistEntries.WithLabelValues(i.Backend()).Set(float64(st.Count))
	}
	return st, err
}

func (i *Instrumented) record(ctx context.Context, op, action, player string, details map[string]any, err error) {
	metrics.Get().RecordWhitelistOp(i.Backend(), op, err)

	actor := ActorFrom(ctx)
	if details == nil {
		details = map[string]any{}
	}
	details["backend"] = i.Backend()
	if err != nil {
		details["error"] = PublicMessage(err)
	}

	logDetails := map[string]any{"source": actor.Source, "success": err == nil}
	if actor.IP != "" {
		logDetails["ip"] = actor.IP
	}
	for k, v := range details {
		logDetails[k] = v
	}
	i.logger.Audit(action, player, logDetails)

	if i.audit == nil {
		return
	}
	evt := audit.Event{
		Source:  actor.Source,
		Action:  action,
		Player:  player,
		Details: details,
		Success: err == nil,
		IP:      actor.IP,
	}
	// Audit persistence must not fail the mutation that already happened.
	if werr := i.audit.Write(context.WithoutCancel(ctx), evt); werr != nil {
		i.logger.Error("failed to write audit event", "action", action, "error", werr)
	}
}
