package notify

import (
	"context"

	"github.com/TheMich157/whitelisthub/internal/events"
	"github.com/TheMich157/whitelisthub/internal/metrics"
)

// Run sends a notification for every whitelist event on hub until ctx is
// done. Deliveries happen inline, so a slow channel delays later events
// rather than reordering them.
func (d *Dispatcher) Run(ctx context.Context, hub *events.Hub) {
	ch := hub.Subscribe(64, events.WhitelistEvents...)
	defer hub.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			n, ok := FromEvent(e)
			if !ok {
				continue
			}
			result := "sent"
			if d.Send(ctx, n) == 0 {
				result = "none"
			}
			metrics.Get().Notifications.WithLabelValues(string(e.Type), result).Inc()
		}
	}
}

// FromEvent renders a whitelist event. Failed changes are warnings.
func FromEvent(e events.Event) (Notification, bool) {
	data, ok := e.Data.(events.WhitelistData)
	if !ok {
		return Notification{}, false
	}

	n := Notification{
		Level:     LevelInfo,
		Timestamp: e.Timestamp,
		Fields: []Field{
			{Name: "Minecraft Username", Value: data.Player},
			{Name: "Source", Value: e.Source},
		},
		Data: map[string]any{
			"event":   string(e.Type),
			"player":  data.Player,
			"backend": data.Backend,
			"success": data.Success,
		},
	}
	if data.UUID != "" {
		n.Fields = append(n.Fields, Field{Name: "UUID", Value: data.UUID})
		n.Data["uuid"] = data.UUID
	}

	switch {
	case e.Type == events.EventWhitelistAdd && data.Success:
		n.Title = "Whitelist Request Approved"
		n.Message = data.Player + " was added to the whitelist"
	case e.Type == events.EventWhitelistRemove && data.Success:
		n.Title = "Removed From Whitelist"
		n.Message = data.Player + " was removed from the whitelist"
	case e.Type == events.EventWhitelistAdd:
		n.Title = "Whitelist Add Failed"
		n.Message = "Could not add " + data.Player + ": " + data.Error
		n.Level = LevelWarning
	case e.Type == events.EventWhitelistRemove:
		n.Title = "Whitelist Remove Failed"
		n.Message = "Could not remove " + data.Player + ": " + data.Error
		n.Level = LevelWarning
	default:
		return Notification{}, false
	}
	if !data.Success {
		n.Data["error"] = data.Error
	}
	return n, true
}
