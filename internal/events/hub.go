package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Hub provides pub/sub semantics with typed events and non-blocking fan-out.
type Hub struct {
	mu   sync.RWMutex
	subs map[EventType][]chan Event

	// Global subscribers receive all events
	global []chan Event

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a new event hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[EventType][]chan Event),
	}
}

// Publish sends an event to all subscribers of that event type.
// This is non-blocking - if a subscriber's channel is full, the event is dropped.
// A nil hub discards the event.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	h.published.Add(1)

	for _, ch := range h.subs[e.Type] {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}

	for _, ch := range h.global {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel that receives events of the specified types.
// If no types are specified, subscribes to all events.
// The caller is responsible for draining the channel to avoid drops.
func (h *Hub) Subscribe(bufSize int, types ...EventType) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}

	ch := make(chan Event, bufSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(types) == 0 {
		h.global = append(h.global, ch)
	} else {
		for _, t := range types {
			h.subs[t] = append(h.subs[t], ch)
		}
	}

	return ch
}

// Unsubscribe removes a channel from all subscriptions.
// The channel is NOT closed by this method.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.global = removeFromSlice(h.global, ch)
	for t, subs := range h.subs {
		h.subs[t] = removeFromSlice(subs, ch)
	}
}

// Stats returns publish/drop counts for monitoring.
func (h *Hub) Stats() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}

func removeFromSlice(slice []chan Event, target <-chan Event) []chan Event {
	result := make([]chan Event, 0, len(slice))
	for _, ch := range slice {
		if ch != target {
			result = append(result, ch)
		}
	}
	return result
}

// ──────────────────────────────────────────────────────────────────────────────
// Convenience Methods
// ──────────────────────────────────────────────────────────────────────────────

// EmitJoin publishes a player join.
func (h *Hub) EmitJoin(source, player string) {
	h.Publish(Event{Type: EventPlayerJoin, Source: source, Data: PlayerData{Player: player}})
}

// EmitQuit publishes a player quit.
func (h *Hub) EmitQuit(source, player string) {
	h.Publish(Event{Type: EventPlayerQuit, Source: source, Data: PlayerData{Player: player}})
}

// EmitChat publishes a chat line.
func (h *Hub) EmitChat(source, player, message string) {
	h.Publish(Event{Type: EventChat, Source: source, Data: ChatData{Player: player, Message: message}})
}

// EmitPlayerCommand publishes a command issued by a player.
func (h *Hub) EmitPlayerCommand(source, player, command string) {
	h.Publish(Event{Type: EventPlayerCommand, Source: source, Data: PlayerCommandData{Player: player, Command: command}})
}

// EmitServerCommand publishes a command issued by the console or RCON.
func (h *Hub) EmitServerCommand(source, sender, command string) {
	h.Publish(Event{Type: EventServerCommand, Source: source, Data: ServerCommandData{Sender: sender, Command: command}})
}

// EmitWhitelist publishes the outcome of a whitelist mutation. source is the
// actor that requested it.
func (h *Hub) EmitWhitelist(t EventType, source string, data WhitelistData) {
	h.Publish(Event{Type: t, Source: source, Data: data})
}
