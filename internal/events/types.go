// Package events provides the in-process pub/sub bus for player activity and
// whitelist changes. The log watcher and the whitelist store publish. The
// bridge, the presence tracker and the notifier subscribe.
package events

import "time"

// EventType identifies the category of event. Values double as the bridge's
// eventType field.
type EventType string

const (
	EventPlayerJoin    EventType = "player_join"
	EventPlayerQuit    EventType = "player_quit"
	EventChat          EventType = "chat"
	EventPlayerCommand EventType = "player_command"
	EventServerCommand EventType = "server_command"

	EventWhitelistAdd    EventType = "whitelist_add"
	EventWhitelistRemove EventType = "whitelist_remove"
)

// WhitelistEvents are published after every add or remove attempt.
var WhitelistEvents = []EventType{EventWhitelistAdd, EventWhitelistRemove}

// PlayerEvents lists every event type forwarded to the control plane.
var PlayerEvents = []EventType{
	EventPlayerJoin,
	EventPlayerQuit,
	EventChat,
	EventPlayerCommand,
	EventServerCommand,
}

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "log", "rcon", or the actor for whitelist events
	Data      any       `json:"data"`
}

// PlayerData is the payload for EventPlayerJoin and EventPlayerQuit.
type PlayerData struct {
	Player string `json:"player"`
}

// ChatData is the payload for EventChat.
type ChatData struct {
	Player  string `json:"player"`
	Message string `json:"message"`
}

// PlayerCommandData is the payload for EventPlayerCommand.
type PlayerCommandData struct {
	Player  string `json:"player"`
	Command string `json:"command"`
}

// ServerCommandData is the payload for EventServerCommand.
type ServerCommandData struct {
	Sender  string `json:"sender"`
	Command string `json:"command"`
}

// WhitelistData is the payload for EventWhitelistAdd and EventWhitelistRemove.
type WhitelistData struct {
	Player  string `json:"player"`
	UUID    string `json:"uuid,omitempty"`
	Backend string `json:"backend"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
