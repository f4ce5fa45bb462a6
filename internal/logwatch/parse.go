package logwatch

import (
	"regexp"
	"strings"

	"github.com/TheMich157/whitelisthub/internal/events"
)

var (
	// [12:00:00] [Server thread/INFO]: msg
	// [12:00:00] [Server thread/INFO] [minecraft/DedicatedServer]: msg
	linePrefix = regexp.MustCompile(`^\[[^\]]*\] \[[^\]]*\](?: \[[^\]]*\])?: (.*)$`)

	joinRe    = regexp.MustCompile(`^([A-Za-z0-9_]{1,16}) joined the game$`)
	quitRe    = regexp.MustCompile(`^([A-Za-z0-9_]{1,16}) left the game$`)
	chatRe    = regexp.MustCompile(`^(?:\[Not Secure\] )?<([A-Za-z0-9_]{1,16})> (.*)$`)
	commandRe = regexp.MustCompile(`^([A-Za-z0-9_]{1,16}) issued server command: (.*)$`)
)

// Line is one recognised server log line.
type Line struct {
	Type    events.EventType
	Player  string
	Message string
	Command string
}

// ParseLine extracts a player event from a vanilla server log line.
func ParseLine(raw string) (Line, bool) {
	raw = strings.TrimRight(raw, "\r\n")
	m := linePrefix.FindStringSubmatch(raw)
	if m == nil {
		return Line{}, false
	}
	msg := m[1]

	if g := joinRe.FindStringSubmatch(msg); g != nil {
		return Line{Type: events.EventPlayerJoin, Player: g[1]}, true
	}
	if g := quitRe.FindStringSubmatch(msg); g != nil {
		return Line{Type: events.EventPlayerQuit, Player: g[1]}, true
	}
	if g := chatRe.FindStringSubmatch(msg); g != nil {
		return Line{Type: events.EventChat, Player: g[1], Message: g[2]}, true
	}
	if g := commandRe.FindStringSubmatch(msg); g != nil {
		return Line{Type: events.EventPlayerCommand, Player: g[1], Command: g[2]}, true
	}
	return Line{}, false
}

// Publish emits l on hub.
func (l Line) Publish(hub *events.Hub, source string) {
	switch l.Type {
	case events.EventPlayerJoin:
		hub.EmitJoin(source, l.Player)
	case events.EventPlayerQuit:
		hub.EmitQuit(source, l.Player)
	case events.EventChat:
		hub.EmitChat(source, l.Player, l.Message)
	case events.EventPlayerCommand:
		hub.EmitPlayerCommand(source, l.Player, l.Command)
	}
}
