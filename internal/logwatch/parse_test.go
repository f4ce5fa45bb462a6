package logwatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMich157/whitelisthub/internal/events"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Line
		ok   bool
	}{
		{"join", "[12:00:01] [Server thread/INFO]: Steve joined the game", Line{Type: events.EventPlayerJoin, Player: "Steve"}, true},
		{"quit", "[12:00:02] [Server thread/INFO]: Alex left the game\r\n", Line{Type: events.EventPlayerQuit, Player: "Alex"}, true},
		{"chat", "[12:00:03] [Server thread/INFO]: <Steve> hello there", Line{Type: events.EventChat, Player: "Steve", Message: "hello there"}, true},
		{"unsigned chat", "[12:00:03] [Server thread/INFO]: [Not Secure] <Steve> hi", Line{Type: events.EventChat, Player: "Steve", Message: "hi"}, true},
		{"command", "[12:00:04] [Server thread/INFO]: Notch issued server command: /tp 0 64 0", Line{Type: events.EventPlayerCommand, Player: "Notch", Command: "/tp 0 64 0"}, true},
		{"forge prefix", "[12:00:05] [Server thread/INFO] [minecraft/DedicatedServer]: Steve joined the game", Line{Type: events.EventPlayerJoin, Player: "Steve"}, true},
		{"startup", "[12:00:00] [Server thread/INFO]: Done (3.2s)! For help, type \"help\"", Line{}, false},
		{"no prefix", "Steve joined the game", Line{}, false},
		{"bad name", "[12:00:01] [Server thread/INFO]: Bad-Name joined the game", Line{}, false},
		{"empty", "", Line{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
