package bridge

import "encoding/json"

// Message types exchanged with the control plane.
const (
	TypeAuth            = "auth"
	TypeAuthResult      = "auth_result"
	TypeEvent           = "event"
	TypeState           = "state"
	TypeWhitelistAdd    = "whitelist_add"
	TypeWhitelistRemove = "whitelist_remove"
	TypeError           = "error"
	TypePing            = "ping"
	TypePong            = "pong"
)

// AuthMessage is sent immediately after the connection opens.
type AuthMessage struct {
	Type     string `json:"type"`
	APIKey   string `json:"apiKey"`
	ServerID string `json:"serverId"`
}

// EventMessage carries one player or server event.
type EventMessage struct {
	Type      string `json:"type"`
	EventType string `json:"eventType"`
	Payload   any    `json:"payload"`
	ServerID  string `json:"serverId"`
}

// StatePayload is the full server snapshot pushed periodically and after auth.
type StatePayload struct {
	OnlineCount    int      `json:"onlineCount"`
	WhitelistCount int      `json:"whitelistCount"`
	OnlinePlayers  []string `json:"onlinePlayers"`
	Whitelist      []string `json:"whitelist"`
}

// StateMessage wraps a StatePayload.
type StateMessage struct {
	Type     string       `json:"type"`
	Payload  StatePayload `json:"payload"`
	ServerID string       `json:"serverId"`
}

// inbound is the union of fields the bridge reads from control plane messages.
type inbound struct {
	Type     string          `json:"type"`
	OK       json.RawMessage `json:"ok,omitempty"`
	Error    string          `json:"error,omitempty"`
	Username *string         `json:"username,omitempty"`
}

// authOK accepts true or 1.
func authOK(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch ok := v.(type) {
	case bool:
		return ok
	case float64:
		return ok == 1
	}
	return false
}
