package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ControlPlane is a fake realtime hub. It answers auth messages and records
// everything the bridge sends.
type ControlPlane struct {
	URL string

	apiKey   string
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*cpConn
	received []map[string]any
	notify   chan struct{}

	connections atomic.Int32
	silent      atomic.Bool
}

type cpConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *cpConn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// NewControlPlane starts a hub that accepts apiKey.
func NewControlPlane(t testing.TB, apiKey string) *ControlPlane {
	t.Helper()
	cp := &ControlPlane{apiKey: apiKey, notify: make(chan struct{}, 1)}
	cp.srv = httptest.NewServer(http.HandlerFunc(cp.handle))
	cp.URL = "ws" + strings.TrimPrefix(cp.srv.URL, "http")
	t.Cleanup(func() {
		cp.DropAll()
		cp.srv.Close()
	})
	return cp
}

// SetSilent stops the hub from answering auth messages.
func (cp *ControlPlane) SetSilent(v bool) {
	cp.silent.Store(v)
}

// Connections counts accepted websocket upgrades.
func (cp *ControlPlane) Connections() int {
	return int(cp.connections.Load())
}

// Messages returns every message received so far, in order.
func (cp *ControlPlane) Messages() []map[string]any {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return append([]map[string]any(nil), cp.received...)
}

// MessagesOfType filters Messages by their type field.
func (cp *ControlPlane) MessagesOfType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range cp.Messages() {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// WaitFor blocks until at least n messages of typ have arrived.
func (cp *ControlPlane) WaitFor(t testing.TB, typ string, n int, timeout time.Duration) []map[string]any {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if msgs := cp.MessagesOfType(typ); len(msgs) >= n {
			return msgs
		}
		select {
		case <-cp.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %d %q messages, got %d", n, typ, len(cp.MessagesOfType(typ)))
			return nil
		}
	}
}

// Send writes v to the most recent connection.
func (cp *ControlPlane) Send(v any) error {
	cp.mu.Lock()
	var c *cpConn
	if len(cp.conns) > 0 {
		c = cp.conns[len(cp.conns)-1]
	}
	cp.mu.Unlock()
	if c == nil {
		return websocket.ErrCloseSent
	}
	return c.write(v)
}

// SendRaw writes a text frame verbatim to the most recent connection.
func (cp *ControlPlane) SendRaw(data string) error {
	cp.mu.Lock()
	var c *cpConn
	if len(cp.conns) > 0 {
		c = cp.conns[len(cp.conns)-1]
	}
	cp.mu.Unlock()
	if c == nil {
		return websocket.ErrCloseSent
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(data))
}

// DropAll closes every open connection without a close handshake.
func (cp *ControlPlane) DropAll() {
	cp.mu.Lock()
	conns := cp.conns
	cp.conns = nil
	cp.mu.Unlock()
	for _, c := range conns {
		c.ws.Close()
	}
}

func (cp *ControlPlane) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := cp.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	cp.connections.Add(1)
	c := &cpConn{ws: ws}
	cp.mu.Lock()
	cp.conns = append(cp.conns, c)
	cp.mu.Unlock()
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		cp.mu.Lock()
		cp.received = append(cp.received, msg)
		cp.mu.Unlock()
		select {
		case cp.notify <- struct{}{}:
		default:
		}

		if msg["type"] != "auth" || cp.silent.Load() {
			continue
		}
		if msg["apiKey"] == cp.apiKey {
			_ = c.write(map[string]any{"type": "auth_result", "ok": true})
			continue
		}
		_ = c.write(map[string]any{"type": "auth_result", "ok": false, "error": "invalid_api_key"})
		return
	}
}
