// Package bridge maintains the outbound WebSocket link to the control plane.
//
// The bridge authenticates with a shared key, streams state snapshots and player
// events out, and applies whitelist_add / whitelist_remove commands it receives.
// Delivery is best effort: nothing is queued while the link is down, and a full
// snapshot after every successful auth brings the control plane back in sync.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheMich157/whitelisthub/internal/brand"
	"github.com/TheMich157/whitelisthub/internal/clock"
	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/mainloop"
	"github.com/TheMich157/whitelisthub/internal/metrics"
	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

// State is the connection lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "stopped"
	}
}

// Defaults for Options.
const (
	DefaultReconnectDelay   = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultSendQueue        = 64
	DefaultServerID         = "default"
)

// Dispatcher runs tasks on the mutation loop. *mainloop.Loop satisfies it.
type Dispatcher interface {
	Dispatch(task mainloop.Task) bool
}

// Options configures a Bridge.
type Options struct {
	URL      string
	APIKey   string
	ServerID string

	// ReconnectDelay is the wait before the first reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps exponential growth. Zero or anything not above
	// ReconnectDelay keeps the delay fixed.
	MaxReconnectDelay time.Duration
	// DisableReconnect leaves the bridge stopped after the first disconnect.
	DisableReconnect bool
	HandshakeTimeout time.Duration
	// PingInterval is the keepalive period. Negative disables pings.
	PingInterval time.Duration
	SendQueue    int

	Store  whitelist.Store
	Loop   Dispatcher
	Clock  clock.Clock
	Dialer *websocket.Dialer
	Logger *logging.Logger

	// OnReady runs on the read goroutine after each successful auth.
	OnReady func()
}

// Bridge is the control plane client. Create with New; one per process.
type Bridge struct {
	opts   Options
	logger *logging.Logger

	started atomic.Bool
	authed  atomic.Bool
	state   atomic.Int32
	gen     atomic.Uint64

	mu     sync.Mutex
	cur    *connection
	stopCh chan struct{}
}

// New validates opts and fills in defaults.
func New(opts Options) (*Bridge, error) {
	if opts.URL == "" {
		return nil, errors.New("bridge url is required")
	}
	if opts.Store == nil {
		return nil, errors.New("bridge requires a whitelist store")
	}
	if opts.Loop == nil {
		return nil, errors.New("bridge requires a dispatcher")
	}
	if opts.ServerID == "" {
		opts.ServerID = DefaultServerID
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = DefaultSendQueue
	}
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Bridge{opts: opts, logger: logger.WithComponent("bridge")}, nil
}

// Start begins connecting in the background. Calling Start on a started bridge does nothing.
func (b *Bridge) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	gen := b.gen.Add(1)
	stopCh := make(chan struct{})

	b.mu.Lock()
	b.stopCh = stopCh
	b.mu.Unlock()

	b.logger.Info("bridge starting", "url", b.opts.URL, "server_id", b.opts.ServerID)
	go b.run(gen, stopCh)
}

// Stop disconnects and suppresses reconnects. A dial already in flight is not
// aborted; its result is discarded.
func (b *Bridge) Stop() {
	if !b.started.CompareAndSwap(true, false) {
		return
	}
	b.authed.Store(false)

	b.mu.Lock()
	if b.stopCh != nil {
		close(b.stopCh)
		b.stopCh = nil
	}
	c := b.cur
	b.cur = nil
	b.mu.Unlock()

	if c != nil {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		c.close()
	}
	b.setState(StateStopped)
	b.logger.Info("bridge stopped")
}

// IsReady reports whether the bridge is started and authenticated.
func (b *Bridge) IsReady() bool {
	return b.started.Load() && b.authed.Load()
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// SendEvent forwards one event. It is a no-op unless the bridge is ready.
func (b *Bridge) SendEvent(eventType string, payload any) {
	if eventType == "" {
		return
	}
	if payload == nil {
		payload = struct{}{}
	}
	b.send(eventType, EventMessage{
		Type:      TypeEvent,
		EventType: eventType,
		Payload:   payload,
		ServerID:  b.opts.ServerID,
	})
}

// SendState pushes a snapshot. It is a no-op unless the bridge is ready.
func (b *Bridge) SendState(p StatePayload) {
	if p.OnlinePlayers == nil {
		p.OnlinePlayers = []string{}
	}
	if p.Whitelist == nil {
		p.Whitelist = []string{}
	}
	b.send(TypeState, StateMessage{Type: TypeState, Payload: p, ServerID: b.opts.ServerID})
}

func (b *Bridge) send(label string, msg any) {
	if !b.IsReady() {
		metrics.Get().BridgeDropped.WithLabelValues(label).Inc()
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Warn("failed to encode bridge message", "type", label, "error", err)
		return
	}

	b.mu.Lock()
	c := b.cur
	b.mu.Unlock()

	if c == nil || !c.enqueue(data) {
		metrics.Get().BridgeDropped.WithLabelValues(label).Inc()
		return
	}
	metrics.Get().BridgeMessages.WithLabelValues("out", label).Inc()
}

func (b *Bridge) active(gen uint64) bool {
	return b.started.Load() && b.gen.Load() == gen
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
	metrics.Get().BridgeState.Set(float64(s))
}

// run is the connection-management loop for one Start generation.
func (b *Bridge) run(gen uint64, stopCh <-chan struct{}) {
	delay := b.opts.ReconnectDelay
	for {
		if !b.active(gen) {
			return
		}
		b.setState(StateConnecting)

		if b.connectAndServe(gen) {
			delay = b.opts.ReconnectDelay
		}

		if !b.active(gen) {
			return
		}
		if b.opts.DisableReconnect {
			b.logger.Warn("bridge disconnected, reconnect disabled")
			if b.started.CompareAndSwap(true, false) {
				b.setState(StateStopped)
			}
			return
		}

		b.logger.Info("bridge reconnecting", "delay", delay)
		metrics.Get().BridgeReconnects.Inc()
		select {
		case <-b.opts.Clock.After(delay):
		case <-stopCh:
			return
		}
		delay = nextDelay(delay, b.opts.ReconnectDelay, b.opts.MaxReconnectDelay)
	}
}

func nextDelay(cur, base, max time.Duration) time.Duration {
	if max <= base {
		return base
	}
	next := cur * 2
	if next > max {
		next = max
	}
	return next
}

// connectAndServe dials, authenticates and reads until the connection drops.
// It reports whether authentication succeeded on this connection.
func (b *Bridge) connectAndServe(gen uint64) bool {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.HandshakeTimeout)
	header := http.Header{"User-Agent": []string{brand.UserAgent(brand.Version)}}
	ws, _, err := b.opts.Dialer.DialContext(ctx, b.opts.URL, header)
	cancel()
	if err != nil {
		b.logger.Warn("failed to connect to control plane", "url", b.opts.URL, "error", err)
		return false
	}
	if !b.active(gen) {
		ws.Close()
		return false
	}

	c := newConnection(ws, b.opts.SendQueue)
	b.mu.Lock()
	b.cur = c
	b.mu.Unlock()

	defer func() {
		b.authed.Store(false)
		// Back to connecting for the reconnect wait; Stop owns StateStopped.
		if b.state.CompareAndSwap(int32(StateAuthenticated), int32(StateConnecting)) {
			metrics.Get().BridgeState.Set(float64(StateConnecting))
		}
		b.mu.Lock()
		if b.cur == c {
			b.cur = nil
		}
		b.mu.Unlock()
		c.close()
	}()

	b.authed.Store(false)
	go c.writePump(b.opts.PingInterval)

	auth, _ := json.Marshal(AuthMessage{Type: TypeAuth, APIKey: b.opts.APIKey, ServerID: b.opts.ServerID})
	c.enqueue(auth)
	b.logger.Debug("bridge connected, authenticating", "url", b.opts.URL)

	return b.readPump(c)
}

func (b *Bridge) readPump(c *connection) (authedOnce bool) {
	c.ws.SetReadLimit(maxMessageSize)
	pongWait := time.Duration(0)
	if b.opts.PingInterval > 0 {
		pongWait = b.opts.PingInterval * 2
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		// ReadMessage reassembles fragmented frames into one payload.
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Warn("bridge connection lost", "error", err)
			} else {
				b.logger.Info("bridge connection closed", "error", err)
			}
			return authedOnce
		}
		if pongWait > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		}
		if b.handleMessage(c, data) {
			authedOnce = true
		}
	}
}

// handleMessage applies one inbound message and reports whether it completed auth.
func (b *Bridge) handleMessage(c *connection, data []byte) bool {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		b.logger.Debug("discarding malformed bridge message", "error", err)
		return false
	}
	if msg.Type == "" {
		return false
	}
	metrics.Get().BridgeMessages.WithLabelValues("in", msg.Type).Inc()

	switch msg.Type {
	case TypeAuthResult:
		if !authOK(msg.OK) {
			b.authed.Store(false)
			b.logger.Warn("control plane rejected authentication", "error", msg.Error)
			return false
		}
		b.authed.Store(true)
		b.setState(StateAuthenticated)
		b.logger.Info("bridge authenticated", "server_id", b.opts.ServerID)
		if b.opts.OnReady != nil {
			b.opts.OnReady()
		}
		return true

	case TypeWhitelistAdd, TypeWhitelistRemove:
		if !b.authed.Load() {
			b.logger.Warn("ignoring whitelist command before authentication", "type", msg.Type)
			return false
		}
		if msg.Username == nil {
			return false
		}
		name := strings.TrimSpace(*msg.Username)
		if name == "" {
			return false
		}
		b.dispatchWhitelist(msg.Type == TypeWhitelistAdd, name)

	case TypePing:
		pong, _ := json.Marshal(map[string]any{"type": TypePong, "ts": b.opts.Clock.Now().UnixMilli()})
		c.enqueue(pong)

	case TypeError:
		b.logger.Warn("control plane reported an error", "error", msg.Error)
	}
	return false
}

func (b *Bridge) dispatchWhitelist(add bool, name string) {
	store := b.opts.Store
	logger := b.logger
	task := func(ctx context.Context) {
		ctx = whitelist.WithActor(ctx, whitelist.Actor{Source: "bridge"})
		if add {
			if _, err := store.Add(ctx, name); err != nil {
				logger.Warn("bridge whitelist add failed", "player", name, "error", err)
				return
			}
			logger.Info("whitelisted player via bridge", "player", name)
			return
		}
		if err := store.Remove(ctx, name); err != nil {
			logger.Warn("bridge whitelist remove failed", "player", name, "error", err)
			return
		}
		logger.Info("removed player via bridge", "player", name)
	}
	if !b.opts.Loop.Dispatch(task) {
		b.logger.Warn("dropped bridge whitelist command, main loop busy", "player", name)
	}
}
