// Package notify posts whitelist changes to chat and push services.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/TheMich157/whitelisthub/internal/config"
	"github.com/TheMich157/whitelisthub/internal/logging"
)

// Notification levels, lowest first.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

const defaultNtfyServer = "https://ntfy.sh"

// Field is a labelled value rendered as a Discord embed field or a line of
// plain text elsewhere.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Notification is a message to send.
type Notification struct {
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    []Field        `json:"fields,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Dispatcher fans notifications out to the configured channels.
type Dispatcher struct {
	client *http.Client
	logger *logging.Logger

	mu     sync.RWMutex
	config *config.NotifyConfig
}

// NewDispatcher creates a dispatcher. A nil client gets one bounded by the
// configured timeout.
func NewDispatcher(cfg *config.NotifyConfig, client *http.Client, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if client == nil {
		timeout := config.DefaultNotifyTimeout
		if cfg != nil {
			timeout = cfg.TimeoutDuration()
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Dispatcher{
		client: client,
		config: cfg,
		logger: logger.WithComponent("notify"),
	}
}

// UpdateConfig swaps the channel list.
func (d *Dispatcher) UpdateConfig(cfg *config.NotifyConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
}

// Send delivers n to every enabled channel whose level it meets and waits
// for all deliveries. Failures are logged; the number delivered is returned.
func (d *Dispatcher) Send(ctx context.Context, n Notification) int {
	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	if cfg == nil || !cfg.Enabled {
		return 0
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, ch := range cfg.Channels {
		if !config.Bool(ch.Enabled) || !shouldSend(n.Level, ch.Level) {
			continue
		}

		wg.Add(1)
		go func(channel config.NotifyChannel) {
			defer wg.Done()
			if err := d.sendToChannel(ctx, channel, n); err != nil {
				d.logger.Error("failed to send notification",
					"channel", channel.Name,
					"type", channel.Type,
					"error", err)
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return delivered
}

// SendSimple is a helper for plain messages.
func (d *Dispatcher) SendSimple(ctx context.Context, title, message, level string) int {
	return d.Send(ctx, Notification{Title: title, Message: message, Level: level})
}

// shouldSend checks if a message level meets the channel's minimum level.
func shouldSend(msgLevel, chanLevel string) bool {
	if chanLevel == "" {
		return true
	}
	return levelRank(msgLevel) >= levelRank(chanLevel)
}

func levelRank(level string) int {
	switch strings.ToLower(level) {
	case LevelCritical:
		return 3
	case LevelWarning:
		return 2
	default:
		return 1
	}
}

func (d *Dispatcher) sendToChannel(ctx context.Context, ch config.NotifyChannel, n Notification) error {
	switch strings.ToLower(ch.Type) {
	case "discord":
		return d.post(ctx, ch, ch.WebhookURL, discordPayload(n))
	case "slack":
		return d.post(ctx, ch, ch.WebhookURL, map[string]any{"text": slackText(n)})
	case "webhook":
		return d.post(ctx, ch, ch.WebhookURL, n)
	case "ntfy":
		return d.sendNtfy(ctx, ch, n)
	default:
		return fmt.Errorf("unknown channel type: %s", ch.Type)
	}
}

// Discord embed colors.
const (
	colorGreen  = 0x00ff00
	colorOrange = 0xffa500
	colorRed    = 0xff0000
)

func discordPayload(n Notification) map[string]any {
	color := colorGreen
	switch n.Level {
	case LevelWarning:
		color = colorOrange
	case LevelCritical:
		color = colorRed
	}

	fields := make([]map[string]any, 0, len(n.Fields))
	for _, f := range n.Fields {
		fields = append(fields, map[string]any{"name": f.Name, "value": f.Value, "inline": true})
	}
	embed := map[string]any{
		"title":       n.Title,
		"description": n.Message,
		"color":       color,
		"timestamp":   n.Timestamp.UTC().Format(time.RFC3339),
	}
	if len(fields) > 0 {
		embed["fields"] = fields
	}
	return map[string]any{"embeds": []any{embed}}
}

func slackText(n Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n%s", n.Title, n.Message)
	for _, f := range n.Fields {
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value)
	}
	fmt.Fprintf(&b, "\n_Level: %s_", n.Level)
	return b.String()
}

func (d *Dispatcher) post(ctx context.Context, ch config.NotifyChannel, url string, payload any) error {
	if url == "" {
		return fmt.Errorf("missing webhook_url")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ch.Headers {
		req.Header.Set(k, v)
	}
	return d.do(req, ch.Type)
}

func (d *Dispatcher) sendNtfy(ctx context.Context, ch config.NotifyChannel, n Notification) error {
	if ch.Topic == "" {
		return fmt.Errorf("missing topic for ntfy")
	}
	url := ch.Server
	if url == "" {
		url = defaultNtfyServer
	}
	url = strings.TrimSuffix(url, "/") + "/" + ch.Topic

	msg := n.Message
	for _, f := range n.Fields {
		msg += "\n" + f.Name + ": " + f.Value
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(msg))
	if err != nil {
		return err
	}
	req.Header.Set("Title", n.Title)

	switch n.Level {
	case LevelCritical:
		req.Header.Set("Priority", "high")
		req.Header.Set("Tags", "rotating_light")
	case LevelWarning:
		req.Header.Set("Priority", "default")
		req.Header.Set("Tags", "warning")
	default:
		req.Header.Set("Priority", "low")
		req.Header.Set("Tags", "information_source")
	}
	if ch.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ch.Token)
	}
	for k, v := range ch.Headers {
		req.Header.Set(k, v)
	}
	return d.do(req, "ntfy")
}

func (d *Dispatcher) do(req *http.Request, kind string) error {
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s failed with status: %d", kind, resp.StatusCode)
	}
	return nil
}
