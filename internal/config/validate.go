package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TheMich157/whitelisthub/internal/logging"
)

// ValidationError is a single problem found in a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem so they can be reported at once.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasErrors reports whether any errors were collected.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the config after defaults are applied. It returns
// ValidationErrors or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.SchemaVersion != "" && c.SchemaVersion != CurrentSchemaVersion {
		errs.add("schema_version", "unsupported version %q (want %q)", c.SchemaVersion, CurrentSchemaVersion)
	}
	if c.ServerRoot == "" {
		errs.add("server_root", "is required")
	}
	if c.WhitelistFile == "" {
		errs.add("whitelist_file", "is required")
	}
	switch c.Mode {
	case "online", "offline":
	default:
		errs.add("mode", "must be online or offline, got %q", c.Mode)
	}
	switch c.Backend {
	case "file", "rcon":
	default:
		errs.add("backend", "must be file or rcon, got %q", c.Backend)
	}

	if r := c.RCON; r != nil {
		if c.Backend == "rcon" && !r.Enabled {
			errs.add("rcon.enabled", "must be true when backend is rcon")
		}
		if r.Enabled {
			if r.Host == "" {
				errs.add("rcon.host", "is required")
			}
			if r.Port < 1 || r.Port > 65535 {
				errs.add("rcon.port", "must be between 1 and 65535, got %d", r.Port)
			}
			if r.Password == "" {
				errs.add("rcon.password", "is required when rcon is enabled")
			}
		}
		checkDuration(&errs, "rcon.timeout", r.Timeout, true)
	}

	if a := c.API; a != nil && Bool(a.Enabled) {
		if a.APIKey == "" && a.APIKeyHash == "" {
			errs.add("api.api_key", "is required when the api is enabled")
		}
		if a.APIKeyHash != "" && !strings.HasPrefix(a.APIKeyHash, "$2") {
			errs.add("api.api_key_hash", "must be a bcrypt hash")
		}
		if _, port, err := net.SplitHostPort(a.Listen); err != nil {
			errs.add("api.listen", "invalid address %q: %v", a.Listen, err)
		} else if _, err := strconv.Atoi(port); err != nil {
			errs.add("api.listen", "invalid port %q", port)
		}
		if a.RateLimit < 0 {
			errs.add("api.rate_limit", "must not be negative")
		}
		if a.MaxConnections < 0 {
			errs.add("api.max_connections", "must not be negative")
		}
		checkDuration(&errs, "api.rate_window", a.RateWindow, true)
		if (a.TLSCert == "") != (a.TLSKey == "") {
			errs.add("api.tls_key", "tls_cert and tls_key must be set together")
		}
	}

	if b := c.Bridge; b != nil && b.Enabled {
		if b.URL == "" {
			errs.add("bridge.url", "is required when the bridge is enabled")
		} else if u, err := url.Parse(b.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errs.add("bridge.url", "must be a ws:// or wss:// URL")
		}
		if b.APIKey == "" {
			errs.add("bridge.api_key", "is required when the bridge is enabled")
		}
		checkDuration(&errs, "bridge.reconnect_delay", b.ReconnectDelay, true)
		checkDuration(&errs, "bridge.max_reconnect_delay", b.MaxReconnectDelay, true)
		checkDuration(&errs, "bridge.ping_interval", b.PingInterval, false)
		checkDuration(&errs, "bridge.state_interval", b.StateInterval, true)
		if b.MaxReconnectDelayDuration() < b.ReconnectDelayDuration() {
			errs.add("bridge.max_reconnect_delay", "must not be less than reconnect_delay")
		}
	}

	if a := c.Audit; a != nil && Bool(a.Enabled) {
		if a.Path == "" {
			errs.add("audit.path", "is required when audit is enabled")
		}
		if a.RetentionDays < 0 {
			errs.add("audit.retention_days", "must not be negative")
		}
		if a.PruneAt != "" {
			if _, err := time.Parse("15:04", a.PruneAt); err != nil {
				errs.add("audit.prune_at", "expected HH:MM, got %q", a.PruneAt)
			}
		}
	}

	if l := c.Logging; l != nil {
		if _, err := logging.ParseLevel(l.Level); err != nil {
			errs.add("logging.level", "%v", err)
		}
	}

	if n := c.Notify; n != nil && n.Enabled {
		checkDuration(&errs, "notify.timeout", n.Timeout, true)
		seen := make(map[string]bool)
		for _, ch := range n.Channels {
			field := "notify.channel." + ch.Name
			if seen[ch.Name] {
				errs.add(field, "duplicate channel name")
			}
			seen[ch.Name] = true
			switch strings.ToLower(ch.Type) {
			case "discord", "slack", "webhook":
				if u, err := url.Parse(ch.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
					errs.add(field+".webhook_url", "must be an http:// or https:// URL")
				}
			case "ntfy":
				if ch.Topic == "" {
					errs.add(field+".topic", "is required for ntfy channels")
				}
			default:
				errs.add(field+".type", "must be discord, slack, webhook or ntfy, got %q", ch.Type)
			}
			switch strings.ToLower(ch.Level) {
			case "", "info", "warning", "critical":
			default:
				errs.add(field+".level", "must be info, warning or critical, got %q", ch.Level)
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// checkDuration allows empty values. Non-positive durations are rejected when
// positive is set; otherwise a negative value means "disabled".
func checkDuration(errs *ValidationErrors, field, s string, positive bool) {
	if s == "" {
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		errs.add(field, "invalid duration %q", s)
		return
	}
	if positive && d <= 0 {
		errs.add(field, "must be positive")
	}
}
