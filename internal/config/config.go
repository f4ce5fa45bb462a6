// Package config loads and validates the daemon configuration.
//
// Files are HCL by default. ".json" files use HCL's JSON syntax and
// ".yaml"/".yml" files are decoded with the same field names. Environment
// variables prefixed WHITELISTHUB_ override file values.
package config

import (
	"path/filepath"
	"time"

	"github.com/TheMich157/whitelisthub/internal/brand"
)

// CurrentSchemaVersion is written by Marshal and accepted by Validate.
const CurrentSchemaVersion = "1.0"

// Config is the top-level daemon configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty" yaml:"schema_version,omitempty"`

	// ServerRoot is the game server directory. WhitelistFile and LogFile are
	// resolved inside it.
	ServerRoot    string `hcl:"server_root,optional" json:"server_root" yaml:"server_root"`
	WhitelistFile string `hcl:"whitelist_file,optional" json:"whitelist_file" yaml:"whitelist_file"`
	Mode          string `hcl:"mode,optional" json:"mode" yaml:"mode"`
	Backend       string `hcl:"backend,optional" json:"backend" yaml:"backend"`
	LogFile       string `hcl:"log_file,optional" json:"log_file" yaml:"log_file"`
	WatchLog      *bool  `hcl:"watch_log,optional" json:"watch_log,omitempty" yaml:"watch_log,omitempty"`

	RCON    *RCONConfig    `hcl:"rcon,block" json:"rcon,omitempty" yaml:"rcon,omitempty"`
	API     *APIConfig     `hcl:"api,block" json:"api,omitempty" yaml:"api,omitempty"`
	Bridge  *BridgeConfig  `hcl:"bridge,block" json:"bridge,omitempty" yaml:"bridge,omitempty"`
	Audit   *AuditConfig   `hcl:"audit,block" json:"audit,omitempty" yaml:"audit,omitempty"`
	Logging *LoggingConfig `hcl:"logging,block" json:"logging,omitempty" yaml:"logging,omitempty"`
	Notify  *NotifyConfig  `hcl:"notify,block" json:"notify,omitempty" yaml:"notify,omitempty"`
}

// RCONConfig configures the remote console.
type RCONConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled" yaml:"enabled"`
	Host     string `hcl:"host,optional" json:"host" yaml:"host"`
	Port     int    `hcl:"port,optional" json:"port" yaml:"port"`
	Password string `hcl:"password,optional" json:"password,omitempty" yaml:"password,omitempty"`
	Timeout  string `hcl:"timeout,optional" json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Mirror sends whitelist add/remove over RCON after file edits.
	Mirror *bool `hcl:"mirror,optional" json:"mirror,omitempty" yaml:"mirror,omitempty"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Enabled        *bool  `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Listen         string `hcl:"listen,optional" json:"listen" yaml:"listen"`
	APIKey         string `hcl:"api_key,optional" json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// APIKeyHash is a bcrypt hash of the key, used instead of APIKey when set.
	APIKeyHash     string `hcl:"api_key_hash,optional" json:"api_key_hash,omitempty" yaml:"api_key_hash,omitempty"`
	RateLimit      int    `hcl:"rate_limit,optional" json:"rate_limit" yaml:"rate_limit"`
	RateWindow     string `hcl:"rate_window,optional" json:"rate_window,omitempty" yaml:"rate_window,omitempty"`
	MaxConnections int    `hcl:"max_connections,optional" json:"max_connections" yaml:"max_connections"`
	TrustProxy     bool   `hcl:"trust_proxy,optional" json:"trust_proxy" yaml:"trust_proxy"`

	// HTTPS. TLSSelfSigned generates and renews the pair at the given paths.
	TLSCert       string   `hcl:"tls_cert,optional" json:"tls_cert,omitempty" yaml:"tls_cert,omitempty"`
	TLSKey        string   `hcl:"tls_key,optional" json:"tls_key,omitempty" yaml:"tls_key,omitempty"`
	TLSSelfSigned bool     `hcl:"tls_self_signed,optional" json:"tls_self_signed,omitempty" yaml:"tls_self_signed,omitempty"`
	TLSHosts      []string `hcl:"tls_hosts,optional" json:"tls_hosts,omitempty" yaml:"tls_hosts,omitempty"`
}

// TLSEnabled reports whether the API serves HTTPS.
func (a *APIConfig) TLSEnabled() bool {
	return a.TLSSelfSigned || a.TLSCert != ""
}

// BridgeConfig configures the realtime control plane link.
type BridgeConfig struct {
	Enabled           bool   `hcl:"enabled,optional" json:"enabled" yaml:"enabled"`
	URL               string `hcl:"url,optional" json:"url" yaml:"url"`
	APIKey            string `hcl:"api_key,optional" json:"api_key,omitempty" yaml:"api_key,omitempty"`
	ServerID          string `hcl:"server_id,optional" json:"server_id" yaml:"server_id"`
	Reconnect         *bool  `hcl:"reconnect,optional" json:"reconnect,omitempty" yaml:"reconnect,omitempty"`
	ReconnectDelay    string `hcl:"reconnect_delay,optional" json:"reconnect_delay,omitempty" yaml:"reconnect_delay,omitempty"`
	MaxReconnectDelay string `hcl:"max_reconnect_delay,optional" json:"max_reconnect_delay,omitempty" yaml:"max_reconnect_delay,omitempty"`
	PingInterval      string `hcl:"ping_interval,optional" json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`
	StateInterval     string `hcl:"state_interval,optional" json:"state_interval,omitempty" yaml:"state_interval,omitempty"`
}

// AuditConfig configures the SQLite audit log.
type AuditConfig struct {
	Enabled       *bool  `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path          string `hcl:"path,optional" json:"path" yaml:"path"`
	RetentionDays int    `hcl:"retention_days,optional" json:"retention_days" yaml:"retention_days"`
	PruneAt       string `hcl:"prune_at,optional" json:"prune_at,omitempty" yaml:"prune_at,omitempty"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `hcl:"level,optional" json:"level" yaml:"level"`
	JSON  bool   `hcl:"json,optional" json:"json" yaml:"json"`
}

// NotifyConfig sends whitelist changes to chat and push services.
type NotifyConfig struct {
	Enabled  bool            `hcl:"enabled,optional" json:"enabled" yaml:"enabled"`
	Timeout  string          `hcl:"timeout,optional" json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Channels []NotifyChannel `hcl:"channel,block" json:"channel,omitempty" yaml:"channels,omitempty"`
}

// NotifyChannel is one notification target.
type NotifyChannel struct {
	Name    string `hcl:"name,label" json:"name" yaml:"name"`
	Type    string `hcl:"type" json:"type" yaml:"type"` // discord, slack, webhook, ntfy
	Level   string `hcl:"level,optional" json:"level,omitempty" yaml:"level,omitempty"`
	Enabled *bool  `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// discord, slack, webhook
	WebhookURL string `hcl:"webhook_url,optional" json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`

	// ntfy
	Server string `hcl:"server,optional" json:"server,omitempty" yaml:"server,omitempty"`
	Topic  string `hcl:"topic,optional" json:"topic,omitempty" yaml:"topic,omitempty"`
	Token  string `hcl:"token,optional" json:"token,omitempty" yaml:"token,omitempty"`

	Headers map[string]string `hcl:"headers,optional" json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Default values.
const (
	DefaultWhitelistFile     = "whitelist.json"
	DefaultLogFile           = "logs/latest.log"
	DefaultMode              = "online"
	DefaultBackend           = "file"
	DefaultRCONHost          = "localhost"
	DefaultRCONPort          = 25575
	DefaultRCONTimeout       = 5 * time.Second
	DefaultListen            = ":3003"
	DefaultRateLimit         = 10
	DefaultRateWindow        = time.Minute
	DefaultMaxConnections    = 64
	DefaultServerID          = "default"
	DefaultReconnectDelay    = 3 * time.Second
	DefaultMaxReconnectDelay = 3 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultStateInterval     = 10 * time.Second
	DefaultRetentionDays     = 90
	DefaultPruneAt           = "03:30"
	DefaultLogLevel          = "info"
	DefaultNotifyTimeout     = 10 * time.Second
)

// Default returns a config with every default filled in. ServerRoot is the
// current directory, matching how the daemon is usually started.
func Default() *Config {
	cfg := &Config{ServerRoot: "."}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = CurrentSchemaVersion
	}
	defString(&cfg.ServerRoot, ".")
	defString(&cfg.WhitelistFile, DefaultWhitelistFile)
	defString(&cfg.Mode, DefaultMode)
	defString(&cfg.Backend, DefaultBackend)
	defString(&cfg.LogFile, DefaultLogFile)
	defBool(&cfg.WatchLog, true)

	if cfg.RCON == nil {
		cfg.RCON = &RCONConfig{}
	}
	defString(&cfg.RCON.Host, DefaultRCONHost)
	defInt(&cfg.RCON.Port, DefaultRCONPort)
	defString(&cfg.RCON.Timeout, DefaultRCONTimeout.String())
	defBool(&cfg.RCON.Mirror, true)

	if cfg.API == nil {
		cfg.API = &APIConfig{}
	}
	defBool(&cfg.API.Enabled, true)
	defString(&cfg.API.Listen, DefaultListen)
	defInt(&cfg.API.RateLimit, DefaultRateLimit)
	defString(&cfg.API.RateWindow, DefaultRateWindow.String())
	if cfg.API.TLSSelfSigned {
		defString(&cfg.API.TLSCert, filepath.Join(brand.GetStateDir(), "api.crt"))
		defString(&cfg.API.TLSKey, filepath.Join(brand.GetStateDir(), "api.key"))
	}
	defInt(&cfg.API.MaxConnections, DefaultMaxConnections)

	if cfg.Bridge == nil {
		cfg.Bridge = &BridgeConfig{}
	}
	defString(&cfg.Bridge.ServerID, DefaultServerID)
	defBool(&cfg.Bridge.Reconnect, true)
	defString(&cfg.Bridge.ReconnectDelay, DefaultReconnectDelay.String())
	defString(&cfg.Bridge.MaxReconnectDelay, DefaultMaxReconnectDelay.String())
	defString(&cfg.Bridge.PingInterval, DefaultPingInterval.String())
	defString(&cfg.Bridge.StateInterval, DefaultStateInterval.String())

	if cfg.Audit == nil {
		cfg.Audit = &AuditConfig{}
	}
	defBool(&cfg.Audit.Enabled, true)
	defString(&cfg.Audit.Path, filepath.Join(brand.GetStateDir(), "audit.db"))
	defInt(&cfg.Audit.RetentionDays, DefaultRetentionDays)
	defString(&cfg.Audit.PruneAt, DefaultPruneAt)

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	defString(&cfg.Logging.Level, DefaultLogLevel)

	if cfg.Notify == nil {
		cfg.Notify = &NotifyConfig{}
	}
	defString(&cfg.Notify.Timeout, DefaultNotifyTimeout.String())
	if len(cfg.Notify.Channels) == 0 {
		cfg.Notify.Channels = nil
	}
	for i := range cfg.Notify.Channels {
		defBool(&cfg.Notify.Channels[i].Enabled, true)
	}
}

func defString(p *string, def string) {
	if *p == "" {
		*p = def
	}
}

func defInt(p *int, def int) {
	if *p == 0 {
		*p = def
	}
}

func defBool(p **bool, def bool) {
	if *p == nil {
		*p = &def
	}
}

// Bool dereferences an optional flag, treating nil as false.
func Bool(p *bool) bool {
	return p != nil && *p
}

// duration parses s, falling back to def when s is empty or invalid.
// Validate reports invalid values separately.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// WhitelistPath returns the whitelist file joined onto the server root.
func (c *Config) WhitelistPath() string {
	if filepath.IsAbs(c.WhitelistFile) {
		return c.WhitelistFile
	}
	return filepath.Join(c.ServerRoot, c.WhitelistFile)
}

// LogPath returns the server log joined onto the server root.
func (c *Config) LogPath() string {
	if filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(c.ServerRoot, c.LogFile)
}

func (r *RCONConfig) TimeoutDuration() time.Duration {
	return duration(r.Timeout, DefaultRCONTimeout)
}

func (a *APIConfig) RateWindowDuration() time.Duration {
	return duration(a.RateWindow, DefaultRateWindow)
}

func (b *BridgeConfig) ReconnectDelayDuration() time.Duration {
	return duration(b.ReconnectDelay, DefaultReconnectDelay)
}

func (b *BridgeConfig) MaxReconnectDelayDuration() time.Duration {
	return duration(b.MaxReconnectDelay, DefaultMaxReconnectDelay)
}

func (b *BridgeConfig) PingIntervalDuration() time.Duration {
	return duration(b.PingInterval, DefaultPingInterval)
}

func (b *BridgeConfig) StateIntervalDuration() time.Duration {
	return duration(b.StateInterval, DefaultStateInterval)
}

func (n *NotifyConfig) TimeoutDuration() time.Duration {
	return duration(n.Timeout, DefaultNotifyTimeout)
}

const redacted = "********"

// Redacted returns a deep copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if c.RCON != nil {
		r := *c.RCON
		if r.Password != "" {
			r.Password = redacted
		}
		out.RCON = &r
	}
	if c.API != nil {
		a := *c.API
		if a.APIKey != "" {
			a.APIKey = redacted
		}
		a.TLSHosts = append([]string(nil), c.API.TLSHosts...)
		out.API = &a
	}
	if c.Bridge != nil {
		b := *c.Bridge
		if b.APIKey != "" {
			b.APIKey = redacted
		}
		out.Bridge = &b
	}
	if c.Audit != nil {
		a := *c.Audit
		out.Audit = &a
	}
	if c.Logging != nil {
		l := *c.Logging
		out.Logging = &l
	}
	if c.Notify != nil {
		n := *c.Notify
		n.Channels = make([]NotifyChannel, len(c.Notify.Channels))
		for i, ch := range c.Notify.Channels {
			if ch.WebhookURL != "" {
				ch.WebhookURL = redacted
			}
			if ch.Token != "" {
				ch.Token = redacted
			}
			n.Channels[i] = ch
		}
		out.Notify = &n
	}
	return &out
}
