package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.API.APIKey = "secret"
	return cfg
}

func ptr[T any](v T) *T { return &v }

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %q", cfg.SchemaVersion)
	}
	if cfg.Mode != "online" || cfg.Backend != "file" {
		t.Errorf("Mode/Backend = %q/%q", cfg.Mode, cfg.Backend)
	}
	if cfg.API.Listen != ":3003" {
		t.Errorf("API.Listen = %q, want :3003", cfg.API.Listen)
	}
	if cfg.API.RateLimit != 10 || cfg.API.RateWindowDuration() != time.Minute {
		t.Errorf("rate limit = %d per %v", cfg.API.RateLimit, cfg.API.RateWindowDuration())
	}
	if !Bool(cfg.API.Enabled) || !Bool(cfg.Audit.Enabled) || !Bool(cfg.WatchLog) {
		t.Error("api, audit and log watching should default on")
	}
	if cfg.Bridge.Enabled || cfg.RCON.Enabled {
		t.Error("bridge and rcon should default off")
	}
	if cfg.RCON.Port != 25575 {
		t.Errorf("RCON.Port = %d", cfg.RCON.Port)
	}
	if cfg.Bridge.ReconnectDelayDuration() != 3*time.Second {
		t.Errorf("ReconnectDelay = %v", cfg.Bridge.ReconnectDelayDuration())
	}
	if cfg.Bridge.ServerID != "default" {
		t.Errorf("ServerID = %q", cfg.Bridge.ServerID)
	}
}

func TestDefault_NeedsAPIKey(t *testing.T) {
	err := Default().Validate()
	if err == nil {
		t.Fatal("expected error without api key")
	}
	if !strings.Contains(err.Error(), "api.api_key") {
		t.Errorf("error = %v", err)
	}

	cfg := Default()
	f := false
	cfg.API.Enabled = &f
	if err := cfg.Validate(); err != nil {
		t.Errorf("api disabled: unexpected error %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad mode", func(c *Config) { c.Mode = "cracked" }, "mode"},
		{"bad backend", func(c *Config) { c.Backend = "sql" }, "backend"},
		{"rcon backend without rcon", func(c *Config) { c.Backend = "rcon" }, "rcon.enabled"},
		{"rcon without password", func(c *Config) { c.RCON.Enabled = true }, "rcon.password"},
		{"rcon bad port", func(c *Config) {
			c.RCON.Enabled = true
			c.RCON.Password = "pw"
			c.RCON.Port = 70000
		}, "rcon.port"},
		{"plain text hash", func(c *Config) { c.API.APIKeyHash = "secret" }, "api.api_key_hash"},
		{"tls cert without key", func(c *Config) { c.API.TLSCert = "/etc/api.crt" }, "api.tls_key"},
		{"bad listen", func(c *Config) { c.API.Listen = "3003" }, "api.listen"},
		{"bad rate window", func(c *Config) { c.API.RateWindow = "soon" }, "api.rate_window"},
		{"notify bad type", func(c *Config) {
			c.Notify.Enabled = true
			c.Notify.Channels = []NotifyChannel{{Name: "x", Type: "email"}}
		}, "notify.channel.x.type"},
		{"notify discord without url", func(c *Config) {
			c.Notify.Enabled = true
			c.Notify.Channels = []NotifyChannel{{Name: "staff", Type: "discord"}}
		}, "notify.channel.staff.webhook_url"},
		{"notify ntfy without topic", func(c *Config) {
			c.Notify.Enabled = true
			c.Notify.Channels = []NotifyChannel{{Name: "phone", Type: "ntfy"}}
		}, "notify.channel.phone.topic"},
		{"notify bad level", func(c *Config) {
			c.Notify.Enabled = true
			c.Notify.Channels = []NotifyChannel{{Name: "phone", Type: "ntfy", Topic: "t", Level: "loud"}}
		}, "notify.channel.phone.level"},
		{"notify duplicate", func(c *Config) {
			c.Notify.Enabled = true
			c.Notify.Channels = []NotifyChannel{
				{Name: "a", Type: "ntfy", Topic: "t"},
				{Name: "a", Type: "ntfy", Topic: "u"},
			}
		}, "notify.channel.a"},
		{"bridge without url", func(c *Config) {
			c.Bridge.Enabled = true
			c.Bridge.APIKey = "k"
		}, "bridge.url"},
		{"bridge http url", func(c *Config) {
			c.Bridge.Enabled = true
			c.Bridge.APIKey = "k"
			c.Bridge.URL = "http://example.com/ws"
		}, "bridge.url"},
		{"bridge without key", func(c *Config) {
			c.Bridge.Enabled = true
			c.Bridge.URL = "wss://example.com/ws"
		}, "bridge.api_key"},
		{"bridge max below base", func(c *Config) {
			c.Bridge.Enabled = true
			c.Bridge.URL = "wss://example.com/ws"
			c.Bridge.APIKey = "k"
			c.Bridge.ReconnectDelay = "10s"
			c.Bridge.MaxReconnectDelay = "5s"
		}, "bridge.max_reconnect_delay"},
		{"bad prune time", func(c *Config) { c.Audit.PruneAt = "25:00" }, "audit.prune_at"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad schema", func(c *Config) { c.SchemaVersion = "9.9" }, "schema_version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() = %v, want ValidationErrors", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for %s in %v", tt.field, verrs)
			}
		})
	}
}

func TestValidate_Aggregates(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "x"
	cfg.Backend = "y"
	err := cfg.Validate()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 2 {
		t.Fatalf("Validate() = %v, want 2 errors", err)
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("errors not joined: %q", err.Error())
	}
}

func TestValidate_HashAloneIsEnough(t *testing.T) {
	cfg := Default()
	cfg.API.APIKeyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidate_PingIntervalMayBeNegative(t *testing.T) {
	cfg := validConfig()
	cfg.Bridge.Enabled = true
	cfg.Bridge.URL = "ws://127.0.0.1:8080/ws"
	cfg.Bridge.APIKey = "k"
	cfg.Bridge.PingInterval = "-1s"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"WHITELISTHUB_API_KEY":        "from-env",
		"WHITELISTHUB_SERVER_ROOT":    "/srv/mc",
		"WHITELISTHUB_MODE":           "offline",
		"WHITELISTHUB_BACKEND":        "rcon",
		"WHITELISTHUB_RCON_ENABLED":   "true",
		"WHITELISTHUB_RCON_HOST":      "mc.local",
		"WHITELISTHUB_RCON_PORT":      "25576",
		"WHITELISTHUB_RCON_PASSWORD":  "pw",
		"WHITELISTHUB_BRIDGE_URL":     "wss://cp.example/ws",
		"WHITELISTHUB_BRIDGE_API_KEY": "bk",
		"WHITELISTHUB_SERVER_ID":      "survival",
		"WHITELISTHUB_WHITELIST_FILE": "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.API.APIKey != "from-env" || cfg.ServerRoot != "/srv/mc" {
		t.Errorf("api key/root = %q/%q", cfg.API.APIKey, cfg.ServerRoot)
	}
	if cfg.Mode != "offline" || cfg.Backend != "rcon" {
		t.Errorf("mode/backend = %q/%q", cfg.Mode, cfg.Backend)
	}
	if !cfg.RCON.Enabled || cfg.RCON.Host != "mc.local" || cfg.RCON.Port != 25576 || cfg.RCON.Password != "pw" {
		t.Errorf("rcon = %+v", cfg.RCON)
	}
	if !cfg.Bridge.Enabled || cfg.Bridge.URL != "wss://cp.example/ws" || cfg.Bridge.APIKey != "bk" || cfg.Bridge.ServerID != "survival" {
		t.Errorf("bridge = %+v", cfg.Bridge)
	}
	if cfg.WhitelistFile != DefaultWhitelistFile {
		t.Errorf("empty env var should be ignored, got %q", cfg.WhitelistFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestApplyEnv_BadValues(t *testing.T) {
	for _, key := range []string{"WHITELISTHUB_RCON_PORT", "WHITELISTHUB_RCON_ENABLED"} {
		lookup := func(k string) (string, bool) {
			if k == key {
				return "nope", true
			}
			return "", false
		}
		if err := ApplyEnv(Default(), lookup); err == nil {
			t.Errorf("%s: expected error", key)
		}
	}
}

func TestParse_HCL(t *testing.T) {
	src := `
server_root = "/srv/minecraft"
mode        = "offline"

rcon {
  enabled  = true
  password = "hunter2"
  mirror   = false
}

api {
  api_key    = "k"
  rate_limit = 20
}

bridge {
  enabled   = true
  url       = "wss://cp.example/ws"
  api_key   = "bk"
  reconnect = false
}
`
	cfg, err := Parse("whitelisthub.hcl", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.ServerRoot != "/srv/minecraft" || cfg.Mode != "offline" {
		t.Errorf("root/mode = %q/%q", cfg.ServerRoot, cfg.Mode)
	}
	if !cfg.RCON.Enabled || cfg.RCON.Port != DefaultRCONPort || Bool(cfg.RCON.Mirror) {
		t.Errorf("rcon = %+v", cfg.RCON)
	}
	if cfg.API.RateLimit != 20 || cfg.API.Listen != DefaultListen {
		t.Errorf("api = %+v", cfg.API)
	}
	if Bool(cfg.Bridge.Reconnect) {
		t.Error("reconnect = true, want false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestParse_JSON(t *testing.T) {
	src := `{"mode": "offline", "api": {"api_key": "k"}}`
	cfg, err := Parse("config.json", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Mode != "offline" || cfg.API.APIKey != "k" {
		t.Errorf("cfg = %+v / %+v", cfg, cfg.API)
	}
}

func TestParse_YAML(t *testing.T) {
	src := `
mode: offline
backend: rcon
rcon:
  enabled: true
  password: pw
api:
  api_key: k
  enabled: false
`
	cfg, err := Parse("config.yml", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Backend != "rcon" || !cfg.RCON.Enabled || cfg.RCON.Host != DefaultRCONHost {
		t.Errorf("rcon = %+v", cfg.RCON)
	}
	if Bool(cfg.API.Enabled) {
		t.Error("api.enabled = true, want false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestParse_YAMLUnknownField(t *testing.T) {
	if _, err := Parse("config.yaml", []byte("bogus: 1\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestParse_HCLSyntaxError(t *testing.T) {
	if _, err := Parse("config.hcl", []byte("mode = ")); err == nil {
		t.Error("expected syntax error")
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.ServerRoot = "/srv/mc"
	cfg.RCON.Enabled = true
	cfg.RCON.Password = "pw"
	cfg.Bridge.Enabled = true
	cfg.Bridge.URL = "wss://cp.example/ws"
	cfg.Bridge.APIKey = "bk"
	cfg.API.TrustProxy = true
	cfg.API.TLSSelfSigned = true
	cfg.API.TLSCert = "/srv/mc/api.crt"
	cfg.API.TLSKey = "/srv/mc/api.key"
	cfg.API.TLSHosts = []string{"mc.example.com"}
	cfg.Logging.JSON = true
	cfg.Notify.Enabled = true
	cfg.Notify.Channels = []NotifyChannel{
		{Name: "staff", Type: "discord", Level: "info", Enabled: ptr(true), WebhookURL: "https://discord.example/api/webhooks/1/x"},
		{Name: "phone", Type: "ntfy", Enabled: ptr(false), Topic: "mc", Token: "tk", Headers: map[string]string{"X-Tags": "mc"}},
	}

	out := Marshal(cfg)
	got, err := Parse("roundtrip.hcl", out)
	if err != nil {
		t.Fatalf("Parse(Marshal()) error = %v\n%s", err, out)
	}
	if !reflect.DeepEqual(cfg, got) {
		t.Errorf("round trip mismatch\nwant %+v\ngot  %+v\n%s", cfg, got, out)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whitelisthub.hcl")
	if err := WriteFile(path, validConfig()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}

	t.Setenv("WHITELISTHUB_MODE", "offline")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mode != "offline" {
		t.Errorf("Mode = %q, env override not applied", cfg.Mode)
	}

	if _, err := Load(filepath.Join(dir, "missing.hcl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.RCON.Password = "pw"
	cfg.Bridge.APIKey = "bk"

	r := cfg.Redacted()
	if r.API.APIKey == "secret" || r.RCON.Password == "pw" || r.Bridge.APIKey == "bk" {
		t.Errorf("secrets leaked: %+v %+v %+v", r.API, r.RCON, r.Bridge)
	}
	if cfg.API.APIKey != "secret" {
		t.Error("Redacted modified the original")
	}

	cfg.Notify.Channels = []NotifyChannel{{Name: "staff", Type: "discord", WebhookURL: "https://discord.example/api/webhooks/1/secret"}}
	r = cfg.Redacted()
	if r.Notify.Channels[0].WebhookURL == cfg.Notify.Channels[0].WebhookURL {
		t.Error("webhook url leaked")
	}
	if cfg.Notify.Channels[0].WebhookURL != "https://discord.example/api/webhooks/1/secret" {
		t.Error("Redacted modified the original channel")
	}

	empty := Default().Redacted()
	if empty.API.APIKey != "" {
		t.Error("empty key should stay empty")
	}
}

func TestApplyDefaults_SelfSignedPaths(t *testing.T) {
	cfg := &Config{API: &APIConfig{TLSSelfSigned: true}}
	ApplyDefaults(cfg)
	if cfg.API.TLSCert == "" || cfg.API.TLSKey == "" {
		t.Fatalf("self-signed paths not defaulted: %+v", cfg.API)
	}
	if !cfg.API.TLSEnabled() {
		t.Error("TLSEnabled() = false")
	}
	if Default().API.TLSEnabled() {
		t.Error("TLS should be off by default")
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.ServerRoot = "/srv/mc"
	if got := cfg.LogPath(); got != filepath.Join("/srv/mc", "logs", "latest.log") {
		t.Errorf("LogPath() = %q", got)
	}
	cfg.WhitelistFile = "/abs/whitelist.json"
	if got := cfg.WhitelistPath(); got != "/abs/whitelist.json" {
		t.Errorf("WhitelistPath() = %q", got)
	}
}
