package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Marshal renders cfg as HCL. Empty optional values are omitted so the
// output round-trips through Parse to an equal config.
func Marshal(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	setString(body, "schema_version", cfg.SchemaVersion)
	setString(body, "server_root", cfg.ServerRoot)
	setString(body, "whitelist_file", cfg.WhitelistFile)
	setString(body, "mode", cfg.Mode)
	setString(body, "backend", cfg.Backend)
	setString(body, "log_file", cfg.LogFile)
	setBoolPtr(body, "watch_log", cfg.WatchLog)

	if r := cfg.RCON; r != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("rcon", nil).Body()
		b.SetAttributeValue("enabled", cty.BoolVal(r.Enabled))
		setString(b, "host", r.Host)
		setInt(b, "port", r.Port)
		setString(b, "password", r.Password)
		setString(b, "timeout", r.Timeout)
		setBoolPtr(b, "mirror", r.Mirror)
	}

	if a := cfg.API; a != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("api", nil).Body()
		setBoolPtr(b, "enabled", a.Enabled)
		setString(b, "listen", a.Listen)
		setString(b, "api_key", a.APIKey)
		setString(b, "api_key_hash", a.APIKeyHash)
		setInt(b, "rate_limit", a.RateLimit)
		setString(b, "rate_window", a.RateWindow)
		setInt(b, "max_connections", a.MaxConnections)
		if a.TrustProxy {
			b.SetAttributeValue("trust_proxy", cty.True)
		}
		setString(b, "tls_cert", a.TLSCert)
		setString(b, "tls_key", a.TLSKey)
		if a.TLSSelfSigned {
			b.SetAttributeValue("tls_self_signed", cty.True)
		}
		if len(a.TLSHosts) > 0 {
			hosts := make([]cty.Value, len(a.TLSHosts))
			for i, h := range a.TLSHosts {
				hosts[i] = cty.StringVal(h)
			}
			b.SetAttributeValue("tls_hosts", cty.ListVal(hosts))
		}
	}

	if br := cfg.Bridge; br != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("bridge", nil).Body()
		b.SetAttributeValue("enabled", cty.BoolVal(br.Enabled))
		setString(b, "url", br.URL)
		setString(b, "api_key", br.APIKey)
		setString(b, "server_id", br.ServerID)
		setBoolPtr(b, "reconnect", br.Reconnect)
		setString(b, "reconnect_delay", br.ReconnectDelay)
		setString(b, "max_reconnect_delay", br.MaxReconnectDelay)
		setString(b, "ping_interval", br.PingInterval)
		setString(b, "state_interval", br.StateInterval)
	}

	if a := cfg.Audit; a != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("audit", nil).Body()
		setBoolPtr(b, "enabled", a.Enabled)
		setString(b, "path", a.Path)
		setInt(b, "retention_days", a.RetentionDays)
		setString(b, "prune_at", a.PruneAt)
	}

	if l := cfg.Logging; l != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("logging", nil).Body()
		setString(b, "level", l.Level)
		if l.JSON {
			b.SetAttributeValue("json", cty.True)
		}
	}

	if n := cfg.Notify; n != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("notify", nil).Body()
		b.SetAttributeValue("enabled", cty.BoolVal(n.Enabled))
		setString(b, "timeout", n.Timeout)
		for _, ch := range n.Channels {
			b.AppendNewline()
			cb := b.AppendNewBlock("channel", []string{ch.Name}).Body()
			cb.SetAttributeValue("type", cty.StringVal(ch.Type))
			setString(cb, "level", ch.Level)
			setBoolPtr(cb, "enabled", ch.Enabled)
			setString(cb, "webhook_url", ch.WebhookURL)
			setString(cb, "server", ch.Server)
			setString(cb, "topic", ch.Topic)
			setString(cb, "token", ch.Token)
			if len(ch.Headers) > 0 {
				headers := make(map[string]cty.Value, len(ch.Headers))
				for k, v := range ch.Headers {
					headers[k] = cty.StringVal(v)
				}
				cb.SetAttributeValue("headers", cty.MapVal(headers))
			}
		}
	}

	return hclwrite.Format(f.Bytes())
}

// WriteFile marshals cfg to path with owner-only permissions, since the
// file carries the API key and RCON password.
func WriteFile(path string, cfg *Config) error {
	if err := os.WriteFile(path, Marshal(cfg), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func setString(b *hclwrite.Body, name, v string) {
	if v != "" {
		b.SetAttributeValue(name, cty.StringVal(v))
	}
}

func setInt(b *hclwrite.Body, name string, v int) {
	if v != 0 {
		b.SetAttributeValue(name, cty.NumberIntVal(int64(v)))
	}
}

func setBoolPtr(b *hclwrite.Body, name string, v *bool) {
	if v != nil {
		b.SetAttributeValue(name, cty.BoolVal(*v))
	}
}
