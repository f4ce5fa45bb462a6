package config

import (
	"fmt"
	"strconv"

	"github.com/TheMich157/whitelisthub/internal/brand"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// EnvKey returns the full variable name for suffix, e.g. WHITELISTHUB_API_KEY.
func EnvKey(suffix string) string {
	return brand.ConfigEnvPrefix + "_" + suffix
}

// ApplyEnv overrides cfg from environment variables. Set but empty
// variables are ignored. Defaults must already be applied.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(suffix string) (string, bool) {
		v, ok := lookup(EnvKey(suffix))
		return v, ok && v != ""
	}

	if v, ok := get("SERVER_ROOT"); ok {
		cfg.ServerRoot = v
	}
	if v, ok := get("WHITELIST_FILE"); ok {
		cfg.WhitelistFile = v
	}
	if v, ok := get("MODE"); ok {
		cfg.Mode = v
	}
	if v, ok := get("BACKEND"); ok {
		cfg.Backend = v
	}
	if v, ok := get("API_KEY"); ok {
		cfg.API.APIKey = v
	}
	if v, ok := get("API_KEY_HASH"); ok {
		cfg.API.APIKeyHash = v
	}

	if v, ok := get("RCON_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKey("RCON_ENABLED"), err)
		}
		cfg.RCON.Enabled = b
	}
	if v, ok := get("RCON_HOST"); ok {
		cfg.RCON.Host = v
	}
	if v, ok := get("RCON_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKey("RCON_PORT"), err)
		}
		cfg.RCON.Port = p
	}
	if v, ok := get("RCON_PASSWORD"); ok {
		cfg.RCON.Password = v
	}

	// Setting a bridge URL is enough to turn the bridge on.
	if v, ok := get("BRIDGE_URL"); ok {
		cfg.Bridge.URL = v
		cfg.Bridge.Enabled = true
	}
	if v, ok := get("BRIDGE_API_KEY"); ok {
		cfg.Bridge.APIKey = v
	}
	if v, ok := get("SERVER_ID"); ok {
		cfg.Bridge.ServerID = v
	}
	return nil
}
