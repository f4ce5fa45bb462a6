package brand

import (
	"path/filepath"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if ConfigEnvPrefix != "WHITELISTHUB" {
		t.Errorf("unexpected env prefix %q", ConfigEnvPrefix)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent("1.0.0"); ua != Name+"/1.0.0" {
		t.Errorf("UserAgent = %q", ua)
	}
	if ua := UserAgent(""); ua != Name+"/dev" {
		t.Errorf("UserAgent default = %q", ua)
	}
}

func TestGetDirectories(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_PREFIX", "")
	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_LOG_DIR", "")

	if GetConfigDir() != DefaultConfigDir {
		t.Errorf("Expected default config dir %s, got %s", DefaultConfigDir, GetConfigDir())
	}
	if GetStateDir() != DefaultStateDir {
		t.Errorf("Expected default state dir %s, got %s", DefaultStateDir, GetStateDir())
	}

	t.Setenv(ConfigEnvPrefix+"_PREFIX", "/opt/wh")
	if got := GetStateDir(); got != filepath.Join("/opt/wh", "state") {
		t.Errorf("prefix state dir = %s", got)
	}
	if got := DefaultConfigPath(); got != filepath.Join("/opt/wh", "config", ConfigFileName) {
		t.Errorf("DefaultConfigPath = %s", got)
	}

	t.Setenv(ConfigEnvPrefix+"_LOG_DIR", "/tmp/logs")
	if got := GetLogDir(); got != "/tmp/logs" {
		t.Errorf("explicit log dir = %s", got)
	}
}
