package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:      LevelDebug,
		Output:     &buf,
		JSON:       true,
		TimeFormat: time.RFC3339,
	})
	require.NotNil(t, logger)

	t.Run("Levels", func(t *testing.T) {
		for _, fn := range []func(string, ...any){logger.Debug, logger.Info, logger.Warn, logger.Error} {
			buf.Reset()
			fn("level msg")
			assert.Contains(t, buf.String(), "level msg")
		}
	})

	t.Run("DynamicLevel", func(t *testing.T) {
		logger.SetLevel(LevelError)
		assert.Equal(t, LevelError, logger.GetLevel())

		buf.Reset()
		logger.Info("should not appear")
		assert.Zero(t, buf.Len(), "logged info message when level was Error")

		logger.SetLevel(LevelDebug)
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("rcon").Info("msg")
		assert.Contains(t, buf.String(), `"component":"rcon"`)
	})

	t.Run("WithFields", func(t *testing.T) {
		buf.Reset()
		logger.WithFields(map[string]any{"player": "Notch"}).Info("msg")
		assert.Contains(t, buf.String(), `"player":"Notch"`)
	})

	t.Run("Audit", func(t *testing.T) {
		buf.Reset()
		logger.SetLevel(LevelWarn)
		defer logger.SetLevel(LevelDebug)
		logger.Audit("ADD_WHITELIST", "Steve", map[string]any{"ip": "1.2.3.4"})
		out := buf.String()
		assert.Contains(t, out, "AUDIT")
		assert.Contains(t, out, "Steve")
		assert.Contains(t, out, "1.2.3.4")
	})
}

func TestConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Output: &buf, TimeFormat: time.Kitchen, Prefix: "whitelisthub"})

	logger.WithComponent("bridge").Info("connected", "url", "ws://example")
	out := buf.String()
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "bridge")
	assert.Contains(t, out, "ws://example")

	buf.Reset()
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.SetLevel(LevelDebug)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestConsoleStyles(t *testing.T) {
	styles := consoleStyles()
	assert.Contains(t, styles.Keys, "component")
	assert.Contains(t, styles.Values, "component")
	assert.True(t, styles.Values["component"].GetBold())
	assert.Contains(t, styles.Keys, "player")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	require.NotNil(t, Default())

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	cfg.JSON = true
	SetDefault(New(cfg))

	Info("info")
	Warn("warn")
	Error("error")
	Errorf("error %s", "formatted")
	WithComponent("comp").Info("comp msg")

	out := buf.String()
	assert.True(t, strings.Contains(out, "formatted"))
	assert.Contains(t, out, "comp msg")
}
