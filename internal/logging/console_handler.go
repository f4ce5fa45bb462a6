package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	charm "github.com/charmbracelet/log"
)

// consoleStyles highlights the component and player keys so per-subsystem
// lines are easy to scan.
func consoleStyles() *charm.Styles {
	styles := charm.DefaultStyles()
	styles.Keys["component"] = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	styles.Values["component"] = lipgloss.NewStyle().Bold(true)
	styles.Keys["player"] = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styles.Levels[charm.WarnLevel] = styles.Levels[charm.WarnLevel].Foreground(lipgloss.Color("214"))
	return styles
}

// ConsoleHandler renders records in a human-readable form using charmbracelet/log.
// The charm logger always runs at debug; filtering is done against the shared LevelVar
// so SetLevel keeps working after the handler is built.
type ConsoleHandler struct {
	inner slog.Handler
	level *slog.LevelVar
}

// NewConsoleHandler creates a new ConsoleHandler.
func NewConsoleHandler(out io.Writer, level *slog.LevelVar, cfg Config) *ConsoleHandler {
	cl := charm.NewWithOptions(out, charm.Options{
		ReportTimestamp: true,
		ReportCaller:    cfg.AddSource,
		TimeFormat:      cfg.TimeFormat,
		Prefix:          cfg.Prefix,
		Level:           charm.DebugLevel,
	})
	cl.SetStyles(consoleStyles())
	return &ConsoleHandler{inner: cl, level: level}
}

// Enabled reports whether the handler is enabled for this level.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle handles the Record.
func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new handler with the given attributes.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ConsoleHandler{inner: h.inner.WithAttrs(attrs), level: h.level}
}

// WithGroup returns a new handler with the given group.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return &ConsoleHandler{inner: h.inner.WithGroup(name), level: h.level}
}
