// Package whitelist manages the server's player whitelist through one of two
// backends: direct edits of whitelist.json, or whitelist commands sent over RCON.
package whitelist

import (
	"context"
	"fmt"
	"strings"

	"github.com/TheMich157/whitelisthub/internal/events"
	"github.com/TheMich157/whitelisthub/internal/logging"
)

// Mode is the server's authentication mode, reported in status responses.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// Backend names accepted by New.
const (
	BackendFile = "file"
	BackendRCON = "rcon"
)

// Entry is one element of whitelist.json.
type Entry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Status summarizes the current whitelist.
type Status struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
	Mode  Mode     `json:"mode"`
}

// Store is the whitelist capability shared by both backends.
type Store interface {
	Add(ctx context.Context, username string) (*Entry, error)
	Remove(ctx context.Context, username string) error
	List(ctx context.Context) (*Status, error)
	Backend() string
}

// Executor runs one RCON command. *rcon.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Options selects and configures a backend.
type Options struct {
	Backend       string
	Mode          Mode
	ServerRoot    string
	WhitelistFile string

	// RCON is nil when RCON is disabled.
	RCON Executor
	// MirrorToRCON sends best-effort whitelist commands after file edits.
	MirrorToRCON bool

	Events *events.Hub
	Logger *logging.Logger
}

// New resolves the configured backend once.
func New(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		fo := FileOptions{
			ServerRoot:    opts.ServerRoot,
			WhitelistFile: opts.WhitelistFile,
			Mode:          opts.Mode,
			Logger:        opts.Logger,
		}
		if opts.MirrorToRCON {
			fo.Mirror = opts.RCON
		}
		return NewFileStore(fo)
	case BackendRCON:
		return NewRCONStore(RCONOptions{
			Client: opts.RCON,
			Mode:   opts.Mode,
			Events: opts.Events,
			Logger: opts.Logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown whitelist backend %q", opts.Backend)
	}
}
