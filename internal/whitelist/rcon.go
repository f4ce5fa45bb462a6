package whitelist

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/TheMich157/whitelisthub/internal/events"
	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/player"
	"github.com/TheMich157/whitelisthub/internal/rcon"
)

const noPlayersSentinel = "no whitelisted players"

// RCONOptions configures an RCONStore.
type RCONOptions struct {
	// Client is nil when RCON is disabled; every call then fails with ErrUnavailable.
	Client Executor
	Mode   Mode
	Events *events.Hub
	Logger *logging.Logger
}

// RCONStore drives the server's own whitelist command.
type RCONStore struct {
	client Executor
	mode   Mode
	events *events.Hub
	logger *logging.Logger

	mu sync.Mutex
}

// NewRCONStore creates an RCON-backed store.
func NewRCONStore(opts RCONOptions) *RCONStore {
	if opts.Mode == "" {
		opts.Mode = ModeOnline
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &RCONStore{
		client: opts.Client,
		mode:   opts.Mode,
		events: opts.Events,
		logger: logger.WithComponent("whitelist-rcon"),
	}
}

// Backend implements Store.
func (s *RCONStore) Backend() string { return BackendRCON }

// Add sends "whitelist add <name>". The server resolves the UUID itself, so the
// returned entry carries only the name.
func (s *RCONStore) Add(ctx context.Context, username string) (*Entry, error) {
	name, err := s.prepare(username)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.exec(ctx, "whitelist add "+name, true); err != nil {
		return nil, err
	}
	return &Entry{Name: name}, nil
}

// Remove sends "whitelist remove <name>".
func (s *RCONStore) Remove(ctx context.Context, username string) error {
	name, err := s.prepare(username)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.exec(ctx, "whitelist remove "+name, true)
	return err
}

// List sends "whitelist list" and parses the reply. Polling reads are not
// published as server commands.
func (s *RCONStore) List(ctx context.Context) (*Status, error) {
	if s.client == nil {
		return nil, ErrUnavailable
	}
	out, err := s.exec(ctx, "whitelist list", false)
	if err != nil {
		return nil, err
	}
	users := ParseListResponse(out)
	return &Status{Count: len(users), Users: users, Mode: s.mode}, nil
}

func (s *RCONStore) prepare(username string) (string, error) {
	if s.client == nil {
		return "", ErrUnavailable
	}
	if !player.ValidUsername(username) {
		return "", ErrInvalidUsername
	}
	return rcon.EscapeCommand(player.SanitizeUsername(username)), nil
}

func (s *RCONStore) exec(ctx context.Context, command string, publish bool) (string, error) {
	out, err := s.client.Execute(ctx, command)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	if publish {
		s.events.EmitServerCommand("rcon", "rcon", command)
	}
	s.logger.Debug("rcon whitelist command", "command", command, "response", out)
	return out, nil
}

// ParseListResponse extracts player names from the reply to "whitelist list",
// e.g. "There are 2 whitelisted players: Steve, Alex".
func ParseListResponse(resp string) []string {
	resp = strings.TrimSpace(resp)
	if resp == "" || strings.Contains(strings.ToLower(resp), noPlayersSentinel) {
		return []string{}
	}
	_, rest, ok := strings.Cut(resp, ":")
	if !ok {
		return []string{}
	}
	users := []string{}
	for _, tok := range strings.Split(rest, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			users = append(users, tok)
		}
	}
	return users
}
