// Package rcon is a one-shot client for the Minecraft remote console protocol.
//
// Every Execute call dials, authenticates, sends a single command, reads a single
// response and closes the socket. There is no pooling and no retry.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/metrics"
)

// DefaultTimeout bounds the dial and every read and write.
const DefaultTimeout = 5 * time.Second

var (
	ErrAuthFailed = errors.New("rcon authentication failed")
	ErrProtocol   = errors.New("rcon protocol error")
	ErrNetwork    = errors.New("rcon network error")
)

// Config describes how to reach a server's RCON listener.
type Config struct {
	Host     string
	Port     int
	Password string
	Timeout  time.Duration
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client executes commands against one configured server.
type Client struct {
	cfg    Config
	logger *logging.Logger
}

// NewClient creates a client. A zero Timeout uses DefaultTimeout.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{cfg: cfg, logger: logger.WithComponent("rcon")}
}

// Address returns the configured host:port.
func (c *Client) Address() string {
	return c.cfg.Address()
}

// Execute runs command and returns the trimmed response body.
// A response whose type or id does not match yields an empty string and no error.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	start := time.Now()
	out, err := c.execute(ctx, command)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %w", ErrNetwork, ctx.Err())
	}
	metrics.Get().RecordRCON(resultLabel(err), time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("rcon command failed", "addr", c.cfg.Address(), "error", err)
		return "", err
	}
	c.logger.Debug("rcon command", "addr", c.cfg.Address(), "command", command, "response", out)
	return out, nil
}

func (c *Client) execute(ctx context.Context, command string) (string, error) {
	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address())
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %w", ErrNetwork, c.cfg.Address(), err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	id := rand.Int32N(math.MaxInt32-1) + 1

	if err := c.roundTripDeadline(conn); err != nil {
		return "", err
	}
	if err := writePacket(conn, PacketAuth, id, c.cfg.Password); err != nil {
		return "", fmt.Errorf("%w: send auth: %w", ErrNetwork, err)
	}
	resp, err := readPacket(conn)
	if err != nil {
		return "", err
	}
	if resp.Type != PacketAuthResponse || resp.ID != id {
		return "", ErrAuthFailed
	}

	if err := c.roundTripDeadline(conn); err != nil {
		return "", err
	}
	if err := writePacket(conn, PacketCommand, id, command); err != nil {
		return "", fmt.Errorf("%w: send command: %w", ErrNetwork, err)
	}
	resp, err = readPacket(conn)
	if err != nil {
		return "", err
	}
	if resp.Type != PacketResponse || resp.ID != id {
		return "", nil
	}
	return strings.TrimRightFunc(string(resp.Body), unicode.IsSpace), nil
}

func (c *Client) roundTripDeadline(conn net.Conn) error {
	if err := conn.SetDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrNetwork, err)
	}
	return nil
}

// Execute is the stateless form of Client.Execute.
func Execute(ctx context.Context, host string, port int, password, command string, timeout time.Duration) (string, error) {
	return NewClient(Config{Host: host, Port: port, Password: password, Timeout: timeout}, nil).Execute(ctx, command)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_\-\s.]`)

// EscapeCommand strips every character outside letters, digits, underscore,
// hyphen, whitespace and period.
func EscapeCommand(s string) string {
	return unsafeChars.ReplaceAllString(s, "")
}

var colorCodes = regexp.MustCompile(`(?i)§[0-9a-fk-orx]`)

// StripColors removes Minecraft § formatting codes from a response.
func StripColors(s string) string {
	return colorCodes.ReplaceAllString(s, "")
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrProtocol):
		return "protocol_error"
	default:
		return "network_error"
	}
}
