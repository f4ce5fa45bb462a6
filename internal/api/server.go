package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/TheMich157/whitelisthub/internal/audit"
	"github.com/TheMich157/whitelisthub/internal/auth"
	"github.com/TheMich157/whitelisthub/internal/clock"
	"github.com/TheMich157/whitelisthub/internal/health"
	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/ratelimit"
	"github.com/TheMich157/whitelisthub/internal/scheduler"
	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

const (
	routeAdd     = "POST /api/whitelist/add"
	routeRemove  = "DELETE /api/whitelist/remove"
	routeStatus  = "GET /api/whitelist/status"
	routeAudit   = "GET /api/audit"
	routeHealth  = "GET /api/health"
	routeMetrics = "GET /metrics"
)

// ServerConfig holds HTTP server hardening limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns the timeouts used by Serve.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		ShutdownTimeout:   5 * time.Second,
	}
}

// Defaults for Options.
const (
	DefaultRateLimit    = 10
	DefaultRateWindow   = time.Minute
	DefaultMaxBodyBytes = 64 << 10
)

// Caller runs fn on the mutation loop. *mainloop.Loop satisfies it.
type Caller interface {
	Call(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditStore records and queries audit events. *audit.Store satisfies it.
type AuditStore interface {
	Write(ctx context.Context, evt audit.Event) error
	Query(ctx context.Context, f audit.Filter) ([]audit.Event, error)
	Count(ctx context.Context) (int64, error)
}

// Info is static daemon information reported by /api/health.
type Info struct {
	RCONEnabled bool
	RCONHost    string
	RCONPort    int
}

// Options holds dependencies for the API server.
type Options struct {
	Store  whitelist.Store
	Loop   Caller
	Mode   whitelist.Mode
	APIKey string
	// APIKeyHash is a bcrypt hash of the key. It takes precedence over APIKey.
	APIKeyHash string

	RateLimit    int
	RateWindow   time.Duration
	MaxBodyBytes int64
	// TrustProxy honours X-Forwarded-For and X-Real-IP for the client address.
	TrustProxy bool

	Info        Info
	Health      *health.Checker
	BridgeState func() string
	// Audit is optional.
	Audit AuditStore
	// Tasks reports scheduler state for /api/health. Optional.
	Tasks func() []scheduler.TaskStatus
	// TLS switches ListenAndServe to HTTPS.
	TLS *tls.Config

	Clock  clock.Clock
	Logger *logging.Logger
}

// Server handles API requests.
type Server struct {
	store      whitelist.Store
	loop       Caller
	mode       whitelist.Mode
	keys       auth.Verifier
	maxBody    int64
	trustProxy bool

	info        Info
	checker     *health.Checker
	bridgeState func() string
	tasks       func() []scheduler.TaskStatus
	audit       AuditStore
	tlsConfig   *tls.Config

	limiter *ratelimit.Limiter
	clock   clock.Clock
	logger  *logging.Logger
	mux     *http.ServeMux
}

// NewServer creates a server with its routes registered.
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("api server requires a whitelist store")
	}
	if opts.Loop == nil {
		return nil, errors.New("api server requires a mutation loop")
	}
	keys, err := auth.NewVerifier(opts.APIKey, opts.APIKeyHash)
	if err != nil {
		return nil, fmt.Errorf("api server: %w", err)
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = DefaultRateWindow
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Health == nil {
		opts.Health = health.NewChecker(opts.Clock)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{
		store:       opts.Store,
		loop:        opts.Loop,
		mode:        opts.Mode,
		keys:        keys,
		maxBody:     opts.MaxBodyBytes,
		trustProxy:  opts.TrustProxy,
		info:        opts.Info,
		checker:     opts.Health,
		bridgeState: opts.BridgeState,
		tasks:       opts.Tasks,
		audit:       opts.Audit,
		tlsConfig:   opts.TLS,
		limiter:     ratelimit.NewLimiter(opts.RateLimit, opts.RateWindow, opts.Clock),
		clock:       opts.Clock,
		logger:      logger.WithComponent("api"),
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	s.mux = http.NewServeMux()

	s.mux.Handle(routeAdd, s.protected(routeAdd, s.handleAdd))
	s.mux.Handle(routeRemove, s.protected(routeRemove, s.handleRemove))
	s.mux.Handle(routeStatus, s.protected(routeStatus, s.handleStatus))
	s.mux.Handle(routeAudit, s.protected(routeAudit, s.handleAuditQuery))

	s.mux.Handle(routeHealth, s.accessLog(routeHealth, http.HandlerFunc(s.handleHealth)))
	s.mux.Handle(routeMetrics, s.accessLog(routeMetrics, promhttp.Handler()))
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	cfg := DefaultServerConfig()
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.limiter.StartCleanup(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}

// ListenAndServe listens on addr with at most maxConns concurrent
// connections (0 means unlimited) and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string, maxConns int) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	return s.Serve(ctx, ln)
}
