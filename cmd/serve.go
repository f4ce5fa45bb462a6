package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/TheMich157/whitelisthub/internal/api"
	"github.com/TheMich157/whitelisthub/internal/audit"
	"github.com/TheMich157/whitelisthub/internal/auth"
	"github.com/TheMich157/whitelisthub/internal/brand"
	"github.com/TheMich157/whitelisthub/internal/bridge"
	"github.com/TheMich157/whitelisthub/internal/clock"
	"github.com/TheMich157/whitelisthub/internal/config"
	"github.com/TheMich157/whitelisthub/internal/events"
	"github.com/TheMich157/whitelisthub/internal/health"
	"github.com/TheMich157/whitelisthub/internal/logging"
	"github.com/TheMich157/whitelisthub/internal/logwatch"
	"github.com/TheMich157/whitelisthub/internal/mainloop"
	"github.com/TheMich157/whitelisthub/internal/metrics"
	"github.com/TheMich157/whitelisthub/internal/notify"
	"github.com/TheMich157/whitelisthub/internal/presence"
	"github.com/TheMich157/whitelisthub/internal/rcon"
	"github.com/TheMich157/whitelisthub/internal/scheduler"
	certs "github.com/TheMich157/whitelisthub/internal/tls"
	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

const (
	healthInterval    = 30 * time.Second
	metricsInterval   = 15 * time.Second
	certRenewInterval = 12 * time.Hour
	certExpiryWarning = 7 * 24 * time.Hour
)

// ServeOptions are command-line overrides for the daemon.
type ServeOptions struct {
	LogLevel string
	LogJSON  bool
}

// RunServe loads configFile and runs the daemon until SIGINT or SIGTERM.
func RunServe(configFile string, opts ServeOptions) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging, opts)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg, logger, &clock.RealClock{})
	if err != nil {
		return err
	}
	defer d.close()

	if config.Bool(cfg.API.Enabled) && cfg.API.APIKeyHash == "" {
		if err := auth.CheckKeyStrength(cfg.API.APIKey); err != nil {
			logger.Warn("weak api key, generate one with '"+brand.BinaryName+" config init'", "reason", err)
		}
	}

	logger.Info("starting "+brand.Name,
		"version", brand.Version,
		"backend", cfg.Backend,
		"mode", cfg.Mode,
		"server_root", cfg.ServerRoot,
	)
	return d.run(ctx)
}

func newLogger(lc *config.LoggingConfig, opts ServeOptions) (*logging.Logger, error) {
	lcfg := logging.DefaultConfig()
	levelName := lc.Level
	if opts.LogLevel != "" {
		levelName = opts.LogLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	lcfg.Level = level
	lcfg.JSON = lc.JSON || opts.LogJSON
	return logging.New(lcfg), nil
}

// daemon owns every long-lived component of a running server.
type daemon struct {
	cfg    *config.Config
	logger *logging.Logger
	clock  clock.Clock

	hub     *events.Hub
	rcon    *rcon.Client
	audit   *audit.Store
	store   whitelist.Store
	loop    *mainloop.Loop
	tracker *presence.Tracker
	bridge  *bridge.Bridge
	checker *health.Checker
	sched   *scheduler.Scheduler
	api     *api.Server
	certs   *certs.Manager
	notify  *notify.Dispatcher
}

func newDaemon(cfg *config.Config, logger *logging.Logger, clk clock.Clock) (*daemon, error) {
	d := &daemon{
		cfg:     cfg,
		logger:  logger,
		clock:   clk,
		hub:     events.NewHub(),
		tracker: presence.NewTracker(),
		checker: health.NewChecker(clk),
		sched:   scheduler.New(logger, clk),
	}

	wopts := whitelist.Options{
		Backend:       cfg.Backend,
		Mode:          whitelist.Mode(cfg.Mode),
		ServerRoot:    cfg.ServerRoot,
		WhitelistFile: cfg.WhitelistFile,
		MirrorToRCON:  config.Bool(cfg.RCON.Mirror),
		Events:        d.hub,
		Logger:        logger,
	}
	if cfg.RCON.Enabled {
		d.rcon = rcon.NewClient(rcon.Config{
			Host:     cfg.RCON.Host,
			Port:     cfg.RCON.Port,
			Password: cfg.RCON.Password,
			Timeout:  cfg.RCON.TimeoutDuration(),
		}, logger)
		wopts.RCON = d.rcon
	}

	raw, err := whitelist.New(wopts)
	if err != nil {
		return nil, err
	}

	var auditWriter whitelist.AuditWriter
	if config.Bool(cfg.Audit.Enabled) {
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		d.audit, err = audit.NewStore(cfg.Audit.Path, cfg.Audit.RetentionDays, clk)
		if err != nil {
			return nil, err
		}
		auditWriter = d.audit
	}
	d.store = whitelist.Instrument(raw, auditWriter, logger).PublishTo(d.hub)

	if cfg.Notify.Enabled {
		d.notify = notify.NewDispatcher(cfg.Notify, nil, logger)
	}

	d.loop = mainloop.New(0, logger)

	if cfg.Bridge.Enabled {
		d.bridge, err = bridge.New(bridge.Options{
			URL:               cfg.Bridge.URL,
			APIKey:            cfg.Bridge.APIKey,
			ServerID:          cfg.Bridge.ServerID,
			ReconnectDelay:    cfg.Bridge.ReconnectDelayDuration(),
			MaxReconnectDelay: cfg.Bridge.MaxReconnectDelayDuration(),
			DisableReconnect:  !config.Bool(cfg.Bridge.Reconnect),
			PingInterval:      cfg.Bridge.PingIntervalDuration(),
			Store:             d.store,
			Loop:              d.loop,
			Clock:             clk,
			Logger:            logger,
			// RunTask only launches the snapshot, so the read goroutine is not held.
			OnReady: func() {
				if err := d.sched.RunTask(scheduler.TaskStateSnapshot); err != nil {
					logger.Debug("initial state push skipped", "error", err)
				}
			},
		})
		if err != nil {
			d.close()
			return nil, err
		}
	}

	if config.Bool(cfg.API.Enabled) && cfg.API.TLSEnabled() {
		d.certs, err = certs.NewManager(certs.Options{
			CertFile:   cfg.API.TLSCert,
			KeyFile:    cfg.API.TLSKey,
			SelfSigned: cfg.API.TLSSelfSigned,
			Hosts:      cfg.API.TLSHosts,
			Clock:      clk,
			Logger:     logger,
		})
		if err != nil {
			d.close()
			return nil, err
		}
	}

	d.registerChecks()
	if err := d.registerTasks(); err != nil {
		d.close()
		return nil, err
	}

	if config.Bool(cfg.API.Enabled) {
		aopts := api.Options{
			Store:      d.store,
			Loop:       d.loop,
			Mode:       whitelist.Mode(cfg.Mode),
			APIKey:     cfg.API.APIKey,
			APIKeyHash: cfg.API.APIKeyHash,
			RateLimit:  cfg.API.RateLimit,
			RateWindow: cfg.API.RateWindowDuration(),
			TrustProxy: cfg.API.TrustProxy,
			Info: api.Info{
				RCONEnabled: cfg.RCON.Enabled,
				RCONHost:    cfg.RCON.Host,
				RCONPort:    cfg.RCON.Port,
			},
			Health: d.checker,
			Clock:  clk,
			Logger: logger,
		}
		if d.audit != nil {
			aopts.Audit = d.audit
		}
		if d.bridge != nil {
			aopts.BridgeState = func() string { return d.bridge.State().String() }
		}
		aopts.Tasks = d.sched.GetStatus
		if d.certs != nil {
			aopts.TLS = d.certs.TLSConfig()
		}
		d.api, err = api.NewServer(aopts)
		if err != nil {
			d.close()
			return nil, err
		}
	}

	return d, nil
}

func (d *daemon) registerChecks() {
	d.checker.Register("whitelist", health.WhitelistCheck(d.store))
	if d.rcon != nil {
		d.checker.Register("rcon", health.RCONCheck(d.rcon, d.cfg.Backend == whitelist.BackendRCON))
	}
	if d.bridge != nil {
		d.checker.Register("bridge", health.BridgeCheck(d.bridge.IsReady))
	}
	if d.audit != nil {
		d.checker.Register("audit", health.AuditCheck(d.audit))
	}
	if d.certs != nil {
		d.checker.Register("tls", health.CertificateCheck(d.certs.NotAfter, d.clock, certExpiryWarning))
	}
}

func (d *daemon) registerTasks() error {
	if err := d.sched.AddTask(scheduler.NewHealthCheckTask(d.checker.Refresh, healthInterval)); err != nil {
		return err
	}
	if d.bridge != nil {
		task := scheduler.NewStateSnapshotTask(d.bridge, d.store, d.tracker.Online, d.cfg.Bridge.StateIntervalDuration())
		if err := d.sched.AddTask(task); err != nil {
			return err
		}
	}
	if d.certs != nil {
		if err := d.sched.AddTask(scheduler.NewCertRenewTask(d.certs.Reload, certRenewInterval)); err != nil {
			return err
		}
	}
	if d.audit != nil && d.cfg.Audit.RetentionDays > 0 {
		at, err := scheduler.ParseDaily(d.cfg.Audit.PruneAt)
		if err != nil {
			return err
		}
		if err := d.sched.AddTask(scheduler.NewAuditPruneTask(d.audit, at, d.logger)); err != nil {
			return err
		}
	}
	return nil
}

// run starts every component and blocks until ctx is done or the API
// server fails.
func (d *daemon) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.loop.Start()
	defer d.loop.Stop()

	collector := metrics.NewCollector(d.logger, metricsInterval, d.clock)
	collector.Start()
	defer collector.Stop()

	go d.tracker.Run(ctx, d.hub)
	if d.notify != nil {
		go d.notify.Run(ctx, d.hub)
	}

	if config.Bool(d.cfg.WatchLog) {
		w := logwatch.New(logwatch.Options{
			Path:   d.cfg.LogPath(),
			Hub:    d.hub,
			Logger: d.logger,
		})
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("log watcher stopped", "error", err)
			}
		}()
	}

	d.sched.Start()
	defer d.sched.Stop()

	if d.bridge != nil {
		go d.bridge.Forward(ctx, d.hub)
		d.bridge.Start()
		defer d.bridge.Stop()
	}

	if d.api == nil {
		<-ctx.Done()
		d.logger.Info("shutting down")
		return nil
	}

	err := d.api.ListenAndServe(ctx, d.cfg.API.Listen, d.cfg.API.MaxConnections)
	d.logger.Info("shutting down")
	return err
}

func (d *daemon) close() {
	if d.audit != nil {
		if err := d.audit.Close(); err != nil {
			d.logger.Warn("failed to close audit store", "error", err)
		}
		d.audit = nil
	}
}
