package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dadbase/dadbase/internal/api"
	"github.com/dadbase/dadbase/internal/app/progression"
	"github.com/dadbase/dadbase/internal/health"
	"github.com/dadbase/dadbase/internal/infra/healing"
	"github.com/dadbase/dadbase/internal/infra/scheduler"
	"github.com/dadbase/dadbase/internal/infra/sqlite"
)

// Daemon is the core dadbase runtime. It wires together all services.
type Daemon struct {
	Config        Config
	DB            *sqlite.DB
	Engine        *progression.Engine
	Notifications *progression.NotificationService
	Hub           *api.Hub
	Server        *api.Server
	Scheduler     *scheduler.Scheduler
	Health        *health.Checker

	logCloser io.Closer
	cancel    context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	closer, err := setupLogging(cfg.Logging)
	if err != nil {
		return nil, err
	}
	d := &Daemon{Config: cfg, logCloser: closer}

	loc, err := cfg.Progression.Location()
	if err != nil {
		d.Close()
		return nil, err
	}

	// Catalog first: an invalid catalog refuses to start.
	catalog, err := progression.LoadCatalog(cfg.Progression.CatalogFile)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	storeDir := cfg.Store.Dir
	if storeDir == "" {
		storeDir = dadbaseHome()
	}
	db, err := sqlite.Open(storeDir)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.DB = db

	// Notification fan-out: persisted, live, logged. A sink that keeps
	// failing is skipped until its breaker probes it back.
	d.Notifications = progression.NewNotificationService(db)
	sinks := progression.MultiNotifier{
		{Name: "store", Notifier: healing.Guard("store", d.Notifications, healing.DefaultConfig())},
	}
	if cfg.API.Websocket {
		d.Hub = api.NewHub(cfg.API.CORSOrigins)
		sinks = append(sinks, progression.NamedNotifier{
			Name:     "websocket",
			Notifier: healing.Guard("websocket", d.Hub, healing.DefaultConfig()),
		})
	}
	sinks = append(sinks, progression.NamedNotifier{Name: "log", Notifier: progression.LogNotifier{}})

	d.Engine, err = progression.New(db, catalog, progression.Config{
		Location:        loc,
		LeaderboardSize: cfg.Progression.LeaderboardSize,
		DailyQuestCount: cfg.Progression.DailyQuestCount,
		HistoryLimit:    cfg.Progression.HistoryLimit,
		Notifier:        sinks,
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	if cfg.Scheduler.Enabled {
		d.Scheduler, err = scheduler.New(d.Engine, scheduler.Config{
			RolloverSpec: cfg.Scheduler.RolloverCron,
			Location:     loc,
		})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("build scheduler: %w", err)
		}
	}

	// Health checker
	d.Health = health.NewChecker(db, storeDir, catalog)
	d.Health.SetInterval(parseDuration(cfg.Telemetry.HealthInterval, 60*time.Second))

	// API server
	d.Server = api.NewServer(d.Engine, d.Notifications)
	d.Server.SetHealth(d.Health)
	d.Server.SetCORSOrigins(cfg.API.CORSOrigins)
	d.Server.SetTimeout(parseDuration(cfg.API.RequestTimeout, 30*time.Second))
	if d.Hub != nil {
		d.Server.SetHub(d.Hub)
	}
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	log.WithFields(log.Fields{
		"store":    storeDir,
		"timezone": loc.String(),
		"badges":   len(catalog.Badges),
		"quests":   len(catalog.Quests),
	}).Info("daemon initialized")
	return d, nil
}

// Serve starts the HTTP server and background jobs, and blocks until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)
	if d.Hub != nil {
		go d.Hub.Run(ctx)
	}
	if d.Scheduler != nil {
		if err := d.Scheduler.Start(ctx); err != nil {
			cancel()
			return err
		}
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("shutting down")
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if d.Scheduler != nil {
			d.Scheduler.Stop()
		}
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	log.WithField("addr", addr).Info("dadbase serving")
	if d.Config.Telemetry.Prometheus {
		log.Infof("metrics: http://%s/metrics", addr)
	}
	if d.Hub != nil {
		log.Infof("live feed: ws://%s/ws", addr)
	}

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.logCloser != nil {
		log.SetOutput(os.Stderr)
		_ = d.logCloser.Close()
		d.logCloser = nil
	}
}
