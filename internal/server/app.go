// Package server wires scraperhub's dependencies and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/api"
	"github.com/JakeFAU/scraperhub/internal/browser"
	"github.com/JakeFAU/scraperhub/internal/clock/system"
	"github.com/JakeFAU/scraperhub/internal/config"
	"github.com/JakeFAU/scraperhub/internal/events"
	"github.com/JakeFAU/scraperhub/internal/events/sinks"
	"github.com/JakeFAU/scraperhub/internal/history"
	"github.com/JakeFAU/scraperhub/internal/history/postgres"
	"github.com/JakeFAU/scraperhub/internal/id/uuid"
	"github.com/JakeFAU/scraperhub/internal/output"
	"github.com/JakeFAU/scraperhub/internal/output/gcs"
	"github.com/JakeFAU/scraperhub/internal/plugin"
	gcppublisher "github.com/JakeFAU/scraperhub/internal/publisher/pubsub"
	"github.com/JakeFAU/scraperhub/internal/scraper"
	"github.com/JakeFAU/scraperhub/internal/scrapers"
	"github.com/JakeFAU/scraperhub/internal/session"
	"github.com/JakeFAU/scraperhub/internal/users"
)

// Options overrides dependencies that are normally derived from config.
type Options struct {
	// Launcher replaces the chromedp launcher.
	Launcher browser.Launcher
	// Registerer receives the job collectors; nil means the default registry.
	Registerer prometheus.Registerer
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	pool      *browser.Pool
	registry  *plugin.Registry
	outputs   *output.Manager
	hub       *events.Hub
	history   history.Store
	runStore  *postgres.RunStore
	users     *users.Manager
	apiServer *api.Server

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// Build creates the application's dependencies. On error every resource
// acquired so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if app.hub != nil {
				_ = app.hub.Close(context.Background())
			}
			app.release()
		}
	}()

	app.logger.Info("building application dependencies", zap.Int("port", cfg.Server.Port))

	if err := app.setupOutput(ctx); err != nil {
		return nil, err
	}
	if err := app.setupPool(opts.Launcher); err != nil {
		return nil, err
	}
	app.registry = DiscoverPlugins(ctx, cfg, logger.Named("plugins"))
	if err := app.setupHistory(ctx); err != nil {
		return nil, err
	}
	if err := app.setupEvents(ctx, opts.Registerer); err != nil {
		return nil, err
	}

	coord, err := session.NewCoordinator(session.Config{
		Catalog: app.registry,
		Env: scraper.Env{
			Browsers:  app.pool,
			Artifacts: app.outputs,
			Logger:    logger.Named("scraper"),
		},
		Events:      app.hub,
		Clock:       system.New(),
		SendTimeout: cfg.SendTimeout(),
		Logger:      logger.Named("session"),
	})
	if err != nil {
		return nil, fmt.Errorf("session coordinator init failed: %w", err)
	}

	userStore, err := users.NewFileStore(cfg.Users.File)
	if err != nil {
		return nil, fmt.Errorf("user store init failed: %w", err)
	}
	app.users = users.NewManager(userStore, coord, uuid.New(), logger.Named("users"))

	hashKey, blockKey, err := cfg.Auth.Keys()
	if err != nil {
		return nil, err
	}
	app.apiServer, err = api.NewServer(api.Config{
		CookieName:     cfg.Auth.CookieName,
		HashKey:        hashKey,
		BlockKey:       blockKey,
		SecureCookie:   cfg.Auth.SecureCookie,
		RequestTimeout: cfg.RequestTimeout(),
		Ready:          app.ready,
	}, api.Deps{
		Users:    app.users,
		Scrapers: app.registry,
		Outputs:  app.outputs,
		History:  app.history,
		Logger:   logger.Named("api"),
	})
	if err != nil {
		return nil, fmt.Errorf("api server init failed: %w", err)
	}
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// DiscoverPlugins scans the configured plugin directories and runs every
// setup hook. Failed hooks are logged; the remaining scrapers stay usable.
func DiscoverPlugins(ctx context.Context, cfg config.Config, logger *zap.Logger) *plugin.Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := scrapers.Catalog(scrapers.Settings{Jumbo: cfg.Scrapers.Jumbo}, logger)
	registry := plugin.NewRegistry(catalog, logger)
	found := registry.Discover(cfg.Plugins.Dirs...)
	logger.Info("plugins discovered", zap.Int("count", len(found)), zap.Strings("dirs", cfg.Plugins.Dirs))
	for _, res := range registry.Setup(ctx) {
		if res.Err != nil {
			logger.Error("plugin setup failed",
				zap.String("plugin", res.Integration.Name),
				zap.String("domain", res.Integration.Domain),
				zap.Error(res.Err),
			)
		}
	}
	logger.Info("scrapers registered", zap.Strings("scrapers", registry.ScraperNames()))
	return registry
}

func (a *App) setupOutput(ctx context.Context) error {
	var mirror output.Mirror
	if a.cfg.Output.GCSBucket != "" {
		m, closeFn, err := gcs.Connect(ctx, gcs.Config{Bucket: a.cfg.Output.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs mirror init failed: %w", err)
		}
		a.addCloser("gcs client", closeFn)
		mirror = m
		a.logger.Info("mirroring artifacts to GCS", zap.String("bucket", a.cfg.Output.GCSBucket))
	}
	outputs, err := output.New(output.Config{
		Dir:    a.cfg.Output.Dir,
		Prefix: a.cfg.Output.Prefix,
	}, mirror, a.logger.Named("output"))
	if err != nil {
		return fmt.Errorf("output manager init failed: %w", err)
	}
	a.outputs = outputs
	return nil
}

func (a *App) setupPool(launcher browser.Launcher) error {
	if launcher == nil {
		launcher = browser.NewChromedpLauncher(browser.ChromeConfig{
			Headless:          a.cfg.Browser.Headless,
			UserAgent:         a.cfg.Browser.UserAgent,
			ExecPath:          a.cfg.Browser.ExecPath,
			NavigationTimeout: a.cfg.NavTimeout(),
		})
	}
	pool, err := browser.NewPool(browser.Config{
		MaxConcurrent: a.cfg.Browser.MaxConcurrent,
		Logger:        a.logger.Named("browser"),
	}, launcher)
	if err != nil {
		return fmt.Errorf("browser pool init failed: %w", err)
	}
	a.pool = pool
	a.addCloser("browser pool", func() error {
		pool.Close()
		return nil
	})
	return nil
}

func (a *App) setupHistory(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, keeping run history in memory")
		a.history = history.NewMemoryStore()
		return nil
	}
	store, err := postgres.NewRunStore(ctx, postgres.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.addCloser("run store", func() error {
		store.Close()
		return nil
	})
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("run store schema failed: %w", err)
	}
	a.runStore = store
	a.history = store
	a.logger.Info("run store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupEvents(ctx context.Context, reg prometheus.Registerer) error {
	sinkList := []events.Sink{sinks.NewStoreSink(a.history, a.logger.Named("history_sink"))}
	if a.cfg.Events.LogEnabled {
		sinkList = append(sinkList, sinks.NewLogSink(a.logger.Named("job_log")))
	}
	if a.cfg.Events.MetricsEnabled {
		promSink, err := sinks.NewPrometheusSink(reg)
		if err != nil {
			return fmt.Errorf("prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	if a.cfg.PubSub.ProjectID != "" && a.cfg.PubSub.TopicName != "" {
		pub, closeFn, err := gcppublisher.Connect(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.addCloser("pubsub client", closeFn)
		sinkList = append(sinkList, sinks.NewPublisherSink(pub, a.logger.Named("publisher_sink")))
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
	}

	hubCfg := events.Config{
		BufferSize:     a.cfg.Events.BufferSize,
		MaxBatchEvents: a.cfg.Events.MaxBatchEvents,
		MaxBatchWait:   time.Duration(a.cfg.Events.MaxBatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Events.SinkTimeoutMs) * time.Millisecond,
		Logger:         a.logger.Named("event_hub"),
	}
	a.hub = events.NewHub(hubCfg, sinkList...)
	a.logger.Info("event hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if len(a.registry.ScraperNames()) == 0 {
		return errors.New("no scrapers registered")
	}
	if a.runStore != nil {
		return a.runStore.Ping(ctx)
	}
	return nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

// Run serves HTTP until ctx is canceled or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", err), closeErr)
	default:
		return closeErr
	}
}

// Close ends every session, flushes lifecycle events and releases
// infrastructure clients.
func (a *App) Close(ctx context.Context) error {
	if a.users != nil {
		a.users.CloseAll()
		a.logger.Info("sessions closed")
	}
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("event hub close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.release()...)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// release runs the registered closers in reverse order.
func (a *App) release() []error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn(c.name+" close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errs
}
