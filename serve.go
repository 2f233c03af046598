package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"preview-watcher/internal/bundle"
	"preview-watcher/internal/database"
	"preview-watcher/internal/filesystem"
	"preview-watcher/internal/handlers"
	"preview-watcher/internal/logging"
	"preview-watcher/internal/memory"
	"preview-watcher/internal/metrics"
	"preview-watcher/internal/notify"
	"preview-watcher/internal/pipeline"
	"preview-watcher/internal/preview"
	"preview-watcher/internal/startup"
	"preview-watcher/internal/watcher"
	"preview-watcher/internal/workers"
)

const (
	lifecycleRunning = "Watcher is running."
	lifecycleDown    = "Watcher down."

	shutdownTimeout = 30 * time.Second
	statsInterval   = 30 * time.Second
)

// service holds everything runServe starts, in the order it is stopped.
type service struct {
	db        *database.Database
	collector *metrics.Collector
	monitor   *memory.Monitor
	handlers  *handlers.Handlers
	hub       *notify.Hub
	janitor   *bundle.Janitor
	servers   []*http.Server

	stopWatch    context.CancelFunc
	pipelineDone chan error
}

func runServe(ctx context.Context, opts *options) error {
	startTime := time.Now()

	cfg, err := loadConfig(opts)
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	memory.ConfigureFromEnv()
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"watch":    cfg.WatchDir,
		"previews": cfg.PreviewDir,
		"zips":     cfg.ZipDir,
	}))

	initPreview(cfg)
	defer preview.ShutdownVips()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		startup.LogFatal("%v", err)
	}

	svc := &service{db: db, pipelineDone: make(chan error, 1)}

	svc.collector = metrics.NewCollector(db, statsInterval)
	svc.collector.Start()
	svc.monitor = memory.NewMonitor(memory.DefaultConfig())
	svc.monitor.Start()

	workerCount := workers.ForMixed(0)
	pool := pipeline.NewPool(newOrchestrator(cfg, db), pipeline.PoolOptions{
		Workers: workerCount,
		Grace:   cfg.ShutdownGrace,
		Monitor: svc.monitor,
	})

	startup.LogWatcherInit(cfg.WatchMode, cfg.PollInterval, cfg.ForceResync, workerCount)
	w, err := watcher.New(watcher.Options{
		Root:         cfg.WatchDir,
		Mode:         cfg.WatchMode,
		PollInterval: cfg.PollInterval,
		Debounce:     cfg.WatchDebounce,
		Resync:       cfg.ForceResync,
		Exclude:      cfg.ExcludePatterns,
		SkipDirs:     cfg.InternalDirs(),
	})
	if err != nil {
		startup.LogFatal("Failed to create watcher: %v", err)
	}

	svc.hub = notify.NewHub(db, cfg.WebURL)
	svc.handlers = handlers.New(db, svc.hub, handlers.Options{
		WatchDir:       cfg.WatchDir,
		PreviewDir:     cfg.PreviewDir,
		ZipDir:         cfg.ZipDir,
		ZipsEnabled:    cfg.ZipsEnabled,
		PermissionsURL: cfg.PermissionsURL,
	})
	svc.handlers.SetQueue(pool)

	if cfg.ZipsEnabled {
		svc.janitor = bundle.NewJanitor(cfg.ZipDir, cfg.CleanZipDays)
		if err := svc.janitor.Start(cfg.CleanZipSchedule); err != nil {
			startup.LogFatal("Failed to start zip janitor: %v", err)
		}
	}
	startup.LogJanitorInit(cfg.CleanZipSchedule, cfg.CleanZipDays, cfg.ZipsEnabled)

	router := setupRouter(svc.handlers, cfg)
	startup.LogHTTPRoutes(router, cfg.LogStaticFiles, cfg.LogHealthChecks)

	svc.servers = append(svc.servers, newHTTPServer(cfg.Host, cfg.Port, wrapHandler(router, cfg)))
	if cfg.SocketPort != "" && cfg.SocketPort != cfg.Port {
		svc.servers = append(svc.servers, newHTTPServer(cfg.Host, cfg.SocketPort, wrapHandler(socketRouter(svc.handlers, cfg), cfg)))
	}
	if cfg.MetricsEnabled {
		svc.servers = append(svc.servers, newHTTPServer(cfg.Host, cfg.MetricsPort, metricsRouter()))
	}

	// Start the watcher and pipeline
	watchCtx, stopWatch := context.WithCancel(context.Background())
	svc.stopWatch = stopWatch
	events := make(chan watcher.Event, 256)
	watchErr := make(chan error, 1)
	go func() {
		if err := w.Run(watchCtx, events); err != nil {
			watchErr <- fmt.Errorf("watcher stopped: %w", err)
		}
	}()
	go func() {
		svc.pipelineDone <- pool.Run(watchCtx, events)
	}()
	startup.LogWatcherStarted()
	svc.lifecycle(ctx, lifecycleRunning)
	svc.handlers.SetReady(true)

	serverErr := make(chan error, len(svc.servers))
	for _, srv := range svc.servers {
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	startup.LogServerStarted(startup.ServerConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		SocketPort:      cfg.SocketPort,
		MetricsPort:     cfg.MetricsPort,
		MetricsEnabled:  cfg.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	reason, runErr := waitForStop(sigChan, serverErr, watchErr)
	if runErr != nil {
		svc.recordFailure(ctx, runErr)
	}
	svc.shutdown(reason)
	return runErr
}

// waitForStop blocks until a signal arrives or a server or the watcher fails.
func waitForStop(sigChan <-chan os.Signal, serverErr, watchErr <-chan error) (string, error) {
	select {
	case sig := <-sigChan:
		return sig.String(), nil
	case err := <-serverErr:
		return "server error", err
	case err := <-watchErr:
		return "watcher error", err
	}
}

func newHTTPServer(host, port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        host + ":" + port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Downloads stream for as long as the client reads; streaming
		// applies its own per-chunk deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}

// lifecycle records a start or stop event in the error log.
func (s *service) lifecycle(ctx context.Context, message string) {
	logging.Info("%s", message)
	if err := s.db.AppendErrorLog(context.WithoutCancel(ctx), message); err != nil {
		logging.Warn("Failed to record %q: %v", message, err)
	}
}

// recordFailure logs an unexpected failure and stores it in the error log.
func (s *service) recordFailure(ctx context.Context, err error) {
	logging.Error("%v", err)
	if dbErr := s.db.AppendErrorLog(context.WithoutCancel(ctx), err.Error()); dbErr != nil {
		logging.Warn("Failed to record failure: %v", dbErr)
	}
}

func (s *service) shutdown(reason string) {
	startup.LogShutdownInitiated(reason)

	startup.LogShutdownStep("Stopping watcher")
	s.handlers.SetReady(false)
	s.stopWatch()
	startup.LogShutdownStepComplete("Watcher stopped")

	startup.LogShutdownStep("Draining preview pipeline")
	if err := <-s.pipelineDone; err != nil {
		logging.Warn("Pipeline drain: %v", err)
	} else {
		startup.LogShutdownStepComplete("Preview pipeline drained")
	}

	// The pipeline has its own grace period; the remaining steps share one timeout.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Cancelling bundle jobs")
	s.handlers.Shutdown(ctx)
	s.hub.Close()
	startup.LogShutdownStepComplete("Bundle jobs and WebSocket clients closed")

	if s.janitor != nil {
		startup.LogShutdownStep("Stopping zip janitor")
		s.janitor.Stop(ctx)
		startup.LogShutdownStepComplete("Zip janitor stopped")
	}

	startup.LogShutdownStep("Shutting down HTTP servers")
	for _, srv := range s.servers {
		if err := srv.Shutdown(ctx); err != nil {
			logging.Warn("Server %s shutdown error: %v", srv.Addr, err)
		}
	}
	startup.LogShutdownStepComplete("HTTP servers stopped")

	s.collector.Stop()
	s.monitor.Stop()

	s.lifecycle(ctx, lifecycleDown)
	startup.LogShutdownStep("Closing database")
	if err := s.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}
