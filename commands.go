package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"preview-watcher/internal/bundle"
	"preview-watcher/internal/database"
	"preview-watcher/internal/logging"
	"preview-watcher/internal/pipeline"
	"preview-watcher/internal/preview"
	"preview-watcher/internal/startup"
	"preview-watcher/internal/watcher"
	"preview-watcher/internal/workers"

	"github.com/spf13/cobra"
)

// options holds flag values shared by the commands.
type options struct {
	configFile string
	mode       string
	resync     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "preview-watcher",
		Short:         "Watch a directory tree and generate JPEG previews",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML configuration file (overrides CONFIG_FILE)")
	addWatchFlags(root, opts)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the watcher, preview pipeline and HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	addWatchFlags(serve, opts)

	scan := &cobra.Command{
		Use:   "scan",
		Short: "Process the watch directory once and exit",
		Long: "Walks the watch directory once. Files that already have a recorded preview are\n" +
			"skipped unless --resync is given, in which case every preview is rendered again.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd.Context(), opts)
		},
	}
	scan.Flags().BoolVar(&opts.resync, "resync", false, "render previews for files that are already registered")

	cleanZips := &cobra.Command{
		Use:   "clean-zips",
		Short: "Delete expired ZIP bundles once and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCleanZips(opts)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "preview-watcher %s (commit %s, built %s, %s %s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.Platform)
		},
	}

	root.AddCommand(serve, scan, cleanZips, version)
	return root
}

func addWatchFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVar(&opts.mode, "mode", "", "watch mode: push or poll (overrides WATCH_MODE)")
	cmd.Flags().BoolVar(&opts.resync, "resync", false, "process every existing file at startup (overrides FORCE_RESYNC)")
}

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig(opts *options) (*startup.Config, error) {
	if opts.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", opts.configFile); err != nil {
			return nil, err
		}
	}

	cfg, err := startup.LoadConfig()
	if err != nil {
		return nil, err
	}

	if opts.mode != "" {
		mode := strings.ToLower(opts.mode)
		if mode != startup.WatchModePush && mode != startup.WatchModePoll {
			return nil, fmt.Errorf("invalid --mode %q (expected %q or %q)", opts.mode, startup.WatchModePush, startup.WatchModePoll)
		}
		logging.Info("  WATCH_MODE overridden by flag: %s", mode)
		cfg.WatchMode = mode
	}
	if opts.resync && !cfg.ForceResync {
		logging.Info("  FORCE_RESYNC overridden by flag")
		cfg.ForceResync = true
	}
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg *startup.Config) (*database.Database, error) {
	start := time.Now()
	db, err := database.New(ctx, cfg.DatabaseLocation())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	startup.LogDatabaseInit(string(db.Dialect()), time.Since(start))
	return db, nil
}

func newOrchestrator(cfg *startup.Config, db *database.Database) *pipeline.Orchestrator {
	renderer := preview.NewRenderer(preview.RendererConfig{
		Quality:      cfg.Quality,
		MaxDimension: cfg.PixelLimit,
		MagickPath:   cfg.MagickPath,
		Encoder:      preview.NewEncoder(),
	})
	return pipeline.NewOrchestrator(cfg.WatchDir, cfg.PreviewDir, db, preview.NewDecoder(), renderer)
}

func initPreview(cfg *startup.Config) {
	if err := preview.InitVips(); err != nil {
		logging.Warn("libvips initialization failed: %v", err)
	}
	startup.LogPreviewInit(preview.IsVipsAvailable(), cfg.MagickPath)
}

// scanSummary counts pipeline outcomes; OnResult runs on worker goroutines.
type scanSummary struct {
	recorded, duplicates, failed, skipped atomic.Int64
}

func (s *scanSummary) observe(res pipeline.Result) {
	switch res.State {
	case pipeline.StateRecorded:
		s.recorded.Add(1)
	case pipeline.StateSkippedDuplicate:
		s.duplicates.Add(1)
	case pipeline.StateFailed:
		s.failed.Add(1)
	}
}

func runScan(parent context.Context, opts *options) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	cfg, err := loadConfig(opts)
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	initPreview(cfg)
	defer preview.ShutdownVips()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	excluder, err := watcher.NewExcluder(cfg.WatchDir, cfg.ExcludePatterns, cfg.InternalDirs())
	if err != nil {
		return err
	}
	// A fresh poll state has no baseline, so a single pass reports every file.
	pw := watcher.NewPollWatcher(cfg.WatchDir, cfg.PollInterval, excluder, true)

	summary := &scanSummary{}
	workerCount := workers.ForMixed(0)
	pool := pipeline.NewPool(newOrchestrator(cfg, db), pipeline.PoolOptions{
		Workers:  workerCount,
		Grace:    cfg.ShutdownGrace,
		OnResult: summary.observe,
	})
	startup.LogWatcherInit(startup.WatchModePoll, 0, cfg.ForceResync, workerCount)

	raw := make(chan watcher.Event, 64)
	passErr := make(chan error, 1)
	go func() {
		defer close(raw)
		passErr <- pw.Pass(ctx, raw)
	}()

	events := make(chan watcher.Event, 64)
	go func() {
		defer close(events)
		for ev := range raw {
			if ev.Kind == watcher.FileChanged && !cfg.ForceResync {
				exists, err := db.ArtifactExists(ctx, ev.Path)
				if err != nil {
					logging.Warn("Could not check %s: %v", ev.Path, err)
				} else if exists {
					summary.skipped.Add(1)
					continue
				}
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	runErr := pool.Run(ctx, events)
	if err := <-passErr; err != nil {
		logging.Warn("Scan pass incomplete: %v", err)
	}

	logging.Info("Scan finished in %v: %d recorded, %d duplicates, %d failed, %d already registered",
		time.Since(start).Round(time.Millisecond),
		summary.recorded.Load(), summary.duplicates.Load(), summary.failed.Load(), summary.skipped.Load())
	return runErr
}

func runCleanZips(opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	if !cfg.ZipsEnabled {
		return fmt.Errorf("zip directory %s is not usable", cfg.ZipDir)
	}

	janitor := bundle.NewJanitor(cfg.ZipDir, cfg.CleanZipDays)
	removed, err := janitor.Sweep()
	if err != nil {
		return err
	}
	logging.Info("Removed %d bundles older than %d days from %s", removed, cfg.CleanZipDays, cfg.ZipDir)
	return nil
}
