package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/senpa-rd/casewatch/internal/api"
	"github.com/senpa-rd/casewatch/internal/ingest"
	"github.com/senpa-rd/casewatch/internal/refresh"
	"github.com/senpa-rd/casewatch/internal/source"
	"github.com/senpa-rd/casewatch/internal/ui"
)

var (
	noTUI    bool
	forceTUI bool
	noAPI    bool
	uiTheme  string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard, HTTP API and background refresh",
	Long: `Start the casewatch server which includes:

1. Terminal dashboard (metrics, cases, regions, search)
2. HTTP API under /api/v1 and Prometheus metrics under /metrics
3. Scheduled refresh from the configured row source
4. CSV folder import when ingest.dir is set

The serve command runs until interrupted (Ctrl+C).

Examples:
  # Start with the terminal dashboard (default)
  casewatch serve

  # Start without the dashboard (headless mode)
  casewatch serve --no-tui

  # Read cases from a REST backend, refreshing every minute
  CASEWATCH_SOURCE_KIND=rest CASEWATCH_SOURCE_URL=https://db.example.org/rest/v1 \
    casewatch serve --refresh-interval 1m`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Run in headless mode without the terminal dashboard")
	serveCmd.Flags().BoolVar(&forceTUI, "force-tui", false, "Force the dashboard even in unsupported terminals")
	serveCmd.Flags().BoolVar(&noAPI, "no-api", false, "Do not start the HTTP API")
	serveCmd.Flags().StringVar(&uiTheme, "theme", "", "Dashboard theme (dark, light, high-contrast)")

	serveCmd.Flags().String("bind", "127.0.0.1:8080", "Bind address for the HTTP API")
	serveCmd.Flags().Float64("rps", 10, "Max API requests per second per client (0 disables)")
	serveCmd.Flags().Int("burst", 20, "Burst size for the API rate limiter")
	serveCmd.Flags().Duration("refresh-interval", 0, "Auto-refresh interval (0 keeps refresh.interval)")
	serveCmd.Flags().String("refresh-mode", "", "Refresh mode: rebuild or reuse")
	serveCmd.Flags().String("ingest-dir", "", "Directory watched for <table>.csv files")

	viper.BindPFlag("api.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("api.rps", serveCmd.Flags().Lookup("rps"))
	viper.BindPFlag("api.burst", serveCmd.Flags().Lookup("burst"))
	viper.BindPFlag("ingest.dir", serveCmd.Flags().Lookup("ingest-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	if d, _ := cmd.Flags().GetDuration("refresh-interval"); d > 0 {
		cfg.Refresh.Interval = d
	}
	if m, _ := cmd.Flags().GetString("refresh-mode"); m != "" {
		cfg.Refresh.Mode = m
	}

	// The dashboard owns the terminal, so logs go to a file while it runs.
	useTUI := determineTUIMode()
	logPath := ""
	if useTUI {
		logPath = setupLogFile()
	}
	logger, err := newLogger(cfg, logPath)
	if err != nil {
		return err
	}
	logger = logger.Named("serve")
	logger.Info("starting casewatch server", zap.Bool("tui", useTUI), zap.String("source", cfg.Source.Kind))

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// A failed first load is not fatal: the auto-refresher retries.
	if res, err := a.load(ctx); err != nil {
		logger.Warn("initial load failed", zap.Error(err))
	} else {
		logger.Info("cases loaded", zap.Int("cases", res.Cases), zap.Int("tables", res.Tables))
	}

	var watcher *ingest.FolderWatcher
	if cfg.Ingest.Dir != "" {
		if watcher, err = newWatcher(a, cfg.Ingest.Dir, logger); err != nil {
			return err
		}
	}

	svcCtx, svcCancel := context.WithCancel(ctx)
	defer svcCancel()

	auto := refresh.NewAutoRefresher(a.pipeline, cfg.Refresh.Interval, logger)
	auto.Start(svcCtx)
	defer auto.Stop()

	g, gctx := errgroup.WithContext(svcCtx)

	if !noAPI {
		srv := api.NewServer(api.Options{
			Bind:          cfg.API.Bind,
			RPS:           cfg.API.RPS,
			Burst:         cfg.API.Burst,
			AllowedEmails: cfg.API.AllowedEmails,
		}, api.Deps{
			Cases:      a.cases,
			Refresher:  a.pipeline,
			Audit:      a.db,
			DB:         a.db,
			Bus:        a.bus,
			Heuristics: a.heuristics,
			Filters:    a.filters,
			Metrics:    a.metrics,
			Logger:     logger,
		})
		g.Go(func() error { return srv.Start(gctx) })
	}

	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("folder watcher: %w", err)
			}
			return nil
		})
	}

	if useTUI {
		dash := ui.NewDashboard(ui.Options{
			Cases:     a.cases,
			Refresher: a.pipeline,
			Filters:   a.filters,
			Theme:     uiTheme,
			Logger:    logger,
		})
		// Run returns when a background service fails too, since gctx is cancelled.
		if err := dash.Run(gctx); err != nil {
			logger.Error("dashboard error", zap.Error(err))
		}
		logger.Info("dashboard exited, stopping background services")
		svcCancel()
	} else {
		logger.Info("running in headless mode")
		<-gctx.Done()
		logger.Info("received shutdown signal")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("casewatch server stopped")
	return nil
}

// newWatcher imports <table>.csv files from dir into the database and
// forces a refresh after each import.
func newWatcher(a *app, dir string, logger *zap.Logger) (*ingest.FolderWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ingest directory %s: %w", dir, err)
	}
	if a.cfg.Source.Kind == source.KindREST {
		logger.Warn("ingest.dir imports into the local database, which the rest source does not read",
			zap.String("dir", dir))
	}
	importer := ingest.NewImporter(a.db, ingest.Options{
		Dir:     dir,
		Replace: true,
		Logger:  logger,
		Metrics: a.metrics,
	})
	return ingest.NewFolderWatcher(importer, func(ctx context.Context, res ingest.Result) {
		if _, err := a.pipeline.Force(ctx); err != nil {
			logger.Warn("refresh after import failed", zap.String("table", res.Table), zap.Error(err))
		}
	}), nil
}

// determineTUIMode determines if the dashboard will be used
func determineTUIMode() bool {
	if noTUI {
		return false
	}
	return forceTUI || canInitializeTUI()
}

// setupLogFile returns the dashboard log path, or "" to keep stderr.
func setupLogFile() string {
	logDir := filepath.Join(getWorkingDir(), "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(logDir, "casewatch-serve.log")
}
