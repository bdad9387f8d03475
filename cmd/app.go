package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/bus"
	"github.com/senpa-rd/casewatch/internal/casestore"
	"github.com/senpa-rd/casewatch/internal/filter"
	"github.com/senpa-rd/casewatch/internal/heuristics"
	"github.com/senpa-rd/casewatch/internal/logging"
	"github.com/senpa-rd/casewatch/internal/reconcile"
	"github.com/senpa-rd/casewatch/internal/refresh"
	"github.com/senpa-rd/casewatch/internal/source"
	"github.com/senpa-rd/casewatch/internal/store"
	"github.com/senpa-rd/casewatch/internal/telemetry"
)

// app holds the components every command builds on.
type app struct {
	cfg        Config
	logger     *zap.Logger
	db         *store.Store
	source     source.Source
	bus        bus.Bus
	heuristics *heuristics.Set
	filters    *filter.Engine
	metrics    *telemetry.Metrics
	cases      *casestore.Service
	pipeline   *refresh.Pipeline
}

// newLogger builds the process logger. A non-empty logPath sends output to
// that file instead of stderr.
func newLogger(cfg Config, logPath string) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: logPath,
	})
}

// newApp opens the database, row source and bus and assembles the case
// service and refresh pipeline. Close releases them.
func newApp(cfg Config, logger *zap.Logger) (*app, error) {
	mode, err := casestore.ParseMode(cfg.Refresh.Mode)
	if err != nil {
		return nil, err
	}

	set, err := heuristics.LoadFile(cfg.Heuristics.File)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Database.DSN
	if isSQLitePath(cfg.Database.Driver, dsn) {
		dsn = resolvePathRelativeToBase(getWorkingDir(), dsn)
	}
	logger.Debug("opening database", zap.String("driver", cfg.Database.Driver), zap.String("dsn", redactDSN(dsn)))
	db, err := store.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	src, err := source.New(source.Config{
		Kind:     cfg.Source.Kind,
		URL:      cfg.Source.URL,
		APIKey:   cfg.Source.APIKey,
		CacheTTL: cfg.Source.CacheTTL,
	}, db, logger.Named("source"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize source: %w", err)
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		source:     src,
		bus:        bus.NewBus(cfg.Redis.URL, logger.Named("bus")),
		heuristics: set,
		filters:    filter.New(nil),
		metrics:    telemetry.New(),
	}

	caseStore := casestore.NewStore(reconcile.New(set, logger.Named("reconcile")))
	a.cases = casestore.NewService(casestore.ServiceConfig{
		Store:        caseStore,
		Persistence:  persistenceFor(src, db),
		Audit:        db,
		Bus:          a.bus,
		Metrics:      a.metrics,
		Logger:       logger,
		PrimaryTable: cfg.Source.PrimaryTable,
	})

	a.pipeline, err = refresh.New(refresh.Config{
		Source:  src,
		Tables:  cfg.Source.Tables,
		Store:   caseStore,
		Mode:    mode,
		Bus:     a.bus,
		Audit:   db,
		Metrics: a.metrics,
		Logger:  logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// persistenceFor writes through the REST backend when cases come from it,
// otherwise to the local database.
func persistenceFor(src source.Source, db *store.Store) casestore.Persistence {
	if c, ok := src.(*source.Cached); ok {
		src = c.Unwrap()
	}
	if p, ok := src.(casestore.Persistence); ok {
		return p
	}
	return db
}

// Close releases the bus and the database.
func (a *app) Close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Warn("failed to close bus", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// load fills the case store from the source once.
func (a *app) load(ctx context.Context) (refresh.Result, error) {
	res, err := a.pipeline.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load cases: %w", err)
	}
	return res, nil
}

// bootstrap is the common prologue of the one-shot commands: config,
// logger, components and an initial load.
func bootstrap(ctx context.Context) (*app, error) {
	cfg := GetConfig()
	logger, err := newLogger(cfg, "")
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := a.load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func isSQLitePath(driver, dsn string) bool {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
	default:
		return false
	}
	return dsn != "" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}

// redactDSN hides the password of URL-style DSNs.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}

// getExecutableDir returns the directory of the running executable.
// Falls back to current directory on error.
func getExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// getWorkingDir returns the current working directory.
// Falls back to executable directory if os.Getwd fails.
func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	return getExecutableDir()
}

// resolvePathRelativeToBase resolves a possibly relative path against a base directory.
// Absolute paths are returned unchanged.
func resolvePathRelativeToBase(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	// Normalize leading "./" for consistent joining
	p = strings.TrimPrefix(p, "./")
	return filepath.Join(base, p)
}
