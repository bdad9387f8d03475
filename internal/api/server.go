// Package api serves the case dashboard over HTTP with echo.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/bus"
	"github.com/senpa-rd/casewatch/internal/casestore"
	"github.com/senpa-rd/casewatch/internal/filter"
	"github.com/senpa-rd/casewatch/internal/heuristics"
	"github.com/senpa-rd/casewatch/internal/refresh"
	"github.com/senpa-rd/casewatch/internal/store"
	"github.com/senpa-rd/casewatch/internal/telemetry"
)

// Options controls the HTTP server.
type Options struct {
	// Bind address, e.g. "127.0.0.1:8080"
	Bind string
	// RPS is the per-client request rate. 0 disables rate limiting.
	RPS float64
	// Burst is the token bucket size. If 0 and RPS>0, defaults to RPS.
	Burst int
	// AllowedEmails gates /api/v1 on the X-User-Email header. Empty disables the gate.
	AllowedEmails []string
}

// Refresher is the part of the refresh pipeline the API drives.
type Refresher interface {
	Force(ctx context.Context) (refresh.Result, error)
	Last() (refresh.Result, bool)
}

// AuditReader returns the audit history of a case.
type AuditReader interface {
	GetAuditEntries(ctx context.Context, caseNumber string, limit int) ([]store.AuditEntry, error)
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the handlers use. Cases is required.
type Deps struct {
	Cases      *casestore.Service
	Refresher  Refresher
	Audit      AuditReader
	DB         Pinger
	Bus        bus.Bus
	Heuristics *heuristics.Set
	Filters    *filter.Engine
	Metrics    *telemetry.Metrics
	Logger     *zap.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	echo    *echo.Echo
	opts    Options
	deps    Deps
	logger  *zap.Logger
	allowed map[string]bool
	started int32
}

// NewServer builds the echo instance and registers every route.
func NewServer(opts Options, deps Deps) *Server {
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:8080"
	}
	if opts.RPS > 0 && opts.Burst <= 0 {
		opts.Burst = int(opts.RPS)
		if opts.Burst < 1 {
			opts.Burst = 1
		}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Heuristics == nil {
		deps.Heuristics = heuristics.Default()
	}
	if deps.Filters == nil {
		deps.Filters = filter.New(nil)
	}

	s := &Server{
		opts:    opts,
		deps:    deps,
		logger:  deps.Logger.Named("api"),
		allowed: make(map[string]bool, len(opts.AllowedEmails)),
	}
	for _, email := range opts.AllowedEmails {
		if e := normalizeEmail(email); e != "" {
			s.allowed[e] = true
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(s.loggingMiddleware())
	e.Use(s.metricsMiddleware())
	s.echo = e
	s.initRoutes()
	return s
}

// Echo exposes the underlying router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	g := s.echo.Group("/api/v1")
	g.GET("/health", s.health)

	protected := []echo.MiddlewareFunc{s.emailGate}
	if limiter := s.rateLimiter(); limiter != nil {
		protected = append(protected, limiter)
	}
	v1 := g.Group("", protected...)

	v1.GET("/cases", s.listCases)
	v1.POST("/cases", s.createCase)
	v1.GET("/cases/:number", s.getCase)
	v1.PUT("/cases/:number", s.updateCase)
	v1.DELETE("/cases/:number", s.deleteCase)
	v1.GET("/cases/:number/audit", s.caseAudit)

	v1.GET("/metrics/summary", s.metricsSummary)
	v1.GET("/views/regions", s.viewRegions)
	v1.GET("/views/provinces", s.viewProvinces)
	v1.GET("/views/seizures", s.viewSeizures)
	v1.GET("/views/nationalities", s.viewNationalities)
	v1.GET("/views/vehicles", s.viewVehicles)
	v1.GET("/views/weekly", s.viewWeekly)
	v1.GET("/views/topics", s.viewTopics)

	v1.POST("/refresh", s.refresh)

	v1.GET("/export/cases.csv", s.exportCases)
	v1.GET("/export/metrics.csv", s.exportMetrics)
	v1.GET("/export/charts/:chart", s.exportChart)
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return errors.New("api server already started")
	}
	// Bind early to surface errors synchronously
	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Bind, err)
	}
	s.echo.Listener = ln
	s.echo.Server.ReadTimeout = 10 * time.Second
	s.echo.Server.WriteTimeout = 30 * time.Second
	s.echo.Server.IdleTimeout = 60 * time.Second

	s.logger.Info("api listening",
		zap.String("addr", "http://"+ln.Addr().String()),
		zap.Float64("rps", s.opts.RPS),
		zap.Int("burst", s.opts.Burst),
		zap.Bool("email_gate", len(s.allowed) > 0))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
