// Package refresh fetches the source tables and reconciles them into the
// case store, on demand or on a timer.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/senpa-rd/casewatch/internal/bus"
	"github.com/senpa-rd/casewatch/internal/casestore"
	"github.com/senpa-rd/casewatch/internal/model"
	"github.com/senpa-rd/casewatch/internal/source"
	"github.com/senpa-rd/casewatch/internal/store"
	"github.com/senpa-rd/casewatch/internal/telemetry"
)

// DefaultTables lists the source tables read when none are configured. The
// primary table comes first so its descriptive fields win.
var DefaultTables = []string{
	"notas_informativas",
	"detenidos",
	"vehiculos",
	"incautaciones",
	"notificados",
}

// Invalidator is implemented by sources that cache, such as *source.Cached.
type Invalidator interface {
	Invalidate()
}

// Config wires a Pipeline. Source and Store are required.
type Config struct {
	Source  source.Source
	Tables  []string
	Store   *casestore.Store
	Mode    casestore.Mode
	Bus     bus.Bus
	Audit   casestore.AuditLogger
	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

// Result describes one completed run.
type Result struct {
	Mode     casestore.Mode `json:"mode"`
	Tables   int            `json:"tables"`
	Cases    int            `json:"cases"`
	Reused   bool           `json:"reused"`
	Duration time.Duration  `json:"duration"`
	At       time.Time      `json:"at"`
}

// Pipeline runs fetch-and-reconcile. Concurrent runs are collapsed into one.
type Pipeline struct {
	source  source.Source
	tables  []string
	store   *casestore.Store
	mode    casestore.Mode
	bus     bus.Bus
	audit   casestore.AuditLogger
	metrics *telemetry.Metrics
	logger  *zap.Logger

	group singleflight.Group

	// gen counts Force calls. A run loads its tables only if no Force began
	// after it started, so an older fetch never overwrites a newer one.
	loadMu sync.Mutex
	gen    uint64

	mu   sync.RWMutex
	last *Result
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("refresh pipeline requires a source")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("refresh pipeline requires a case store")
	}
	if len(cfg.Tables) == 0 {
		cfg.Tables = DefaultTables
	}
	if cfg.Mode == "" {
		cfg.Mode = casestore.ModeRebuild
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Bus == nil {
		cfg.Bus = bus.NewNullBus(cfg.Logger)
	}
	return &Pipeline{
		source:  cfg.Source,
		tables:  append([]string(nil), cfg.Tables...),
		store:   cfg.Store,
		mode:    cfg.Mode,
		bus:     cfg.Bus,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.Named("refresh"),
	}, nil
}

// Tables returns the configured table names.
func (p *Pipeline) Tables() []string {
	return append([]string(nil), p.tables...)
}

// Last returns the most recent successful result.
func (p *Pipeline) Last() (Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Result{}, false
	}
	return *p.last, true
}

// Run fetches and reconciles with the configured mode.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	return p.run(ctx, p.mode, false)
}

// Force drops any cached tables and rebuilds the store from source.
func (p *Pipeline) Force(ctx context.Context) (Result, error) {
	return p.run(ctx, casestore.ModeRebuild, true)
}

func (p *Pipeline) run(ctx context.Context, mode casestore.Mode, force bool) (Result, error) {
	key := string(mode)
	if force {
		// Each Force gets its own key: joining a run that fetched before
		// the caller's data changed would return stale tables.
		p.loadMu.Lock()
		p.gen++
		key = fmt.Sprintf("force-%d", p.gen)
		p.loadMu.Unlock()
		if inv, ok := p.source.(Invalidator); ok {
			inv.Invalidate()
		}
	}

	v, err, shared := p.group.Do(key, func() (interface{}, error) {
		return p.execute(ctx, mode)
	})
	if shared {
		p.logger.Debug("joined in-flight refresh", zap.String("key", key))
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (p *Pipeline) execute(ctx context.Context, mode casestore.Mode) (Result, error) {
	start := time.Now()
	p.loadMu.Lock()
	gen := p.gen
	p.loadMu.Unlock()

	tables, err := p.source.FetchTables(ctx, p.tables)
	if err != nil {
		p.metrics.RecordRefresh(time.Since(start), 0, 0, err)
		p.logger.Error("refresh failed", zap.Error(err))
		return Result{}, fmt.Errorf("failed to fetch tables: %w", err)
	}

	p.loadMu.Lock()
	if gen < p.gen {
		p.loadMu.Unlock()
		p.logger.Debug("discarding refresh superseded by a forced run")
		if last, ok := p.Last(); ok {
			return last, nil
		}
		return Result{Mode: mode, Cases: p.store.Len(), Reused: true, At: time.Now()}, nil
	}
	reused := p.store.Load(tables, mode)
	p.loadMu.Unlock()
	res := Result{
		Mode:     mode,
		Tables:   populated(tables),
		Cases:    p.store.Len(),
		Reused:   reused,
		Duration: time.Since(start),
		At:       time.Now(),
	}
	p.metrics.RecordRefresh(res.Duration, res.Tables, res.Cases, nil)

	p.mu.Lock()
	p.last = &res
	p.mu.Unlock()

	p.logger.Info("refreshed cases",
		zap.String("mode", string(mode)),
		zap.Int("tables", res.Tables),
		zap.Int("cases", res.Cases),
		zap.Bool("reused", reused),
		zap.Duration("took", res.Duration))

	p.announce(ctx, res)
	return res, nil
}

// announce records the run in the audit log and on the bus. Failures are logged only.
func (p *Pipeline) announce(ctx context.Context, res Result) {
	if p.audit != nil {
		details := map[string]interface{}{
			"mode":   string(res.Mode),
			"tables": res.Tables,
			"cases":  res.Cases,
			"reused": res.Reused,
		}
		if err := p.audit.LogCaseAction(ctx, "", store.ActionRefresh, "system", details); err != nil {
			p.logger.Warn("failed to write refresh audit entry", zap.Error(err))
		}
	}
	msg := bus.RefreshMessage{
		Mode:       string(res.Mode),
		Tables:     res.Tables,
		Cases:      res.Cases,
		DurationMS: res.Duration.Milliseconds(),
		Timestamp:  res.At.Unix(),
	}
	if err := p.bus.PublishRefresh(ctx, msg); err != nil {
		p.logger.Warn("failed to publish refresh", zap.Error(err))
	}
}

func populated(tables []model.Table) int {
	n := 0
	for _, t := range tables {
		if len(t.Data) > 1 {
			n++
		}
	}
	return n
}
