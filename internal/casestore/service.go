package casestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/bus"
	"github.com/senpa-rd/casewatch/internal/model"
	"github.com/senpa-rd/casewatch/internal/store"
	"github.com/senpa-rd/casewatch/internal/telemetry"
)

// Persistence writes case records to the backing tables. *store.Store and
// the REST source both satisfy it.
type Persistence interface {
	Insert(ctx context.Context, table string, record map[string]string) (string, error)
	Update(ctx context.Context, table, id string, partial map[string]string) error
	Delete(ctx context.Context, table, id string) error
	FindIDByCaseNumber(ctx context.Context, table, caseNumber string) (string, error)
}

// AuditLogger records who changed which case.
type AuditLogger interface {
	LogCaseAction(ctx context.Context, caseNumber, action, actor string, details map[string]interface{}) error
}

// ServiceConfig wires a Service. Only Store is required; without
// Persistence the service is memory-only.
type ServiceConfig struct {
	Store        *Store
	Persistence  Persistence
	Audit        AuditLogger
	Bus          bus.Bus
	Metrics      *telemetry.Metrics
	Logger       *zap.Logger
	PrimaryTable string
}

// DefaultPrimaryTable receives cases created through the service.
const DefaultPrimaryTable = "notas_informativas"

// Service validates case writes, applies them to the in-memory store and
// persists them.
type Service struct {
	store   *Store
	persist Persistence
	audit   AuditLogger
	bus     bus.Bus
	metrics *telemetry.Metrics
	logger  *zap.Logger
	table   string
}

// NewService creates a case service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Store == nil {
		cfg.Store = NewStore(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Bus == nil {
		cfg.Bus = bus.NewNullBus(cfg.Logger)
	}
	if cfg.PrimaryTable == "" {
		cfg.PrimaryTable = DefaultPrimaryTable
	}
	return &Service{
		store:   cfg.Store,
		persist: cfg.Persistence,
		audit:   cfg.Audit,
		bus:     cfg.Bus,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.Named("cases"),
		table:   cfg.PrimaryTable,
	}
}

// Store returns the underlying case store.
func (s *Service) Store() *Store {
	return s.store
}

// PrimaryTable returns the table written by Create.
func (s *Service) PrimaryTable() string {
	return s.table
}

// Get returns a copy of one case.
func (s *Service) Get(number string) (*model.Case, error) {
	c, ok := s.store.Get(number)
	if !ok {
		return nil, ErrCaseNotFound
	}
	return c, nil
}

// List returns copies of every case ordered by case number.
func (s *Service) List() []*model.Case {
	return s.store.List()
}

// Create validates c, persists it to the primary table and adds it to the store.
func (s *Service) Create(ctx context.Context, c *model.Case, actor string) (*model.Case, error) {
	created, err := s.create(ctx, c)
	s.metrics.RecordCaseWrite(store.ActionCreateCase, err)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, created.CaseNumber, store.ActionCreateCase, actor, map[string]interface{}{
		"table": s.table,
	})
	return created, nil
}

func (s *Service) create(ctx context.Context, c *model.Case) (*model.Case, error) {
	if err := validationError(c); err != nil {
		return nil, err
	}
	if s.store.Has(c.CaseNumber) {
		return nil, ErrCaseExists
	}
	created := c.Clone()
	if created.Seizures == nil {
		created.Seizures = []string{}
	}
	if s.persist != nil {
		if _, err := s.persist.Insert(ctx, s.table, Record(created)); err != nil {
			return nil, fmt.Errorf("failed to persist case %s: %w", created.CaseNumber, err)
		}
	}
	s.store.Put(created)
	return created.Clone(), nil
}

// Update applies patch to the case with number. The in-memory case is
// updated before the backing table; a persistence failure is returned but
// the memory change is kept and will be replaced by the next rebuild.
func (s *Service) Update(ctx context.Context, number string, patch Patch, actor string) (*model.Case, error) {
	updated, cols, err := s.update(ctx, number, patch)
	s.metrics.RecordCaseWrite(store.ActionUpdateCase, err)
	if err != nil {
		return updated, err
	}
	details := make(map[string]interface{}, len(cols))
	for k, v := range cols {
		details[k] = v
	}
	s.afterWrite(ctx, number, store.ActionUpdateCase, actor, details)
	return updated, nil
}

func (s *Service) update(ctx context.Context, number string, patch Patch) (*model.Case, map[string]string, error) {
	current, ok := s.store.Get(number)
	if !ok {
		return nil, nil, ErrCaseNotFound
	}
	updated := current.Clone()
	cols := patch.Apply(updated)
	if err := validationError(updated); err != nil {
		return nil, nil, err
	}
	s.store.Put(updated)

	if s.persist == nil || len(cols) == 0 {
		return updated, cols, nil
	}
	id, err := s.persist.FindIDByCaseNumber(ctx, s.table, number)
	switch {
	case errors.Is(err, store.ErrRowNotFound):
		// The case only exists in detail tables so far.
		if _, err := s.persist.Insert(ctx, s.table, Record(updated)); err != nil {
			return updated, cols, fmt.Errorf("failed to persist case %s: %w", number, err)
		}
	case err != nil:
		return updated, cols, fmt.Errorf("failed to locate case %s: %w", number, err)
	default:
		if err := s.persist.Update(ctx, s.table, id, cols); err != nil {
			return updated, cols, fmt.Errorf("failed to persist case %s: %w", number, err)
		}
	}
	return updated, cols, nil
}

// Delete removes the case from the backing table and then from the store.
func (s *Service) Delete(ctx context.Context, number, actor string) error {
	err := s.delete(ctx, number)
	s.metrics.RecordCaseWrite(store.ActionDeleteCase, err)
	if err != nil {
		return err
	}
	s.afterWrite(ctx, number, store.ActionDeleteCase, actor, nil)
	return nil
}

func (s *Service) delete(ctx context.Context, number string) error {
	if !s.store.Has(number) {
		return ErrCaseNotFound
	}
	if s.persist != nil {
		id, err := s.persist.FindIDByCaseNumber(ctx, s.table, number)
		switch {
		case errors.Is(err, store.ErrRowNotFound):
			s.logger.Debug("case has no primary row", zap.String("case", number))
		case err != nil:
			return fmt.Errorf("failed to locate case %s: %w", number, err)
		default:
			if err := s.persist.Delete(ctx, s.table, id); err != nil && !errors.Is(err, store.ErrRowNotFound) {
				return fmt.Errorf("failed to delete case %s: %w", number, err)
			}
		}
	}
	s.store.Remove(number)
	return nil
}

// afterWrite records the audit entry and publishes the change. Failures are
// logged only; the write itself already succeeded.
func (s *Service) afterWrite(ctx context.Context, number, action, actor string, details map[string]interface{}) {
	if actor == "" {
		actor = "system"
	}
	s.metrics.SetCases(s.store.Len())

	if s.audit != nil {
		if err := s.audit.LogCaseAction(ctx, number, action, actor, details); err != nil {
			s.logger.Warn("failed to write audit entry", zap.String("case", number), zap.Error(err))
		}
	}
	msg := bus.CaseChangeMessage{
		CaseNumber: number,
		Action:     action,
		Actor:      actor,
		Timestamp:  time.Now().Unix(),
	}
	if err := s.bus.PublishCaseChange(ctx, msg); err != nil {
		s.logger.Warn("failed to publish case change", zap.String("case", number), zap.Error(err))
	}
	s.logger.Info("case changed", zap.String("case", number), zap.String("action", action), zap.String("actor", actor))
}
