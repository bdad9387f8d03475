package source

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/senpa-rd/casewatch/internal/model"
)

// TableReader is the part of the database layer the SQL source needs.
type TableReader interface {
	ReadTable(ctx context.Context, name string) (model.Table, error)
}

// maxParallelReads bounds concurrent table reads.
const maxParallelReads = 4

// SQL reads source tables from the local or hosted relational database.
type SQL struct {
	db TableReader
}

// NewSQL returns a source backed by db.
func NewSQL(db TableReader) *SQL {
	return &SQL{db: db}
}

// FetchTables reads every table concurrently. The first failure cancels the rest.
func (s *SQL) FetchTables(ctx context.Context, names []string) ([]model.Table, error) {
	out := make([]model.Table, len(names))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelReads)
	for i, name := range names {
		eg.Go(func() error {
			t, err := s.db.ReadTable(egCtx, name)
			if err != nil {
				return fmt.Errorf("failed to read table %s: %w", name, err)
			}
			out[i] = t
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
