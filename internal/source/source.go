// Package source fetches raw tables from wherever the case data lives.
package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/model"
)

// Source returns one Table per requested name, in request order. A table
// that does not exist or has no rows comes back with nil Data.
type Source interface {
	FetchTables(ctx context.Context, names []string) ([]model.Table, error)
}

// Kinds accepted by New.
const (
	KindSQL  = "sql"
	KindREST = "rest"
)

// Config selects and configures a Source.
type Config struct {
	Kind     string
	URL      string
	APIKey   string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// New builds the configured source. db is required for the sql kind. A
// positive CacheTTL wraps the source in a Cached.
func New(cfg Config, db TableReader, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var src Source
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindSQL:
		if db == nil {
			return nil, fmt.Errorf("sql source requires a database")
		}
		src = NewSQL(db)
	case KindREST:
		if cfg.URL == "" {
			return nil, fmt.Errorf("rest source requires source.url")
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		src = NewREST(cfg.URL, cfg.APIKey, &http.Client{Timeout: timeout}, logger)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}

	if cfg.CacheTTL > 0 {
		src = NewCached(src, cfg.CacheTTL)
	}
	return src, nil
}
