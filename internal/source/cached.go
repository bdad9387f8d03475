package source

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/senpa-rd/casewatch/internal/model"
)

// Cached keeps fetched tables for a TTL so repeated refreshes inside the
// window do not hit the backend.
type Cached struct {
	next  Source
	cache *cache.Cache

	// gen is bumped by Invalidate; fetches started under an older gen are
	// returned but not stored.
	mu  sync.Mutex
	gen uint64
}

// NewCached wraps next. Expired entries are dropped on read; no janitor
// goroutine is started.
func NewCached(next Source, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.New(ttl, 0)}
}

// FetchTables serves cached tables and fetches only the missing ones.
func (c *Cached) FetchTables(ctx context.Context, names []string) ([]model.Table, error) {
	out := make([]model.Table, len(names))
	var missing []string
	var missingPos []int
	for i, name := range names {
		if v, ok := c.cache.Get(name); ok {
			out[i] = v.(model.Table)
			continue
		}
		missing = append(missing, name)
		missingPos = append(missingPos, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	fetched, err := c.next.FetchTables(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for j, t := range fetched {
		if gen == c.gen {
			c.cache.SetDefault(missing[j], t)
		}
		out[missingPos[j]] = t
	}
	return out, nil
}

// Invalidate drops every cached table.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Flush()
}

// Unwrap returns the wrapped source.
func (c *Cached) Unwrap() Source {
	return c.next
}
