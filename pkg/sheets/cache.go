package sheets

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is how long a fetched table is reused.
const DefaultTTL = 10 * time.Minute

// Cached memoizes a Source for a TTL. Failed fetches are not cached.
type Cached struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	table   *Table
	fetched time.Time
}

// NewCached wraps src. A non-positive ttl uses DefaultTTL.
func NewCached(src Source, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{src: src, ttl: ttl, now: time.Now}
}

// Fetch returns the cached table or refreshes it from the source.
func (c *Cached) Fetch(ctx context.Context) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table != nil && c.now().Sub(c.fetched) < c.ttl {
		return c.table, nil
	}

	t, err := c.src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.table = t
	c.fetched = c.now()
	zap.L().Debug("sheets: refreshed table",
		zap.Int("rows", len(t.Rows)),
		zap.Strings("columns", t.Columns),
	)
	return t, nil
}
