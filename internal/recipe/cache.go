package recipe

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/docforge/internal/model"
)

// DefaultCacheTTL bounds how long a loaded recipe is reused.
const DefaultCacheTTL = 10 * time.Minute

type cacheEntry struct {
	recipe   *model.Recipe
	loadedAt time.Time
}

// Cache memoizes recipe loads for a fixed TTL. Recipes are static files, so
// staleness only delays edits from showing up. Returned recipes are shared
// and must not be modified.
type Cache struct {
	ttl  time.Duration
	load func(string) (*model.Recipe, error)
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

// NewCache creates a Cache. A non-positive ttl uses DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		load:    Load,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the recipe for templatePath, loading it when absent or stale.
// Concurrent misses for the same path share a single read.
func (c *Cache) Get(templatePath string) (*model.Recipe, error) {
	c.mu.Lock()
	e, ok := c.entries[templatePath]
	c.mu.Unlock()
	if ok && c.now().Sub(e.loadedAt) < c.ttl {
		return e.recipe, nil
	}

	v, err, _ := c.group.Do(templatePath, func() (any, error) {
		r, err := c.load(templatePath)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[templatePath] = cacheEntry{recipe: r, loadedAt: c.now()}
		c.mu.Unlock()
		zap.L().Debug("recipe: loaded", zap.String("template", templatePath), zap.Int("fields", len(r.Fields)))
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Recipe), nil
}

// LoadAll loads the recipes for every template in order. The first failure
// aborts the whole set: a session cannot proceed with a partial schema.
func (c *Cache) LoadAll(templatePaths []string) ([]*model.Recipe, error) {
	out := make([]*model.Recipe, 0, len(templatePaths))
	for _, p := range templatePaths {
		r, err := c.Get(p)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Invalidate drops every cached recipe.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
