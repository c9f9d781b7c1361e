// Package stmtcache keeps prepared-statement handles keyed by their CQL
// text, so each distinct statement shape pays the preparation round-trip at
// most once per process. The cache is size-bounded LRU and shared
// process-wide by default; callers may install a differently-sized instance
// or inject a private one per session.
package stmtcache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/axonops/cqlmapper/driver"
	"github.com/axonops/cqlmapper/internal/logger"
)

// DefaultSize bounds the process-wide cache.
const DefaultSize = 1000

// Cache maps normalized CQL text to prepared handles.
type Cache struct {
	lru   *lru.Cache[string, driver.PreparedStatement]
	group singleflight.Group
}

// New returns a cache bounded to size entries, evicting least recently used.
func New(size int) (*Cache, error) {
	l, err := lru.New[string, driver.PreparedStatement](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// GetOrPrepare returns the cached handle for text, delegating preparation
// to the client exactly once per distinct text. Concurrent first calls for
// the same text share one in-flight preparation.
func (c *Cache) GetOrPrepare(ctx context.Context, client driver.Client, text string) (driver.PreparedStatement, error) {
	if ps, ok := c.lru.Get(text); ok {
		return ps, nil
	}

	res, err, _ := c.group.Do(text, func() (interface{}, error) {
		if ps, ok := c.lru.Get(text); ok {
			return ps, nil
		}
		logger.DebugfToFile("StmtCache", "preparing statement: %s", text)
		ps, err := client.Prepare(ctx, text)
		if err != nil {
			return nil, err
		}
		c.lru.Add(text, ps)
		return ps, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(driver.PreparedStatement), nil
}

// Len reports the number of cached handles.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every cached handle.
func (c *Cache) Purge() { c.lru.Purge() }

var (
	defaultMu    sync.RWMutex
	defaultCache *Cache
)

// Default returns the process-wide cache, creating it on first use.
func Default() *Cache {
	defaultMu.RLock()
	c := defaultCache
	defaultMu.RUnlock()
	if c != nil {
		return c
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache == nil {
		defaultCache, _ = New(DefaultSize)
	}
	return defaultCache
}

// SetDefault replaces the process-wide cache, e.g. with a different bound.
func SetDefault(c *Cache) {
	defaultMu.Lock()
	defaultCache = c
	defaultMu.Unlock()
}
