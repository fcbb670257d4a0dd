package termvector

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cache memoises vectors from an underlying Source. Concurrent requests for
// the same document share one extraction; a successful extraction is never
// repeated. Failed extractions are not cached.
type Cache struct {
	source  Source
	mu      sync.RWMutex
	vectors map[uint64]*Vector
	group   singleflight.Group
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewCache(source Source) *Cache {
	return &Cache{
		source:  source,
		vectors: make(map[uint64]*Vector),
	}
}

func (c *Cache) Get(ctx context.Context, docID uint64) (*Vector, error) {
	if v, ok := c.lookup(docID); ok {
		c.hits.Add(1)
		return v, nil
	}
	val, err, _ := c.group.Do(strconv.FormatUint(docID, 10), func() (interface{}, error) {
		if v, ok := c.lookup(docID); ok {
			return v, nil
		}
		c.misses.Add(1)
		v, err := c.source.Get(ctx, docID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.vectors[docID] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Vector), nil
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) lookup(docID uint64) (*Vector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vectors[docID]
	return v, ok
}
