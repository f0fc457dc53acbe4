package temporal

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// recordCache is a TTL cache of current records keyed by id. It stores and
// hands out copies so callers never share a map with the cache. A nil
// *recordCache caches nothing.
type recordCache struct {
	items *cache.Cache
}

func newRecordCache(ttl time.Duration) *recordCache {
	if ttl <= 0 {
		return nil
	}
	return &recordCache{items: cache.New(ttl, 2*ttl)}
}

func (c *recordCache) get(id uuid.UUID) (Record, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.items.Get(id.String())
	if !ok {
		return nil, false
	}
	r, err := v.(Record).Clone()
	if err != nil {
		return nil, false
	}
	return r, true
}

func (c *recordCache) put(r Record) {
	if c == nil || r == nil {
		return
	}
	stored, err := r.Clone()
	if err != nil {
		return
	}
	c.items.SetDefault(r.ID().String(), stored)
}

func (c *recordCache) invalidate(id uuid.UUID) {
	if c == nil {
		return
	}
	c.items.Delete(id.String())
}

func (c *recordCache) flush() {
	if c == nil {
		return
	}
	c.items.Flush()
}
