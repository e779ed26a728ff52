package catalog

import (
	"strconv"
	"sync"

	"github.com/agleyzer/hlsloop/internal/metrics"
	"github.com/agleyzer/hlsloop/internal/segment"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through cache of segment lists keyed by channel id.
// Cached lists are shared between callers and must not be modified.
// Failed loads are not cached.
type Cache struct {
	source  Source
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[int]segment.List
	group   singleflight.Group
}

// NewCache wraps source with a cache. m may be nil.
func NewCache(source Source, m *metrics.Metrics) *Cache {
	return &Cache{
		source:  source,
		metrics: m,
		entries: make(map[int]segment.List),
	}
}

// Load returns the cached list for channelID, loading it on first use.
func (c *Cache) Load(channelID int) (segment.List, error) {
	c.mu.RLock()
	list, ok := c.entries[channelID]
	c.mu.RUnlock()
	if ok {
		c.observe(metrics.LookupHit)
		return list, nil
	}

	v, err, _ := c.group.Do(strconv.Itoa(channelID), func() (interface{}, error) {
		c.mu.RLock()
		list, ok := c.entries[channelID]
		c.mu.RUnlock()
		if ok {
			return list, nil
		}

		list, err := c.source.Load(channelID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[channelID] = list
		c.mu.Unlock()
		return list, nil
	})
	if err != nil {
		c.observe(metrics.LookupError)
		return nil, err
	}

	c.observe(metrics.LookupMiss)
	return v.(segment.List), nil
}

// Len returns the number of cached channels.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) observe(result string) {
	if c.metrics != nil {
		c.metrics.IncCatalogLookup(result)
	}
}
