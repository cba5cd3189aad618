package provider

import (
	"container/list"
	"sync"
	"time"
)

const defaultCacheSize = 16

// ProviderCache holds initialized providers for a PaymentManager so each
// provider is configured once, not per call. Get returns nil on a miss.
type ProviderCache interface {
	Get(providerName string) PaymentProvider
	Set(providerName string, provider PaymentProvider)
	Delete(providerName string)
	Clear()
	Size() int
	Stats() CacheStats
}

// CacheStats represents cache performance metrics
type CacheStats struct {
	Size        int           `json:"size"`
	MaxSize     int           `json:"max_size"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Evictions   int64         `json:"evictions"`
	TTLExpiries int64         `json:"ttl_expiries"`
	HitRatio    float64       `json:"hit_ratio"`
	TTL         time.Duration `json:"ttl"`
}

type cachedProvider struct {
	name     string
	provider PaymentProvider
	storedAt time.Time
}

// InMemoryProviderCache is an LRU ProviderCache with an optional TTL. With a
// TTL, providers are rebuilt from configuration once it expires; a zero TTL
// keeps them until evicted.
type InMemoryProviderCache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	lru     *list.List // front is most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	stats CacheStats
}

// NewProviderCache returns an empty cache. maxSize <= 0 uses 16.
func NewProviderCache(maxSize int, ttl time.Duration) *InMemoryProviderCache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	return &InMemoryProviderCache{
		index:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached provider, or nil when absent or expired
func (c *InMemoryProviderCache) Get(providerName string) PaymentProvider {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[providerName]
	if !ok {
		c.stats.Misses++
		return nil
	}

	entry := el.Value.(*cachedProvider)
	if c.expired(entry) {
		c.remove(el)
		c.stats.TTLExpiries++
		c.stats.Misses++
		return nil
	}

	c.lru.MoveToFront(el)
	c.stats.Hits++
	return entry.provider
}

// Set stores provider under providerName, evicting the least recently used
// entry when the cache is full
func (c *InMemoryProviderCache) Set(providerName string, provider PaymentProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.index[providerName]; ok {
		entry := el.Value.(*cachedProvider)
		entry.provider = provider
		entry.storedAt = now
		c.lru.MoveToFront(el)
		return
	}

	if c.lru.Len() >= c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.remove(oldest)
			c.stats.Evictions++
		}
	}
	c.index[providerName] = c.lru.PushFront(&cachedProvider{
		name:     providerName,
		provider: provider,
		storedAt: now,
	})
}

// Delete drops providerName so the next use rebuilds it
func (c *InMemoryProviderCache) Delete(providerName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[providerName]; ok {
		c.remove(el)
	}
}

// Clear drops every cached provider
func (c *InMemoryProviderCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[string]*list.Element)
	c.lru.Init()
}

// Size returns the number of cached providers
func (c *InMemoryProviderCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns hit, miss and eviction counters
func (c *InMemoryProviderCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.lru.Len()
	stats.MaxSize = c.maxSize
	stats.TTL = c.ttl
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(total)
	}
	return stats
}

func (c *InMemoryProviderCache) expired(entry *cachedProvider) bool {
	return c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl
}

// remove unlinks el; callers hold mu
func (c *InMemoryProviderCache) remove(el *list.Element) {
	delete(c.index, el.Value.(*cachedProvider).name)
	c.lru.Remove(el)
}
