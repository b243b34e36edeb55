package flowcache

import "sync"

// KeyFunc extracts the identity key from a value.
//
// KeyFunc must be pure and total: the same value always yields the same key,
// for every possible value. It is used to route single-item writes to the
// correct key stream and to key the default in-memory cache.
type KeyFunc[K comparable, V any] func(V) K

// Cache is the storage collaborator underneath a [Store].
//
// A Cache holds the current value for each key; one key maps to at most one
// value at any time. Implementations must be internally consistent (a GetAll
// immediately after a PutSingular reflects that write) and safe for
// concurrent use. The store itself never caches values; every snapshot read
// goes through this interface.
//
// [MemoryCache] is the default implementation.
type Cache[K comparable, V any] interface {
	// GetSingular returns the current value for key, or None when the key
	// has no cached value.
	GetSingular(key K) Optional[V]

	// GetAll returns a snapshot of all currently cached values.
	// The returned slice is a copy; order is not guaranteed.
	GetAll() []V

	// PutSingular stores a value under its extracted key, replacing any
	// previous value for that key.
	PutSingular(value V)

	// PutAll stores every value, merging with existing entries per key.
	PutAll(values []V)

	// Clear removes all cached values.
	Clear()
}

// MemoryCache is an in-memory implementation of [Cache] backed by a map.
//
// MemoryCache is safe for concurrent use. It keys values using the same
// [KeyFunc] as the store it backs.
type MemoryCache[K comparable, V any] struct {
	extract KeyFunc[K, V]

	mu    sync.RWMutex
	items map[K]V
}

// NewMemoryCache creates an empty [MemoryCache] keyed via extract.
//
// The cache is immediately ready for use. No cleanup is required when done.
func NewMemoryCache[K comparable, V any](extract KeyFunc[K, V]) *MemoryCache[K, V] {
	return &MemoryCache[K, V]{
		extract: extract,
		items:   make(map[K]V),
	}
}

// GetSingular returns the cached value for key, or None when absent.
func (c *MemoryCache[K, V]) GetSingular(key K) Optional[V] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.items[key]
	if !ok {
		return None[V]()
	}
	return Some(v)
}

// GetAll returns a snapshot of all cached values.
//
// The returned slice is a copy; modifications do not affect the cache.
// Order is not guaranteed.
func (c *MemoryCache[K, V]) GetAll() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()

	values := make([]V, 0, len(c.items))
	for _, v := range c.items {
		values = append(values, v)
	}
	return values
}

// PutSingular stores value under its extracted key, overwriting any
// previous value.
func (c *MemoryCache[K, V]) PutSingular(value V) {
	key := c.extract(value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

// PutAll stores every value keyed by its extracted key.
//
// Existing entries for keys not present in values are retained; PutAll
// merges rather than replaces. Use [Cache.Clear] first for replacement
// semantics.
func (c *MemoryCache[K, V]) PutAll(values []V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range values {
		c.items[c.extract(v)] = v
	}
}

// Clear removes all cached values.
func (c *MemoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]V)
}

// Len returns the number of cached values.
func (c *MemoryCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
