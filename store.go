package flowcache

import (
	"errors"
	"log/slog"

	"github.com/flowcache/flowcache/internal/broadcast"
	"github.com/flowcache/flowcache/internal/registry"
)

// Store is a reactive key-value store.
//
// A Store composes a [Cache] (current state), a [KeyFunc] (write routing),
// a per-key channel registry, and one aggregate channel carrying
// whole-collection snapshots. Writes update the cache synchronously, then
// push the new state into the relevant channels; read-subscriptions yield
// the current cached state first, then every subsequent change
// ("snapshot-then-tail").
//
// All methods are safe for concurrent use: any number of writers and
// subscribers may operate on the store simultaneously. A Store is created
// with [New] and lives for the lifetime of the process; per-key channels
// are created lazily and retained indefinitely.
type Store[K comparable, V any] struct {
	cache    Cache[K, V]
	extract  KeyFunc[K, V]
	registry *registry.Registry[K, Optional[V]]
	all      *broadcast.Channel[Optional[[]V]]
	buffer   int
	logger   *slog.Logger
}

// New creates a [Store] using extract to derive keys from values.
//
// By default the store is backed by a fresh [MemoryCache]; use [WithCache]
// to supply a different [Cache] implementation (for example one shared with
// other readers). Other options: [WithLogger], [WithSubscriptionBuffer].
//
// Returns an error if extract is nil or if any option is invalid.
func New[K comparable, V any](extract KeyFunc[K, V], opts ...StoreOption[K, V]) (*Store[K, V], error) {
	if extract == nil {
		return nil, errors.New("key extractor is required")
	}

	cfg := &storeConfig[K, V]{
		buffer: defaultSubscriptionBuffer,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	cache := cfg.cache
	if cache == nil {
		cache = NewMemoryCache(extract)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store[K, V]{
		cache:    cache,
		extract:  extract,
		registry: registry.New[K, Optional[V]](),
		all:      broadcast.NewChannel[Optional[[]V]](),
		buffer:   cfg.buffer,
		logger:   logger,
	}, nil
}

// StoreSingular writes a single value and notifies its subscribers.
//
// The value is cached under its extracted key (overwriting any previous
// value), published as Some(value) on the key's stream, and the aggregate
// stream is republished from a fresh full cache read. A single-item change
// is therefore also visible to [Store.GetAll] subscribers.
func (s *Store[K, V]) StoreSingular(value V) {
	key := s.extract(value)
	s.cache.PutSingular(value)
	s.registry.GetOrCreate(key).Publish(Some(value))

	// one item changed, so the aggregate view changed too
	s.all.Publish(s.allSnapshot())

	s.logger.Debug("stored value", "key", key)
}

// StoreAll writes a batch of values and notifies subscribers.
//
// The values are merged into the cache per key, the aggregate stream
// receives Some(values) exactly once, and every key that already has a
// channel is republished from its post-write cached state (possibly None).
// Keys with no channel are skipped: there is no subscriber to inform, and
// writing never creates a channel as a side effect.
func (s *Store[K, V]) StoreAll(values []V) {
	s.cache.PutAll(values)
	s.all.Publish(Some(append([]V(nil), values...)))

	// Republish in every existing key stream. Only keys that changed could
	// be diffed here instead; republishing everything keeps it simple.
	keys := s.registry.Keys()
	for _, key := range keys {
		ch, ok := s.registry.Get(key)
		if !ok {
			continue
		}
		ch.Publish(s.cache.GetSingular(key))
	}

	s.logger.Debug("stored batch", "values", len(values), "streams", len(keys))
}

// ReplaceAll clears the cache, then stores the given values.
//
// Equivalent to Clear followed by [Store.StoreAll]: any key previously
// cached but absent from values is republished as None on its stream, if
// that key has a channel.
func (s *Store[K, V]) ReplaceAll(values []V) {
	s.cache.Clear()
	s.StoreAll(values)
}

// GetSingular subscribes to the value stream for key.
//
// The returned [Subscription] yields the current cached value for key
// (wrapped as Some, or None when absent) as its first emission, then every
// subsequent publish to that key's stream, in publish order, until
// [Subscription.Unsubscribe] is called. A new subscription always restarts
// from current state; there is no history replay.
func (s *Store[K, V]) GetSingular(key K) *Subscription[Optional[V]] {
	// Attach before reading the snapshot so nothing published in between is
	// lost. The sequence number read here lets the subscription drop queued
	// emissions the snapshot already reflects.
	ch := s.registry.GetOrCreate(key)
	sub := ch.Subscribe()
	seq := ch.Seq()
	snapshot := s.cache.GetSingular(key)

	return newSubscription(sub, snapshot, seq, s.buffer, s.logger)
}

// GetAll subscribes to the whole-collection stream.
//
// The first emission is the current full cache content (Some(list), or None
// when the cache is empty), followed by every subsequent aggregate publish.
func (s *Store[K, V]) GetAll() *Subscription[Optional[[]V]] {
	sub := s.all.Subscribe()
	seq := s.all.Seq()
	snapshot := s.allSnapshot()

	return newSubscription(sub, snapshot, seq, s.buffer, s.logger)
}

// allSnapshot reads the full cache and wraps it: None when empty.
func (s *Store[K, V]) allSnapshot() Optional[[]V] {
	values := s.cache.GetAll()
	if len(values) == 0 {
		return None[[]V]()
	}
	return Some(values)
}
