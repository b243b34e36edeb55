package flowcache

import (
	"errors"
	"log/slog"
)

// defaultSubscriptionBuffer is the delivery channel capacity for new
// subscriptions when [WithSubscriptionBuffer] is not used.
const defaultSubscriptionBuffer = 64

// storeConfig holds mutable state during [Store] construction.
type storeConfig[K comparable, V any] struct {
	cache  Cache[K, V]
	logger *slog.Logger
	buffer int
}

// StoreOption is a function that configures a [Store] during construction.
//
// StoreOption implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithCache], [WithLogger], [WithSubscriptionBuffer].
// Because Store is generic, option constructors need explicit type
// arguments at the call site:
//
//	flowcache.WithLogger[string, User](logger)
type StoreOption[K comparable, V any] func(*storeConfig[K, V]) error

// WithCache sets the [Cache] collaborator backing the store.
//
// Use this to share the cache with non-reactive readers, or to substitute
// a custom implementation. If not specified, a fresh [MemoryCache] keyed by
// the store's [KeyFunc] is used.
//
// Returns an error if the cache is nil.
func WithCache[K comparable, V any](cache Cache[K, V]) StoreOption[K, V] {
	return func(cfg *storeConfig[K, V]) error {
		if cache == nil {
			return errors.New("cache cannot be nil")
		}
		cfg.cache = cache
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the store.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger[K comparable, V any](logger *slog.Logger) StoreOption[K, V] {
	return func(cfg *storeConfig[K, V]) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithSubscriptionBuffer sets the delivery channel capacity for each
// subscription created by the store.
//
// A larger buffer lets a consumer fall further behind before its delivery
// goroutine parks; pending emissions beyond the buffer queue without bound
// either way, so no emission is ever dropped. Defaults to 64.
//
// Returns an error if n is zero or negative.
func WithSubscriptionBuffer[K comparable, V any](n int) StoreOption[K, V] {
	return func(cfg *storeConfig[K, V]) error {
		if n <= 0 {
			return errors.New("subscription buffer must be positive")
		}
		cfg.buffer = n
		return nil
	}
}
