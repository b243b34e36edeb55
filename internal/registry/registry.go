// Package registry maps keys to their broadcast channels.
//
// Channels are created lazily on first access and retained for the lifetime
// of the registry. The registry lock guards only map mutation and key-set
// snapshots; it is never held while publishing or while touching the cache,
// keeping emission latency independent of registry size.
package registry

import (
	"sync"

	"github.com/flowcache/flowcache/internal/broadcast"
)

// Registry is a concurrency-safe mapping from keys to broadcast channels
// with lazy, idempotent creation.
//
// Entries are never removed: a long-lived registry holds one channel per
// distinct key ever observed. Channels are shared between subscribers and
// must not be invalidated while the registry lives.
type Registry[K comparable, T any] struct {
	mu       sync.Mutex
	channels map[K]*broadcast.Channel[T]
}

// New creates an empty [Registry].
func New[K comparable, T any]() *Registry[K, T] {
	return &Registry[K, T]{
		channels: make(map[K]*broadcast.Channel[T]),
	}
}

// GetOrCreate returns the channel for key, constructing and inserting it on
// first access.
//
// Create-if-absent is atomic: concurrent callers with the same key always
// receive the same channel instance, so no subscriber can attach to a
// duplicate channel and miss messages published on the canonical one.
func (r *Registry[K, T]) GetOrCreate(key K) *broadcast.Channel[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[key]
	if !ok {
		ch = broadcast.NewChannel[T]()
		r.channels[key] = ch
	}
	return ch
}

// Get returns the channel for key, or ok=false when no channel has been
// created for it. Get never creates a channel.
func (r *Registry[K, T]) Get(key K) (*broadcast.Channel[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[key]
	return ch, ok
}

// Keys returns a copy of the currently registered key set.
//
// The copy is taken under the registry lock; iterating it does not require
// the lock and does not observe channels created after the snapshot.
// Channels created during a bulk publish simply miss that publish.
func (r *Registry[K, T]) Keys() []K {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]K, 0, len(r.channels))
	for k := range r.channels {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of registered channels.
func (r *Registry[K, T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}
