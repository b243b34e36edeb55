// Package flowcache provides a reactive in-memory key-value store: a cache
// that, beyond holding current values, notifies subscribers whenever a value
// (or the whole collection) changes.
//
// FlowCache is designed as an SDK-first library. Consumers read current state
// and subscribe to future changes without polling: every subscription yields
// the current cached value synchronously, then continues with live updates
// ("snapshot-then-tail").
//
// # Quick Start
//
// Create a store with a key extractor, write values, and subscribe:
//
//	type User struct {
//	    ID   string
//	    Name string
//	}
//
//	store, _ := flowcache.New(func(u User) string { return u.ID })
//
//	sub := store.GetSingular("u1")
//	defer sub.Unsubscribe()
//
//	store.StoreSingular(User{ID: "u1", Name: "Ada"})
//
//	for v := range sub.C() {
//	    // first: None (nothing cached at subscribe time)
//	    // then:  Some(User{ID: "u1", Name: "Ada"})
//	    _ = v
//	}
//
// # Configuration
//
// The store uses the functional options pattern for configuration:
//
//	store, err := flowcache.New(extractKey,
//	    flowcache.WithCache[string, User](myCache),
//	    flowcache.WithLogger[string, User](logger),
//	    flowcache.WithSubscriptionBuffer[string, User](128),
//	)
//
// # Absence Semantics
//
// Every emission is wrapped in an [Optional]: absence ("no value currently
// known for this key", "cache is empty") is modelled as data via [None], not
// as an error or a nil reference. See [Some], [None], and [Optional].
//
// # Write Operations
//
//   - [Store.StoreSingular]: write one value, notify its key stream and the
//     aggregate stream.
//   - [Store.StoreAll]: bulk write, notify the aggregate stream once and every
//     key stream that already has a channel.
//   - [Store.ReplaceAll]: clear the cache, then StoreAll. Keys absent from
//     the new list are republished as None to their subscribers.
//
// # Architecture
//
// FlowCache consists of several internal packages (under internal/):
//
//   - internal/broadcast: Multi-subscriber broadcast channels with a
//     per-channel total order of emissions
//   - internal/registry: Lazy, idempotent key-to-channel mapping
//   - internal/server: HTTP server with REST API and Server-Sent Events,
//     used by the standalone binary
//
// The internal packages are not part of the public API and may change
// without notice. The standalone binary (cmd/flowcache) serves a stored
// collection over HTTP with live updates via SSE, using Go's embed
// directive for the bundled live view.
package flowcache
