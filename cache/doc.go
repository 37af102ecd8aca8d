// Package cache provides a namespaced, tiered caching interface with
// multiple storage backends and type-safe generic helpers.
//
// # Cache Interface
//
// The [Cache] interface is shared by every backend and decorator. Each
// operation takes an optional namespace path, so "user:1" in namespace
// ("tenant", "a") never collides with the same id elsewhere:
//
//	err := c.Save(ctx, "user:1", user, time.Minute, "tenant", "a")
//	val, found, err := c.Fetch(ctx, "user:1", "tenant", "a")
//
// Lifetimes passed to [Cache.Save] follow three rules. [DefaultLifetime]
// applies the cache default, [NoExpiry] stores forever and any other
// negative duration deletes the entry.
//
// # Stores
//
// Backends are written against the smaller [Store] interface and turned into
// a [Cache] by [PathKeyCache], which encodes (id, namespace) pairs into flat
// keys with a [KeyCodec]. A namespace flush is a prefix removal, using
// [PrefixRemover] when the store implements it and a scan otherwise.
//
//   - [MemoryStore] keeps values as-is in a map. An optional sweeper removes
//     expired entries and [MemoryGC] reclaims space when host memory runs low.
//   - [FileStore] writes one msgpack file per entry under a hashed directory
//     tree. Writes are atomic renames.
//   - [SQLStore] keeps entries in a table through sqlx. [NewSQLite] opens a
//     pure Go SQLite database; any other sqlx handle works too.
//   - [RedisStore] uses native Redis TTL and SCAN for namespace flushes.
//   - [BreakerStore] wraps a remote store with a circuit breaker.
//
// Serializing stores return [Encoded] bytes from Fetch. Use [Fetch] or
// [Decode] to get a typed value regardless of the backend:
//
//	user, found, err := cache.Fetch[User](ctx, c, "user:1")
//
// # Composition
//
// [NewNamespaceCache] binds a cache to a fixed namespace prefix.
// [NewMultiLevelCache] stacks caches so reads return the nearest hit and
// writes go to every tier. With bubbling enabled a hit in a farther tier is
// copied into the nearer tiers with its remaining lifetime. Tier failures
// are logged and reported as [ErrTierFailure] on writes only.
// [NewNullCache] stores nothing and is useful as a disabled placeholder.
//
// # Cache Aside
//
// [Exec] looks a value up and calls the [Invoker] on a miss, storing the
// result only when the invoker reports it found something:
//
//	user, found, err := cache.Exec(ctx, cache.ExecConfig{ID: "user:1"}, c,
//	    func(ctx context.Context) (User, bool, error) {
//	        return db.LoadUser(ctx, 1)
//	    },
//	)
package cache
