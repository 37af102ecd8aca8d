package cache

import (
	"context"
	"time"
)

// Store is the physical backend a PathKeyCache runs on. Keys are opaque.
//
// Get and Exists report physical presence and do not look at expiry.
// Scan returns every key starting with prefix, the empty prefix meaning the
// whole keyspace; a linear scan is an acceptable implementation.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Put stores entry under key. ttl is the requested lifetime (0 means
	// none) for backends with native expiry.
	Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string) ([]string, error)
	Size(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Available(ctx context.Context) bool
	Close() error
}

// Clearer is implemented by stores that can drop their whole keyspace at once.
type Clearer interface {
	Clear(ctx context.Context) error
}

// PrefixRemover is implemented by stores that can delete a key range natively.
type PrefixRemover interface {
	RemovePrefix(ctx context.Context, prefix string) error
}
