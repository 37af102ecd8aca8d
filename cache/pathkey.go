package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// PathKeyCache implements Cache on top of any Store by encoding
// (id, namespace) pairs into opaque keys.
type PathKeyCache struct {
	store   Store
	codec   KeyCodec
	cfg     config
	started time.Time
	hits    atomic.Int64
	misses  atomic.Int64
}

var _ Cache = (*PathKeyCache)(nil)

// NewPathKeyCache returns a Cache backed by store.
func NewPathKeyCache(store Store, opts ...Option) *PathKeyCache {
	cfg := applyOptions(opts)
	return &PathKeyCache{
		store:   store,
		codec:   NewKeyCodec(cfg.delimiter),
		cfg:     cfg,
		started: cfg.now(),
	}
}

// Store returns the underlying store.
func (c *PathKeyCache) Store() Store { return c.store }

// Codec returns the key codec in use.
func (c *PathKeyCache) Codec() KeyCodec { return c.codec }

func (c *PathKeyCache) Available(ctx context.Context) bool {
	return c.store.Available(ctx)
}

// lookup returns the entry stored under key if it is live at now.
func (c *PathKeyCache) lookup(ctx context.Context, op, key string, now time.Time) (Entry, bool, error) {
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return Entry{}, false, storageError(op, key, err)
	}
	if !exists {
		return Entry{}, false, nil
	}
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Entry{}, false, storageError(op, key, err)
	}
	if !ok || !entry.Live(now) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *PathKeyCache) Fetch(ctx context.Context, id string, namespace ...string) (any, bool, error) {
	entry, ok, err := c.lookup(ctx, "fetch", c.codec.Encode(id, namespace), c.cfg.now())
	if err != nil {
		return nil, false, err
	}
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return entry.Data, true, nil
}

func (c *PathKeyCache) Contains(ctx context.Context, id string, namespace ...string) (bool, error) {
	_, ok, err := c.lookup(ctx, "contains", c.codec.Encode(id, namespace), c.cfg.now())
	return ok, err
}

func (c *PathKeyCache) TimeToLive(ctx context.Context, id string, namespace ...string) (time.Duration, bool, error) {
	now := c.cfg.now()
	entry, ok, err := c.lookup(ctx, "ttl", c.codec.Encode(id, namespace), now)
	if err != nil || !ok {
		return 0, false, err
	}
	return entry.TimeToLive(now), true, nil
}

func (c *PathKeyCache) DefaultTimeToLive() time.Duration {
	return c.cfg.defaultTTL
}

func (c *PathKeyCache) Save(ctx context.Context, id string, data any, lifetime time.Duration, namespace ...string) error {
	if lifetime == DefaultLifetime {
		lifetime = c.cfg.defaultTTL
	} else if lifetime < 0 {
		return c.Delete(ctx, id, namespace...)
	}
	key := c.codec.Encode(id, namespace)
	entry := NewEntry(data, lifetime, c.cfg.now())
	if err := c.store.Put(ctx, key, entry, lifetime); err != nil {
		return storageError("save", key, err)
	}
	return nil
}

func (c *PathKeyCache) Delete(ctx context.Context, id string, namespace ...string) error {
	key := c.codec.Encode(id, namespace)
	return storageError("delete", key, c.store.Remove(ctx, key))
}

func (c *PathKeyCache) Flush(ctx context.Context, namespace ...string) error {
	prefix := c.codec.PrefixFor(namespace)
	if prefix == "" {
		if clearer, ok := c.store.(Clearer); ok {
			return storageError("flush", "", clearer.Clear(ctx))
		}
	} else if remover, ok := c.store.(PrefixRemover); ok {
		return storageError("flush", prefix, remover.RemovePrefix(ctx, prefix))
	}
	keys, err := c.store.Scan(ctx, prefix)
	if err != nil {
		return storageError("flush", prefix, err)
	}
	for _, key := range keys {
		if err := c.store.Remove(ctx, key); err != nil {
			return storageError("flush", key, err)
		}
	}
	c.cfg.log.Trace("flushed %d keys with prefix %q", len(keys), prefix)
	return nil
}

func (c *PathKeyCache) Stats(ctx context.Context) (Stats, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, storageError("stats", "", err)
	}
	if stats == nil {
		stats = Stats{}
	}
	if _, ok := stats[StatsSize]; !ok {
		size, err := c.store.Size(ctx)
		if err != nil {
			return nil, storageError("stats", "", err)
		}
		stats[StatsSize] = size
	}
	stats[StatsHits] = c.hits.Load()
	stats[StatsMisses] = c.misses.Load()
	stats[StatsUptime] = int64(c.cfg.now().Sub(c.started) / time.Second)
	return stats, nil
}

// Close closes the underlying store.
func (c *PathKeyCache) Close() error {
	return c.store.Close()
}
