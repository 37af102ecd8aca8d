package cache

import (
	"context"
	"slices"
	"time"
)

// NamespaceCache prepends a fixed namespace path to every operation on a
// wrapped cache.
type NamespaceCache struct {
	cache     Cache
	namespace []string
}

var _ Cache = (*NamespaceCache)(nil)

// NewNamespaceCache wraps c so every id lives under namespace. An empty
// namespace is a pure passthrough. Wrapping a NamespaceCache concatenates
// the paths, outer segments first.
func NewNamespaceCache(c Cache, namespace ...string) *NamespaceCache {
	if inner, ok := c.(*NamespaceCache); ok {
		return &NamespaceCache{
			cache:     inner.cache,
			namespace: append(slices.Clone(inner.namespace), namespace...),
		}
	}
	return &NamespaceCache{cache: c, namespace: slices.Clone(namespace)}
}

// Namespace returns the fixed namespace path.
func (c *NamespaceCache) Namespace() []string { return slices.Clone(c.namespace) }

// Unwrap returns the wrapped cache.
func (c *NamespaceCache) Unwrap() Cache { return c.cache }

func (c *NamespaceCache) path(namespace []string) []string {
	path := make([]string, 0, len(c.namespace)+len(namespace))
	path = append(path, c.namespace...)
	return append(path, namespace...)
}

func (c *NamespaceCache) Available(ctx context.Context) bool {
	return c.cache.Available(ctx)
}

func (c *NamespaceCache) Fetch(ctx context.Context, id string, namespace ...string) (any, bool, error) {
	return c.cache.Fetch(ctx, id, c.path(namespace)...)
}

func (c *NamespaceCache) Contains(ctx context.Context, id string, namespace ...string) (bool, error) {
	return c.cache.Contains(ctx, id, c.path(namespace)...)
}

func (c *NamespaceCache) TimeToLive(ctx context.Context, id string, namespace ...string) (time.Duration, bool, error) {
	return c.cache.TimeToLive(ctx, id, c.path(namespace)...)
}

func (c *NamespaceCache) DefaultTimeToLive() time.Duration {
	return c.cache.DefaultTimeToLive()
}

func (c *NamespaceCache) Save(ctx context.Context, id string, data any, lifetime time.Duration, namespace ...string) error {
	return c.cache.Save(ctx, id, data, lifetime, c.path(namespace)...)
}

func (c *NamespaceCache) Delete(ctx context.Context, id string, namespace ...string) error {
	return c.cache.Delete(ctx, id, c.path(namespace)...)
}

func (c *NamespaceCache) Flush(ctx context.Context, namespace ...string) error {
	return c.cache.Flush(ctx, c.path(namespace)...)
}

func (c *NamespaceCache) Stats(ctx context.Context) (Stats, error) {
	return c.cache.Stats(ctx)
}

func (c *NamespaceCache) Close() error {
	return c.cache.Close()
}
