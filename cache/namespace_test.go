package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNamespaceCachePrefixesOperations(t *testing.T) {
	ctx := context.Background()
	base := newClockedMemory(t, newTestClock())
	c := NewNamespaceCache(base, "tenant")

	assert.NoError(t, c.Save(ctx, "id", "value", NoExpiry, "users"))
	val, found, err := base.Fetch(ctx, "id", "tenant", "users")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", val)

	ok, err := c.Contains(ctx, "id", "users")
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Contains(ctx, "id")
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, base.Save(ctx, "other", 1, NoExpiry))
	assert.NoError(t, c.Flush(ctx))
	ok, _ = base.Contains(ctx, "id", "tenant", "users")
	assert.False(t, ok)
	ok, _ = base.Contains(ctx, "other")
	assert.True(t, ok)
}

func TestNamespaceCacheNesting(t *testing.T) {
	ctx := context.Background()
	base := newClockedMemory(t, newTestClock())
	nested := NewNamespaceCache(NewNamespaceCache(base, "a"), "b")
	flat := NewNamespaceCache(base, "a", "b")

	assert.Same(t, base, nested.Unwrap())
	assert.Equal(t, []string{"a", "b"}, nested.Namespace())

	assert.NoError(t, nested.Save(ctx, "id", "value", NoExpiry))
	val, found, err := flat.Fetch(ctx, "id")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", val)
	_, found, _ = base.Fetch(ctx, "id", "a", "b")
	assert.True(t, found)
}

func TestNamespaceCacheEmptyIsPassthrough(t *testing.T) {
	ctx := context.Background()
	base := newClockedMemory(t, newTestClock(), WithDefaultTTL(time.Hour))
	c := NewNamespaceCache(base)

	assert.Equal(t, time.Hour, c.DefaultTimeToLive())
	assert.True(t, c.Available(ctx))
	assert.NoError(t, c.Save(ctx, "id", "value", 10*time.Second))
	ttl, found, err := base.TimeToLive(ctx, "id")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 10*time.Second, ttl)
	ttl, found, err = c.TimeToLive(ctx, "id")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 10*time.Second, ttl)

	assert.NoError(t, c.Delete(ctx, "id"))
	ok, _ := base.Contains(ctx, "id")
	assert.False(t, ok)
}

type passthroughCache struct {
	Cache
}

func TestNamespaceCacheNestingThroughWrapper(t *testing.T) {
	ctx := context.Background()
	base := newClockedMemory(t, newTestClock())
	inner := passthroughCache{NewNamespaceCache(base, "a")}
	nested := NewNamespaceCache(inner, "b")
	flat := NewNamespaceCache(base, "a", "b")

	assert.Equal(t, []string{"b"}, nested.Namespace())

	assert.NoError(t, nested.Save(ctx, "id", "value", NoExpiry, "c"))
	val, found, err := flat.Fetch(ctx, "id", "c")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", val)
	val, found, err = nested.Fetch(ctx, "id", "c")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", val)
	_, found, _ = base.Fetch(ctx, "id", "a", "b", "c")
	assert.True(t, found)

	assert.NoError(t, flat.Save(ctx, "other", 1, NoExpiry))
	assert.NoError(t, base.Save(ctx, "sibling", 2, NoExpiry, "a"))
	assert.NoError(t, nested.Flush(ctx))
	ok, _ := flat.Contains(ctx, "id", "c")
	assert.False(t, ok)
	ok, _ = flat.Contains(ctx, "other")
	assert.False(t, ok)
	ok, _ = base.Contains(ctx, "sibling", "a")
	assert.True(t, ok)
}
