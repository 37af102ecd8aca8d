package pool

import (
	"context"
	"testing"
	"time"

	"github.com/agentuity/go-tiercache/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestPool(t *testing.T, opts ...Option) (*Pool, *cache.PathKeyCache, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := cache.NewMemory(context.Background(), cache.WithClock(clk.Now))
	t.Cleanup(func() { c.Close() })
	return New(c, append([]Option{WithClock(clk.Now)}, opts...)...), c, clk
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("user.1_a-b"))
	for _, key := range []string{"", "a{b", "a}b", "a(b", "a)b", "a/b", `a\b`, "a@b", "a:b"} {
		err := ValidateKey(key)
		assert.ErrorIs(t, err, cache.ErrInvalidKey, key)
		var ike *cache.InvalidKeyError
		assert.ErrorAs(t, err, &ike)
		assert.Equal(t, key, ike.Key)
	}
}

func TestPoolGetItemMiss(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestPool(t)

	item, err := p.GetItem(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "missing", item.Key())
	assert.False(t, item.IsHit())
	assert.Nil(t, item.Get())

	_, err = p.GetItem(ctx, "bad:key")
	assert.ErrorIs(t, err, cache.ErrInvalidKey)
}

func TestPoolSaveAndGet(t *testing.T) {
	ctx := context.Background()
	p, c, clk := newTestPool(t)

	item, err := p.GetItem(ctx, "key")
	require.NoError(t, err)
	item.Set("value").ExpiresAfter(time.Minute)
	require.NoError(t, p.Save(ctx, item))

	ttl, found, err := c.TimeToLive(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, time.Minute, ttl)

	got, err := p.GetItem(ctx, "key")
	require.NoError(t, err)
	assert.True(t, got.IsHit())
	assert.Equal(t, "value", got.Get())
	assert.Equal(t, clk.now.Add(time.Minute), got.Expiration())

	clk.now = clk.now.Add(2 * time.Minute)
	assert.False(t, got.IsHit())
	ok, err := p.HasItem(ctx, "key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPoolSaveExpiredItemDeletes(t *testing.T) {
	ctx := context.Background()
	p, c, clk := newTestPool(t)

	require.NoError(t, p.Save(ctx, NewItem("key", "value")))
	ok, _ := c.Contains(ctx, "key")
	assert.True(t, ok)

	require.NoError(t, p.Save(ctx, NewItem("key", "value").ExpiresAt(clk.now.Add(-time.Second))))
	ok, _ = c.Contains(ctx, "key")
	assert.False(t, ok)
}

func TestPoolDeferred(t *testing.T) {
	ctx := context.Background()
	p, c, _ := newTestPool(t)

	require.NoError(t, p.SaveDeferred(NewItem("a", 1)))
	require.NoError(t, p.SaveDeferred(NewItem("b", 2)))
	assert.Equal(t, 2, p.Deferred())

	ok, _ := c.Contains(ctx, "a")
	assert.False(t, ok)
	ok, err := p.HasItem(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	item, err := p.GetItem(ctx, "b")
	require.NoError(t, err)
	assert.True(t, item.IsHit())
	assert.Equal(t, 2, item.Get())

	require.NoError(t, p.Commit(ctx))
	assert.Equal(t, 0, p.Deferred())
	for _, key := range []string{"a", "b"} {
		ok, _ := c.Contains(ctx, key)
		assert.True(t, ok, key)
	}

	assert.ErrorIs(t, p.SaveDeferred(NewItem("", 1)), cache.ErrInvalidKey)
}

func TestPoolDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	p, c, _ := newTestPool(t, WithNamespace("pool"))

	require.NoError(t, p.Save(ctx, NewItem("a", 1)))
	require.NoError(t, p.Save(ctx, NewItem("b", 2)))
	require.NoError(t, p.Save(ctx, NewItem("c", 3)))
	require.NoError(t, c.Save(ctx, "outside", 4, cache.NoExpiry))
	ok, _ := c.Contains(ctx, "a", "pool")
	assert.True(t, ok)

	require.NoError(t, p.DeleteItem(ctx, "a"))
	require.NoError(t, p.DeleteItem(ctx, "a"))
	require.NoError(t, p.DeleteItems(ctx, "b", "missing"))
	assert.ErrorIs(t, p.DeleteItems(ctx, "c", "bad/key"), cache.ErrInvalidKey)
	ok, _ = p.HasItem(ctx, "c")
	assert.True(t, ok)

	require.NoError(t, p.SaveDeferred(NewItem("d", 5)))
	require.NoError(t, p.Clear(ctx))
	assert.Equal(t, 0, p.Deferred())
	ok, _ = p.HasItem(ctx, "c")
	assert.False(t, ok)
	ok, _ = c.Contains(ctx, "outside")
	assert.True(t, ok)
}

func TestPoolGetItems(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestPool(t)
	require.NoError(t, p.Save(ctx, NewItem("a", "x")))

	items, err := p.GetItems(ctx, "a", "b")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.True(t, items["a"].IsHit())
	assert.False(t, items["b"].IsHit())

	_, err = p.GetItems(ctx, "a", "(bad)")
	assert.ErrorIs(t, err, cache.ErrInvalidKey)
}

func TestItemValueDecodes(t *testing.T) {
	ctx := context.Background()
	c, err := cache.NewFilesystem(t.TempDir(), nil)
	require.NoError(t, err)
	p := New(c)

	type point struct {
		X, Y int
	}
	require.NoError(t, p.Save(ctx, NewItem("p", point{1, 2})))
	item, err := p.GetItem(ctx, "p")
	require.NoError(t, err)
	v, err := Value[point](item)
	require.NoError(t, err)
	assert.Equal(t, point{1, 2}, v)
}

type saveHookCache struct {
	cache.Cache
	onSave func()
}

func (c *saveHookCache) Save(ctx context.Context, id string, data any, lifetime time.Duration, namespace ...string) error {
	if c.onSave != nil {
		hook := c.onSave
		c.onSave = nil
		hook()
	}
	return c.Cache.Save(ctx, id, data, lifetime, namespace...)
}

func TestPoolCommitKeepsNewerDeferredItem(t *testing.T) {
	ctx := context.Background()
	backing := cache.NewMemory(ctx)
	t.Cleanup(func() { backing.Close() })
	hooked := &saveHookCache{Cache: backing}
	p := New(hooked)

	require.NoError(t, p.SaveDeferred(NewItem("key", "old")))
	newer := NewItem("key", "new")
	hooked.onSave = func() { require.NoError(t, p.SaveDeferred(newer)) }

	require.NoError(t, p.Commit(ctx))
	assert.Equal(t, 1, p.Deferred())

	require.NoError(t, p.Commit(ctx))
	assert.Zero(t, p.Deferred())
	val, found, err := backing.Fetch(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "new", val)
}
