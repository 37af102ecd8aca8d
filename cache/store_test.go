package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStoreContract checks the behaviour every Store shares regardless of
// how it holds its entries.
func testStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	expires := time.Unix(1_900_000_000, 0)

	require.True(t, store.Available(ctx))

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, store.Remove(ctx, "missing"))

	require.NoError(t, store.Put(ctx, "users==ada", Entry{Data: "ada"}, 0))
	require.NoError(t, store.Put(ctx, "users==bob", Entry{Data: "bob", ExpiresAt: expires}, 0))
	require.NoError(t, store.Put(ctx, "groups==admins", Entry{Data: "admins"}, 0))

	entry, found, err := store.Get(ctx, "users==ada")
	require.NoError(t, err)
	require.True(t, found)
	val, err := Decode[string](entry.Data)
	require.NoError(t, err)
	assert.Equal(t, "ada", val)
	assert.True(t, entry.ExpiresAt.IsZero())

	entry, found, err = store.Get(ctx, "users==bob")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, expires.Equal(entry.ExpiresAt), "expiry %s", entry.ExpiresAt)

	ok, err := store.Exists(ctx, "groups==admins")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := store.Scan(ctx, "users==")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users==ada", "users==bob"}, keys)
	keys, err = store.Scan(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	require.NoError(t, store.Put(ctx, "users==ada", Entry{Data: "ada2"}, 0))
	entry, _, err = store.Get(ctx, "users==ada")
	require.NoError(t, err)
	val, err = Decode[string](entry.Data)
	require.NoError(t, err)
	assert.Equal(t, "ada2", val)

	require.NoError(t, store.Remove(ctx, "groups==admins"))
	ok, err = store.Exists(ctx, "groups==admins")
	require.NoError(t, err)
	assert.False(t, ok)

	if remover, ok := store.(PrefixRemover); ok {
		require.NoError(t, remover.RemovePrefix(ctx, "users=="))
		keys, err = store.Scan(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, keys)
	}

	if clearer, ok := store.(Clearer); ok {
		require.NoError(t, store.Put(ctx, "x", Entry{Data: 1}, 0))
		require.NoError(t, clearer.Clear(ctx))
		size, err = store.Size(ctx)
		require.NoError(t, err)
		assert.Zero(t, size)
	}

	_, err = store.Stats(ctx)
	assert.NoError(t, err)
}

func TestStoreContract(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store := NewMemoryStore(context.Background())
		defer store.Close()
		testStoreContract(t, store)
	})
	t.Run("filesystem", func(t *testing.T) {
		_, store := newTestFilesystem(t)
		testStoreContract(t, store)
	})
	t.Run("sqlite", func(t *testing.T) {
		testStoreContract(t, newTestSQLite(t))
	})
	t.Run("redis", func(t *testing.T) {
		_, client := newTestRedis(t)
		testStoreContract(t, NewRedisStore(client, WithRedisPrefix("contract:")))
	})
	t.Run("breaker", func(t *testing.T) {
		store := NewBreakerStore(NewMemoryStore(context.Background()), BreakerSettings{})
		defer store.Close()
		testStoreContract(t, store)
	})
}
