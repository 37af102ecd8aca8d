package pool

import (
	"time"

	"github.com/agentuity/go-tiercache/cache"
)

// Item is a single cache entry handed out by a Pool.
type Item struct {
	key       string
	value     any
	hit       bool
	expiresAt time.Time
	pool      *Pool
}

// NewItem returns an item for key that is not a hit. The key is validated
// when the item is saved.
func NewItem(key string, value any) *Item {
	return &Item{key: key, value: value}
}

func (i *Item) Key() string { return i.key }

// Get returns the value, or nil if the item is not a hit.
func (i *Item) Get() any {
	if !i.IsHit() {
		return nil
	}
	return i.value
}

// Value returns the value regardless of hit state.
func (i *Item) Value() any { return i.value }

// IsHit reports whether the lookup found the item and it has not expired since.
func (i *Item) IsHit() bool {
	if !i.hit {
		return false
	}
	if i.expiresAt.IsZero() {
		return true
	}
	now := time.Now
	if i.pool != nil {
		now = i.pool.now
	}
	return now().Before(i.expiresAt)
}

// Set replaces the value.
func (i *Item) Set(value any) *Item {
	i.value = value
	return i
}

// ExpiresAt sets an absolute expiry. The zero time never expires.
func (i *Item) ExpiresAt(t time.Time) *Item {
	i.expiresAt = t
	return i
}

// ExpiresAfter sets the expiry relative to now. A zero duration never expires.
func (i *Item) ExpiresAfter(d time.Duration) *Item {
	if d == 0 {
		i.expiresAt = time.Time{}
		return i
	}
	now := time.Now
	if i.pool != nil {
		now = i.pool.now
	}
	i.expiresAt = now().Add(d)
	return i
}

// Expiration returns the expiry, the zero time meaning never.
func (i *Item) Expiration() time.Time { return i.expiresAt }

// Value decodes the item value into T.
func Value[T any](item *Item) (T, error) {
	return cache.Decode[T](item.Value())
}
