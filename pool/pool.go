// Package pool adapts a cache.Cache to an item oriented API: callers fetch
// an Item, inspect or modify it and hand it back to the Pool to save, either
// immediately or deferred until Commit.
package pool

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentuity/go-tiercache/cache"
	"github.com/cockroachdb/errors"
)

// ReservedChars may not appear in item keys.
const ReservedChars = `{}()/\@:`

// ValidateKey returns a *cache.InvalidKeyError if key is empty or contains
// a reserved character.
func ValidateKey(key string) error {
	if key == "" {
		return &cache.InvalidKeyError{Key: key, Reason: "key is empty"}
	}
	if i := strings.IndexAny(key, ReservedChars); i >= 0 {
		return &cache.InvalidKeyError{Key: key, Reason: "reserved character " + string(key[i])}
	}
	return nil
}

// Pool hands out Items backed by a cache.
type Pool struct {
	cache     cache.Cache
	namespace []string
	now       func() time.Time
	mu        sync.Mutex
	deferred  map[string]*Item
}

// Option configures a Pool.
type Option func(*Pool)

// WithNamespace scopes every key of the pool to namespace.
func WithNamespace(namespace ...string) Option {
	return func(p *Pool) { p.namespace = namespace }
}

// WithClock overrides the time source for expiry calculations.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// New returns a pool over c.
func New(c cache.Cache, opts ...Option) *Pool {
	p := &Pool{cache: c, now: time.Now, deferred: make(map[string]*Item)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cache returns the backing cache.
func (p *Pool) Cache() cache.Cache { return p.cache }

func (p *Pool) deferredItem(key string) (*Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.deferred[key]
	return item, ok
}

// GetItem returns the item for key. A missing key yields an item that is
// not a hit. Items saved with SaveDeferred are returned until committed.
func (p *Pool) GetItem(ctx context.Context, key string) (*Item, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if item, ok := p.deferredItem(key); ok {
		return item, nil
	}
	item := &Item{key: key, pool: p}
	ttl, found, err := p.cache.TimeToLive(ctx, key, p.namespace...)
	if err != nil {
		return nil, err
	}
	if !found {
		return item, nil
	}
	val, found, err := p.cache.Fetch(ctx, key, p.namespace...)
	if err != nil {
		return nil, err
	}
	if !found {
		return item, nil
	}
	item.value = val
	item.hit = true
	if ttl > 0 {
		item.expiresAt = p.now().Add(ttl)
	}
	return item, nil
}

// GetItems returns an item for every key.
func (p *Pool) GetItems(ctx context.Context, keys ...string) (map[string]*Item, error) {
	items := make(map[string]*Item, len(keys))
	for _, key := range keys {
		item, err := p.GetItem(ctx, key)
		if err != nil {
			return nil, err
		}
		items[key] = item
	}
	return items, nil
}

// HasItem reports whether key is cached or waiting to be committed.
func (p *Pool) HasItem(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if _, ok := p.deferredItem(key); ok {
		return true, nil
	}
	return p.cache.Contains(ctx, key, p.namespace...)
}

// Clear drops deferred items and flushes the pool's namespace.
func (p *Pool) Clear(ctx context.Context) error {
	p.mu.Lock()
	p.deferred = make(map[string]*Item)
	p.mu.Unlock()
	return p.cache.Flush(ctx, p.namespace...)
}

// DeleteItem removes key from the cache and from the deferred set.
func (p *Pool) DeleteItem(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.deferred, key)
	p.mu.Unlock()
	return p.cache.Delete(ctx, key, p.namespace...)
}

// DeleteItems removes every key, stopping at the first invalid key.
func (p *Pool) DeleteItems(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return err
		}
	}
	var firstErr error
	for _, key := range keys {
		if err := p.DeleteItem(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// lifetime converts the item expiry into a Save lifetime. Items that
// already expired get a negative lifetime, which deletes them.
func (p *Pool) lifetime(item *Item) time.Duration {
	if item.expiresAt.IsZero() {
		return cache.NoExpiry
	}
	if d := item.expiresAt.Sub(p.now()); d > 0 {
		return d
	}
	return -1
}

// Save writes item to the cache now. A deferred copy of the same item is
// dropped, a different item deferred under the key stays pending.
func (p *Pool) Save(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("pool: nil item")
	}
	if err := ValidateKey(item.key); err != nil {
		return err
	}
	if err := p.cache.Save(ctx, item.key, item.value, p.lifetime(item), p.namespace...); err != nil {
		return err
	}
	p.mu.Lock()
	if p.deferred[item.key] == item {
		delete(p.deferred, item.key)
	}
	p.mu.Unlock()
	return nil
}

// SaveDeferred queues item until Commit. The backing cache does not see
// it before then.
func (p *Pool) SaveDeferred(item *Item) error {
	if item == nil {
		return errors.New("pool: nil item")
	}
	if err := ValidateKey(item.key); err != nil {
		return err
	}
	item.pool = p
	item.hit = true
	p.mu.Lock()
	p.deferred[item.key] = item
	p.mu.Unlock()
	return nil
}

// Deferred returns the number of items waiting for Commit.
func (p *Pool) Deferred() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deferred)
}

// Commit saves every deferred item. Items that fail stay deferred.
func (p *Pool) Commit(ctx context.Context) error {
	p.mu.Lock()
	items := make([]*Item, 0, len(p.deferred))
	for _, item := range p.deferred {
		items = append(items, item)
	}
	p.mu.Unlock()

	var failed int
	var firstErr error
	for _, item := range items {
		if err := p.Save(ctx, item); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return errors.Wrapf(firstErr, "pool: commit: %d of %d items failed", failed, len(items))
	}
	return nil
}
