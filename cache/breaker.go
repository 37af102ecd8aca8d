package cache

import (
	"context"
	"time"

	"github.com/agentuity/go-tiercache/logger"
	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures a BreakerStore.
type BreakerSettings struct {
	// Name identifies the breaker in logs. Defaults to "cache".
	Name string
	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Defaults to 5.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before probing again.
	// Defaults to 30 seconds.
	Timeout time.Duration
	// Logger receives state transitions.
	Logger logger.Logger
}

// BreakerStore guards a remote Store with a circuit breaker. While the
// breaker is open every call fails fast with ErrCircuitOpen and Available
// reports false, so a MultiLevelCache built afterwards drops the tier.
type BreakerStore struct {
	store Store
	cb    *gobreaker.CircuitBreaker
}

var (
	_ Store         = (*BreakerStore)(nil)
	_ Clearer       = (*BreakerStore)(nil)
	_ PrefixRemover = (*BreakerStore)(nil)
)

// NewBreakerStore wraps store with a circuit breaker.
func NewBreakerStore(store Store, settings BreakerSettings) *BreakerStore {
	if settings.Name == "" {
		settings.Name = "cache"
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	log := settings.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	threshold := settings.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    settings.Name,
		Timeout: settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker %s changed from %s to %s", name, from, to)
		},
	})
	return &BreakerStore{store: store, cb: cb}
}

// State returns the current breaker state.
func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

// Unwrap returns the guarded store.
func (b *BreakerStore) Unwrap() Store { return b.store }

func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Wrapf(ErrCircuitOpen, "%s", b.cb.Name())
	}
	return result, err
}

type getResult struct {
	entry Entry
	found bool
}

func (b *BreakerStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	res, err := b.execute(func() (any, error) {
		entry, found, err := b.store.Get(ctx, key)
		return getResult{entry, found}, err
	})
	if err != nil {
		return Entry{}, false, err
	}
	r := res.(getResult)
	return r.entry, r.found, nil
}

func (b *BreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	res, err := b.execute(func() (any, error) {
		return b.store.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (b *BreakerStore) Put(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.store.Put(ctx, key, entry, ttl)
	})
	return err
}

func (b *BreakerStore) Remove(ctx context.Context, key string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.store.Remove(ctx, key)
	})
	return err
}

func (b *BreakerStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	res, err := b.execute(func() (any, error) {
		return b.store.Scan(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	keys, _ := res.([]string)
	return keys, nil
}

// Clear uses the guarded store's Clearer, or removes every scanned key.
func (b *BreakerStore) Clear(ctx context.Context) error {
	_, err := b.execute(func() (any, error) {
		if clearer, ok := b.store.(Clearer); ok {
			return nil, clearer.Clear(ctx)
		}
		return nil, removeScanned(ctx, b.store, "")
	})
	return err
}

// RemovePrefix uses the guarded store's PrefixRemover, or removes every
// scanned key.
func (b *BreakerStore) RemovePrefix(ctx context.Context, prefix string) error {
	_, err := b.execute(func() (any, error) {
		if remover, ok := b.store.(PrefixRemover); ok {
			return nil, remover.RemovePrefix(ctx, prefix)
		}
		return nil, removeScanned(ctx, b.store, prefix)
	})
	return err
}

func removeScanned(ctx context.Context, store Store, prefix string) error {
	keys, err := store.Scan(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (b *BreakerStore) Size(ctx context.Context) (int64, error) {
	res, err := b.execute(func() (any, error) {
		return b.store.Size(ctx)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (b *BreakerStore) Stats(ctx context.Context) (Stats, error) {
	res, err := b.execute(func() (any, error) {
		return b.store.Stats(ctx)
	})
	if err != nil {
		return nil, err
	}
	stats, _ := res.(Stats)
	if stats == nil {
		stats = Stats{}
	}
	stats["breaker"] = b.cb.State().String()
	return stats, nil
}

func (b *BreakerStore) Available(ctx context.Context) bool {
	if b.cb.State() == gobreaker.StateOpen {
		return false
	}
	return b.store.Available(ctx)
}

func (b *BreakerStore) Close() error {
	return b.store.Close()
}
